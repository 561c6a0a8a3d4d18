package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/identity-store-pg/internal/identity/entity"
	"github.com/ovaphlow/pitchfork/identity-store-pg/internal/identity/repo"
	"github.com/ovaphlow/pitchfork/identity-store-pg/pkg/utilities"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
	NeedsRehash(hash string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// NeedsRehash reports whether hash was produced with a lower cost than b.
func (b BcryptHasher) NeedsRehash(hash string) bool {
	want := b.Cost
	if want == 0 {
		want = bcrypt.DefaultCost
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false
	}
	return cost < want
}

var (
	ErrRoleNotFound   = errors.New("role not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrLocked         = errors.New("user locked")
	ErrBadCredentials = errors.New("invalid credentials")
)

// Manager implements the user, role and claim store operations an identity
// framework consumes on top of the table gateways.
type Manager[U entity.Account] struct {
	store  *repo.Store[U]
	hasher PasswordHasher
	logger *zap.SugaredLogger
	clock  clockwork.Clock

	// lockout knobs, applied to users with LockoutEnabled
	MaxFailed   int
	LockMinutes int
}

func NewManager[U entity.Account](store *repo.Store[U], hasher PasswordHasher, logger *zap.SugaredLogger) *Manager[U] {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager[U]{
		store:       store,
		hasher:      hasher,
		logger:      logger,
		clock:       clockwork.NewRealClock(),
		MaxFailed:   6,
		LockMinutes: 15,
	}
}

// WithClock replaces the clock used for lockout decisions.
func (m *Manager[U]) WithClock(c clockwork.Clock) *Manager[U] {
	m.clock = c
	return m
}

// Store exposes the underlying gateways.
func (m *Manager[U]) Store() *repo.Store[U] { return m.store }

// CreateUser assigns an id when missing, hashes password when given, sets a
// fresh security stamp and inserts the user.
func (m *Manager[U]) CreateUser(ctx context.Context, user U, password string) error {
	u := user.Base()
	if strings.TrimSpace(u.UserName) == "" {
		return errors.New("user name required")
	}
	if u.ID == "" {
		u.ID = utilities.NewKSUID()
	}
	if password != "" {
		hash, err := m.hasher.Hash(password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = &hash
	}
	stamp := utilities.NewKSUID()
	u.SecurityStamp = &stamp

	if _, err := m.store.Users.Insert(ctx, user); err != nil {
		return err
	}
	m.logger.Infow("user created", "user_id", u.ID)
	return nil
}

func (m *Manager[U]) FindByID(ctx context.Context, id string) (U, bool, error) {
	return m.store.Users.GetByID(ctx, id)
}

// FindByName returns the first user matching name, ignoring case.
func (m *Manager[U]) FindByName(ctx context.Context, name string) (U, bool, error) {
	return first(m.store.Users.GetByUserName(ctx, name))
}

// FindByEmail returns the first user matching email, ignoring case.
func (m *Manager[U]) FindByEmail(ctx context.Context, email string) (U, bool, error) {
	return first(m.store.Users.GetByEmail(ctx, email))
}

// CheckPassword reports whether password matches the stored hash. A user
// without a hash never matches.
func (m *Manager[U]) CheckPassword(ctx context.Context, userID, password string) (bool, error) {
	hash, err := m.store.Users.GetPasswordHash(ctx, userID)
	if err != nil {
		return false, err
	}
	if hash == nil {
		return false, nil
	}
	return m.hasher.Verify(*hash, password), nil
}

// Authenticate checks password for the user named by identifier, an email
// when it contains '@' and a user name otherwise. Failures count towards
// lockout; success resets the counter and upgrades a weak hash.
func (m *Manager[U]) Authenticate(ctx context.Context, identifier, password string) (U, error) {
	var zero U
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return zero, ErrBadCredentials
	}
	var (
		user U
		ok   bool
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, ok, err = m.FindByEmail(ctx, identifier)
	} else {
		user, ok, err = m.FindByName(ctx, identifier)
	}
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, ErrBadCredentials
	}

	u := user.Base()
	now := m.clock.Now().UTC()
	if u.LockoutEnabled && u.LockoutEndDateUTC.After(now) {
		return zero, ErrLocked
	}
	if u.PasswordHash == nil || !m.hasher.Verify(*u.PasswordHash, password) {
		if err := m.recordFailure(ctx, user, now); err != nil {
			return zero, err
		}
		return zero, ErrBadCredentials
	}

	// no row means a lockout landed after the read, or the user is gone
	n, err := m.store.Users.ResetAccessFailed(ctx, u.ID, now)
	if err != nil {
		return zero, err
	}
	if n == 0 {
		return zero, ErrLocked
	}
	u.AccessFailedCount = 0
	u.LockoutEndDateUTC = now

	if m.hasher.NeedsRehash(*u.PasswordHash) {
		m.rehash(ctx, u, password)
	}
	return user, nil
}

// recordFailure counts a failed attempt in the database and locks the user
// once the stored counter reaches MaxFailed.
func (m *Manager[U]) recordFailure(ctx context.Context, user U, now time.Time) error {
	u := user.Base()
	if !u.LockoutEnabled {
		return nil
	}
	count, found, err := m.store.Users.IncrementAccessFailedCount(ctx, u.ID)
	if err != nil || !found {
		return err
	}
	u.AccessFailedCount = count
	if m.MaxFailed <= 0 || count < m.MaxFailed {
		return nil
	}
	until := now.Add(time.Duration(m.LockMinutes) * time.Minute)
	locked, err := m.store.Users.LockIfThreshold(ctx, u.ID, m.MaxFailed, until)
	if err != nil {
		return err
	}
	if locked {
		u.AccessFailedCount = 0
		u.LockoutEndDateUTC = until
		m.logger.Infow("user locked out", "user_id", u.ID, "until", until)
	}
	return nil
}

// rehash upgrades u's hash unless it changed since it was read. Failures
// are logged; the login itself already succeeded.
func (m *Manager[U]) rehash(ctx context.Context, u *entity.User, password string) {
	hash, err := m.hasher.Hash(password)
	if err != nil {
		m.logger.Warnw("rehash failed", "user_id", u.ID, "err", err)
		return
	}
	n, err := m.store.Users.ReplacePasswordHash(ctx, u.ID, *u.PasswordHash, hash)
	if err != nil {
		m.logger.Warnw("rehash failed", "user_id", u.ID, "err", err)
		return
	}
	if n > 0 {
		u.PasswordHash = &hash
	}
}

// ValidateSecurityStamp reports whether stamp is the user's current
// security stamp. A user without a stamp never matches.
func (m *Manager[U]) ValidateSecurityStamp(ctx context.Context, userID, stamp string) (bool, error) {
	current, err := m.store.Users.GetSecurityStamp(ctx, userID)
	if err != nil {
		return false, err
	}
	if current == nil || *current == "" || stamp == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(*current), []byte(stamp)) == 1, nil
}

// ChangePassword stores a new hash and rotates the security stamp in one
// transaction so outstanding credentials are invalidated with it.
func (m *Manager[U]) ChangePassword(ctx context.Context, userID, password string) error {
	hash, err := m.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return m.store.WithTx(ctx, func(ctx context.Context, tx *repo.Store[U]) error {
		n, err := tx.Users.SetPasswordHash(ctx, userID, hash)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrUserNotFound
		}
		_, err = tx.Users.SetSecurityStamp(ctx, userID, utilities.NewKSUID())
		return err
	})
}

// CreateRole inserts a role with a snowflake id.
func (m *Manager[U]) CreateRole(ctx context.Context, name string) (*entity.Role, error) {
	role := &entity.Role{ID: utilities.NewSnowflakeID(), Name: name}
	if _, err := m.store.Roles.Insert(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

func (m *Manager[U]) AddToRole(ctx context.Context, user U, roleName string) error {
	roleID, err := m.roleID(ctx, roleName)
	if err != nil {
		return err
	}
	_, err = m.store.UserRoles.Insert(ctx, user, roleID)
	return err
}

func (m *Manager[U]) RemoveFromRole(ctx context.Context, user U, roleName string) error {
	roleID, err := m.roleID(ctx, roleName)
	if err != nil {
		return err
	}
	_, err = m.store.UserRoles.Remove(ctx, user.Base().ID, roleID)
	return err
}

func (m *Manager[U]) RoleNames(ctx context.Context, userID string) ([]string, error) {
	return m.store.UserRoles.FindRoleNames(ctx, userID)
}

// IsInRole compares role names case-insensitively.
func (m *Manager[U]) IsInRole(ctx context.Context, userID, roleName string) (bool, error) {
	names, err := m.store.UserRoles.FindRoleNames(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if strings.EqualFold(n, roleName) {
			return true, nil
		}
	}
	return false, nil
}

// ReplaceRoles atomically swaps the user's memberships for roleIDs.
func (m *Manager[U]) ReplaceRoles(ctx context.Context, user U, roleIDs []string) error {
	return m.store.WithTx(ctx, func(ctx context.Context, tx *repo.Store[U]) error {
		if _, err := tx.UserRoles.Delete(ctx, user.Base().ID); err != nil {
			return err
		}
		for _, id := range roleIDs {
			if _, err := tx.UserRoles.Insert(ctx, user, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *Manager[U]) Claims(ctx context.Context, userID string) (*entity.ClaimSet, error) {
	return m.store.Claims.FindByUserID(ctx, userID)
}

func (m *Manager[U]) AddClaim(ctx context.Context, user U, claim entity.Claim) error {
	_, err := m.store.Claims.Insert(ctx, claim, user.Base().ID)
	return err
}

func (m *Manager[U]) RemoveClaim(ctx context.Context, user U, claim entity.Claim) error {
	_, err := m.store.Claims.DeleteClaim(ctx, user, claim)
	return err
}

// DeleteUser removes the user's claims, memberships and row in one
// transaction.
func (m *Manager[U]) DeleteUser(ctx context.Context, user U) error {
	id := user.Base().ID
	err := m.store.WithTx(ctx, func(ctx context.Context, tx *repo.Store[U]) error {
		if _, err := tx.Claims.Delete(ctx, id); err != nil {
			return err
		}
		if _, err := tx.UserRoles.Delete(ctx, id); err != nil {
			return err
		}
		_, err := tx.Users.DeleteUser(ctx, user)
		return err
	})
	if err != nil {
		return err
	}
	m.logger.Infow("user deleted", "user_id", id)
	return nil
}

func (m *Manager[U]) roleID(ctx context.Context, roleName string) (string, error) {
	id, err := m.store.Roles.GetRoleID(ctx, roleName)
	if err != nil {
		return "", err
	}
	if id == nil {
		return "", ErrRoleNotFound
	}
	return *id, nil
}

func first[U any](users []U, err error) (U, bool, error) {
	var zero U
	if err != nil || len(users) == 0 {
		return zero, false, err
	}
	return users[0], true, nil
}
