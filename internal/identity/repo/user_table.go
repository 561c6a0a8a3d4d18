package repo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ovaphlow/pitchfork/identity-store-pg/internal/identity/entity"
	"github.com/ovaphlow/pitchfork/identity-store-pg/pkg/database"
)

var (
	selectUsers = "SELECT " + columnList(userColumns) + " FROM " + usersTable

	sqlUserNameByID     = "SELECT " + q(fieldUserName) + " FROM " + usersTable + " WHERE " + q(fieldID) + " = :id"
	sqlUserIDByName     = "SELECT " + q(fieldID) + " FROM " + usersTable + " WHERE lower(" + q(fieldUserName) + ") = :name"
	sqlUserByID         = selectUsers + " WHERE " + q(fieldID) + " = :id"
	sqlUsersByName      = selectUsers + " WHERE lower(" + q(fieldUserName) + ") = :name"
	sqlUsersByEmail     = selectUsers + " WHERE lower(" + q(fieldEmail) + ") = :email"
	sqlPasswordHash     = "SELECT " + q(fieldPasswordHash) + " FROM " + usersTable + " WHERE " + q(fieldID) + " = :id"
	sqlSetPasswordHash  = "UPDATE " + usersTable + " SET " + q(fieldPasswordHash) + " = :password_hash WHERE " + q(fieldID) + " = :id"
	sqlSecurityStamp    = "SELECT " + q(fieldSecurityStamp) + " FROM " + usersTable + " WHERE " + q(fieldID) + " = :id"
	sqlSetSecurityStamp = "UPDATE " + usersTable + " SET " + q(fieldSecurityStamp) + " = :security_stamp WHERE " + q(fieldID) + " = :id"
	sqlInsertUser       = "INSERT INTO " + usersTable + " (" + columnList(userColumns) + ") VALUES (" + paramList(userColumns) + ")"
	sqlUpdateUser       = "UPDATE " + usersTable + " SET " + assignList(userColumns[1:]) + " WHERE " + q(fieldID) + " = :id"
	sqlDeleteUser       = "DELETE FROM " + usersTable + " WHERE " + q(fieldID) + " = :id"

	sqlReplacePasswordHash = "UPDATE " + usersTable + " SET " + q(fieldPasswordHash) + " = :password_hash" +
		" WHERE " + q(fieldID) + " = :id AND " + q(fieldPasswordHash) + " = :current_hash"
	sqlIncrementFailed = "UPDATE " + usersTable + " SET " + q(fieldAccessFailedCount) + " = " + q(fieldAccessFailedCount) + " + 1" +
		" WHERE " + q(fieldID) + " = :id RETURNING " + q(fieldAccessFailedCount)
	sqlLockIfThreshold = "UPDATE " + usersTable + " SET " + q(fieldLockoutEndDate) + " = :until, " + q(fieldAccessFailedCount) + " = 0" +
		" WHERE " + q(fieldID) + " = :id AND " + q(fieldLockoutEnabled) + " AND " + q(fieldAccessFailedCount) + " >= :threshold"
	sqlResetFailed = "UPDATE " + usersTable + " SET " + q(fieldAccessFailedCount) + " = 0, " + q(fieldLockoutEndDate) + " = NULL" +
		" WHERE " + q(fieldID) + " = :id AND (NOT " + q(fieldLockoutEnabled) + " OR " + q(fieldLockoutEndDate) + " IS NULL OR " + q(fieldLockoutEndDate) + " <= :now)"
)

// UserTable is the gateway for the Users table. U is the caller's record
// type; newUser builds an empty one for hydration.
type UserTable[U entity.Account] struct {
	db      *database.Database
	newUser func() U
	clock   clockwork.Clock
}

func NewUserTable[U entity.Account](db *database.Database, newUser func() U) *UserTable[U] {
	return &UserTable[U]{db: db, newUser: newUser, clock: clockwork.NewRealClock()}
}

// WithClock replaces the clock used to default an absent lockout end.
func (t *UserTable[U]) WithClock(c clockwork.Clock) *UserTable[U] {
	t.clock = c
	return t
}

// GetUserName returns the user name for id, nil when no row matches.
func (t *UserTable[U]) GetUserName(ctx context.Context, id string) (*string, error) {
	return t.db.GetStrValue(ctx, sqlUserNameByID, database.Params{"id": id})
}

// GetUserID looks up an id by user name, ignoring case.
func (t *UserTable[U]) GetUserID(ctx context.Context, userName string) (*string, error) {
	return t.db.GetStrValue(ctx, sqlUserIDByName, database.Params{"name": strings.ToLower(userName)})
}

// GetByID returns the user only when exactly one row matches.
func (t *UserTable[U]) GetByID(ctx context.Context, id string) (U, bool, error) {
	var zero U
	rows, err := t.db.Query(ctx, sqlUserByID, database.Params{"id": id})
	if err != nil {
		return zero, false, err
	}
	if len(rows) != 1 {
		return zero, false, nil
	}
	u, err := t.load(rows[0])
	if err != nil {
		return zero, false, err
	}
	return u, true, nil
}

// GetByUserName returns every user whose name matches, ignoring case.
func (t *UserTable[U]) GetByUserName(ctx context.Context, userName string) ([]U, error) {
	return t.list(ctx, sqlUsersByName, database.Params{"name": strings.ToLower(userName)})
}

// GetByEmail returns every user whose email matches, ignoring case.
func (t *UserTable[U]) GetByEmail(ctx context.Context, email string) ([]U, error) {
	return t.list(ctx, sqlUsersByEmail, database.Params{"email": strings.ToLower(email)})
}

// GetPasswordHash returns nil when the user has no hash or does not exist.
func (t *UserTable[U]) GetPasswordHash(ctx context.Context, id string) (*string, error) {
	hash, err := t.db.GetStrValue(ctx, sqlPasswordHash, database.Params{"id": id})
	if err != nil {
		return nil, err
	}
	if hash == nil || *hash == "" {
		return nil, nil
	}
	return hash, nil
}

func (t *UserTable[U]) SetPasswordHash(ctx context.Context, id, passwordHash string) (int64, error) {
	return t.db.Execute(ctx, sqlSetPasswordHash, database.Params{"id": id, "password_hash": passwordHash})
}

func (t *UserTable[U]) GetSecurityStamp(ctx context.Context, id string) (*string, error) {
	return t.db.GetStrValue(ctx, sqlSecurityStamp, database.Params{"id": id})
}

func (t *UserTable[U]) SetSecurityStamp(ctx context.Context, id, stamp string) (int64, error) {
	return t.db.Execute(ctx, sqlSetSecurityStamp, database.Params{"id": id, "security_stamp": stamp})
}

// ReplacePasswordHash swaps the hash only while the stored one is still
// currentHash, so a concurrent password change wins.
func (t *UserTable[U]) ReplacePasswordHash(ctx context.Context, id, currentHash, newHash string) (int64, error) {
	return t.db.Execute(ctx, sqlReplacePasswordHash, database.Params{"id": id, "current_hash": currentHash, "password_hash": newHash})
}

// IncrementAccessFailedCount bumps the counter in place and returns the new
// value. found is false when no row matches.
func (t *UserTable[U]) IncrementAccessFailedCount(ctx context.Context, id string) (count int, found bool, err error) {
	v, err := t.db.GetStrValue(ctx, sqlIncrementFailed, database.Params{"id": id})
	if err != nil || v == nil {
		return 0, false, err
	}
	n, err := strconv.Atoi(*v)
	if err != nil {
		return 0, false, fmt.Errorf("column %s: %w", fieldAccessFailedCount, err)
	}
	return n, true, nil
}

// LockIfThreshold sets the lockout end to until and clears the counter when
// lockout is enabled and the counter reached threshold. It reports whether
// the row was locked.
func (t *UserTable[U]) LockIfThreshold(ctx context.Context, id string, threshold int, until time.Time) (bool, error) {
	n, err := t.db.Execute(ctx, sqlLockIfThreshold, database.Params{"id": id, "threshold": threshold, "until": until.UTC()})
	return n > 0, err
}

// ResetAccessFailed clears the counter and lockout end unless lockout is
// enabled and still running at now.
func (t *UserTable[U]) ResetAccessFailed(ctx context.Context, id string, now time.Time) (int64, error) {
	return t.db.Execute(ctx, sqlResetFailed, database.Params{"id": id, "now": now.UTC()})
}

// Insert writes every column of user. The email is stored as given;
// lookups compare case-insensitively.
func (t *UserTable[U]) Insert(ctx context.Context, user U) (int64, error) {
	return t.db.Execute(ctx, sqlInsertUser, userParams(user.Base()))
}

// Update rewrites every mutable column of the row matching user's id.
func (t *UserTable[U]) Update(ctx context.Context, user U) (int64, error) {
	return t.db.Execute(ctx, sqlUpdateUser, userParams(user.Base()))
}

func (t *UserTable[U]) Delete(ctx context.Context, id string) (int64, error) {
	return t.db.Execute(ctx, sqlDeleteUser, database.Params{"id": id})
}

func (t *UserTable[U]) DeleteUser(ctx context.Context, user U) (int64, error) {
	return t.Delete(ctx, user.Base().ID)
}

func (t *UserTable[U]) list(ctx context.Context, query string, params database.Params) ([]U, error) {
	rows, err := t.db.Query(ctx, query, params)
	if err != nil {
		return nil, err
	}
	users := make([]U, 0, len(rows))
	for _, row := range rows {
		u, err := t.load(row)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (t *UserTable[U]) load(row database.Row) (U, error) {
	u := t.newUser()
	if err := hydrateUser(u.Base(), row, t.clock.Now().UTC()); err != nil {
		var zero U
		return zero, err
	}
	return u, nil
}

func userParams(u *entity.User) database.Params {
	var lockoutEnd any
	if !u.LockoutEndDateUTC.IsZero() {
		lockoutEnd = u.LockoutEndDateUTC.UTC()
	}
	return database.Params{
		"id":                     u.ID,
		"user_name":              u.UserName,
		"password_hash":          u.PasswordHash,
		"security_stamp":         u.SecurityStamp,
		"email":                  u.Email,
		"email_confirmed":        u.EmailConfirmed,
		"phone_number":           u.PhoneNumber,
		"phone_number_confirmed": u.PhoneNumberConfirmed,
		"two_factor_enabled":     u.TwoFactorEnabled,
		"lockout_end_date":       lockoutEnd,
		"lockout_enabled":        u.LockoutEnabled,
		"access_failed_count":    u.AccessFailedCount,
	}
}
