package repo

import (
	"context"

	"github.com/jonboulle/clockwork"

	"github.com/ovaphlow/pitchfork/identity-store-pg/internal/identity/entity"
	"github.com/ovaphlow/pitchfork/identity-store-pg/pkg/database"
)

// Store bundles the identity gateways over one Database.
type Store[U entity.Account] struct {
	db      *database.Database
	newUser func() U
	clock   clockwork.Clock

	Users     *UserTable[U]
	Roles     *RoleTable
	UserRoles *UserRoleTable
	Claims    *UserClaimsTable
}

func NewStore[U entity.Account](db *database.Database, newUser func() U) *Store[U] {
	return newStore(db, newUser, clockwork.NewRealClock())
}

func newStore[U entity.Account](db *database.Database, newUser func() U, clock clockwork.Clock) *Store[U] {
	return &Store[U]{
		db:        db,
		newUser:   newUser,
		clock:     clock,
		Users:     NewUserTable(db, newUser).WithClock(clock),
		Roles:     NewRoleTable(db),
		UserRoles: NewUserRoleTable(db),
		Claims:    NewUserClaimsTable(db),
	}
}

// WithClock sets the clock used by user hydration.
func (s *Store[U]) WithClock(c clockwork.Clock) *Store[U] {
	s.clock = c
	s.Users.WithClock(c)
	return s
}

// WithTx runs fn with a Store whose gateways share one transaction.
func (s *Store[U]) WithTx(ctx context.Context, fn func(ctx context.Context, tx *Store[U]) error) error {
	return s.db.WithTx(ctx, nil, func(ctx context.Context, txdb *database.Database) error {
		return fn(ctx, newStore(txdb, s.newUser, s.clock))
	})
}
