package repo

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/identity-store-pg/internal/identity/entity"
	"github.com/ovaphlow/pitchfork/identity-store-pg/pkg/database"
)

const allUserColumns = `"Id", "UserName", "PasswordHash", "SecurityStamp", "Email", "EmailConfirmed", "PhoneNumber", "PhoneNumberConfirmed", "TwoFactorEnabled", "LockoutEndDateUtc", "LockoutEnabled", "AccessFailedCount"`

var (
	fixedNow    = time.Date(2025, 5, 5, 8, 0, 0, 0, time.UTC)
	userRowCols = []string{"Id", "UserName", "PasswordHash", "SecurityStamp", "Email", "EmailConfirmed", "PhoneNumber", "PhoneNumberConfirmed", "TwoFactorEnabled", "LockoutEndDateUtc", "LockoutEnabled", "AccessFailedCount"}
)

func newMockStore(t *testing.T) (*Store[*entity.User], sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	db := database.New(sqlx.NewDb(raw, "postgres"), nil)
	store := NewStore(db, func() *entity.User { return &entity.User{} }).
		WithClock(clockwork.NewFakeClockAt(fixedNow))
	return store, mock
}

func exact(sql string) string { return regexp.QuoteMeta(sql) }

func strPtr(s string) *string { return &s }

func TestUserTable_GetUserName(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	q := exact(`SELECT "UserName" FROM "public"."Users" WHERE "Id" = $1`)

	mock.ExpectQuery(q).WithArgs("u1").WillReturnRows(sqlmock.NewRows([]string{"UserName"}).AddRow("Bob"))
	mock.ExpectQuery(q).WithArgs("ghost").WillReturnRows(sqlmock.NewRows([]string{"UserName"}))

	name, err := store.Users.GetUserName(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, name)
	assert.Equal(t, "Bob", *name)

	name, err = store.Users.GetUserName(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserTable_GetUserID_IgnoresCase(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(exact(`SELECT "Id" FROM "public"."Users" WHERE lower("UserName") = $1`)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"Id"}).AddRow("u1"))

	id, err := store.Users.GetUserID(context.Background(), "ALICE")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "u1", *id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserTable_GetByID_Hydrates(t *testing.T) {
	store, mock := newMockStore(t)
	lockout := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(exact(`SELECT `+allUserColumns+` FROM "public"."Users" WHERE "Id" = $1`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(userRowCols).
			AddRow("u1", "Bob", "hash", "stamp", "Bob@X.com", "True", "", "1", false, lockout, true, int64(2)))

	u, ok, err := store.Users.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, &entity.User{
		ID:                   "u1",
		UserName:             "Bob",
		PasswordHash:         strPtr("hash"),
		SecurityStamp:        strPtr("stamp"),
		Email:                strPtr("Bob@X.com"),
		EmailConfirmed:       true,
		PhoneNumberConfirmed: true,
		LockoutEndDateUTC:    lockout,
		LockoutEnabled:       true,
		AccessFailedCount:    2,
	}, u)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserTable_GetByID_RequiresExactlyOneRow(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	q := exact(`FROM "public"."Users" WHERE "Id" = $1`)

	mock.ExpectQuery(q).WithArgs("none").WillReturnRows(sqlmock.NewRows(userRowCols))
	mock.ExpectQuery(q).WithArgs("dup").WillReturnRows(sqlmock.NewRows(userRowCols).
		AddRow("dup", "a", nil, nil, nil, false, nil, false, false, nil, false, int64(0)).
		AddRow("dup", "b", nil, nil, nil, false, nil, false, false, nil, false, int64(0)))

	u, ok, err := store.Users.GetByID(ctx, "none")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, u)

	_, ok, err = store.Users.GetByID(ctx, "dup")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserTable_GetByID_AbsentLockoutDefaultsToNow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(exact(`WHERE "Id" = $1`)).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(userRowCols).
			AddRow("u1", "Bob", nil, nil, nil, false, nil, false, false, nil, false, nil))

	u, ok, err := store.Users.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, fixedNow.Equal(u.LockoutEndDateUTC))
	assert.Zero(t, u.AccessFailedCount)
}

func TestUserTable_GetByUserName_HydratesEachRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(exact(`SELECT `+allUserColumns+` FROM "public"."Users" WHERE lower("UserName") = $1`)).
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows(userRowCols).
			AddRow("u1", "Bob", nil, nil, nil, false, nil, false, false, nil, false, int64(0)).
			AddRow("u2", "BOB", nil, nil, nil, true, nil, false, false, nil, false, int64(5)))

	users, err := store.Users.GetByUserName(context.Background(), "BoB")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].ID)
	assert.Equal(t, "u2", users[1].ID)
	assert.False(t, users[0].EmailConfirmed)
	assert.True(t, users[1].EmailConfirmed)
	assert.Equal(t, 5, users[1].AccessFailedCount)
}

func TestUserTable_GetByEmail_NoMatchIsEmpty(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(exact(`WHERE lower("Email") = $1`)).
		WithArgs("bob@x.com").
		WillReturnRows(sqlmock.NewRows(userRowCols))

	users, err := store.Users.GetByEmail(context.Background(), "Bob@X.com")
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)
}

func TestUserTable_PasswordHash(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	get := exact(`SELECT "PasswordHash" FROM "public"."Users" WHERE "Id" = $1`)

	mock.ExpectQuery(get).WithArgs("u1").WillReturnRows(sqlmock.NewRows([]string{"PasswordHash"}).AddRow(""))
	mock.ExpectExec(exact(`UPDATE "public"."Users" SET "PasswordHash" = $1 WHERE "Id" = $2`)).
		WithArgs("new-hash", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(get).WithArgs("u1").WillReturnRows(sqlmock.NewRows([]string{"PasswordHash"}).AddRow("new-hash"))

	hash, err := store.Users.GetPasswordHash(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, hash, "empty hash must read as absent")

	n, err := store.Users.SetPasswordHash(ctx, "u1", "new-hash")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	hash, err = store.Users.GetPasswordHash(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, hash)
	assert.Equal(t, "new-hash", *hash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserTable_SecurityStamp(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(exact(`UPDATE "public"."Users" SET "SecurityStamp" = $1 WHERE "Id" = $2`)).
		WithArgs("s2", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(exact(`SELECT "SecurityStamp" FROM "public"."Users" WHERE "Id" = $1`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"SecurityStamp"}).AddRow("s2"))

	_, err := store.Users.SetSecurityStamp(ctx, "u1", "s2")
	require.NoError(t, err)
	stamp, err := store.Users.GetSecurityStamp(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, stamp)
	assert.Equal(t, "s2", *stamp)
}

func TestUserTable_Insert_WritesEveryColumn(t *testing.T) {
	store, mock := newMockStore(t)
	lockout := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(exact(`INSERT INTO "public"."Users" (`+allUserColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`)).
		WithArgs("u1", "Bob", "hash", nil, "Bob@X.com", true, nil, false, true, lockout, true, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := store.Users.Insert(context.Background(), &entity.User{
		ID:                "u1",
		UserName:          "Bob",
		PasswordHash:      strPtr("hash"),
		Email:             strPtr("Bob@X.com"),
		EmailConfirmed:    true,
		TwoFactorEnabled:  true,
		LockoutEndDateUTC: lockout,
		LockoutEnabled:    true,
		AccessFailedCount: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserTable_Update_RewritesMutableColumns(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(exact(`UPDATE "public"."Users" SET "UserName" = $1, "PasswordHash" = $2, "SecurityStamp" = $3, "Email" = $4, ` +
		`"EmailConfirmed" = $5, "PhoneNumber" = $6, "PhoneNumberConfirmed" = $7, "TwoFactorEnabled" = $8, ` +
		`"LockoutEndDateUtc" = $9, "LockoutEnabled" = $10, "AccessFailedCount" = $11 WHERE "Id" = $12`)).
		WithArgs("Robert", nil, "s1", nil, false, "555", true, false, nil, false, 0, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := store.Users.Update(context.Background(), &entity.User{
		ID:                   "u1",
		UserName:             "Robert",
		SecurityStamp:        strPtr("s1"),
		PhoneNumber:          strPtr("555"),
		PhoneNumberConfirmed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserTable_Delete(t *testing.T) {
	store, mock := newMockStore(t)
	del := exact(`DELETE FROM "public"."Users" WHERE "Id" = $1`)

	mock.ExpectExec(del).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(del).WithArgs("u2").WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := store.Users.DeleteUser(context.Background(), &entity.User{ID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.Users.Delete(context.Background(), "u2")
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserTable_PropagatesStorageErrors(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("connection reset")

	mock.ExpectQuery(`SELECT`).WillReturnError(boom)

	_, err := store.Users.GetByEmail(context.Background(), "a@b.c")
	require.ErrorIs(t, err, boom)
}

func TestUserTable_MalformedRowFails(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT`).WillReturnRows(sqlmock.NewRows(userRowCols).
		AddRow("u1", "Bob", nil, nil, nil, "maybe", nil, false, false, nil, false, int64(0)))

	_, _, err := store.Users.GetByID(context.Background(), "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EmailConfirmed")
}

type tenantUser struct {
	entity.User
	Tenant string
}

func TestUserTable_CustomRecordType(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	users := NewUserTable(database.New(sqlx.NewDb(raw, "postgres"), nil), func() *tenantUser {
		return &tenantUser{Tenant: "acme"}
	})

	mock.ExpectQuery(`SELECT`).WillReturnRows(sqlmock.NewRows(userRowCols).
		AddRow("u1", "Bob", nil, nil, nil, false, nil, false, false, nil, false, int64(0)))

	u, ok, err := users.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "acme", u.Tenant)
	assert.Equal(t, "Bob", u.UserName)
}

func TestUserTable_AccessFailedCount(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	inc := exact(`UPDATE "public"."Users" SET "AccessFailedCount" = "AccessFailedCount" + 1 WHERE "Id" = $1 RETURNING "AccessFailedCount"`)

	mock.ExpectQuery(inc).WithArgs("u1").WillReturnRows(sqlmock.NewRows([]string{"AccessFailedCount"}).AddRow(int64(5)))
	mock.ExpectQuery(inc).WithArgs("ghost").WillReturnRows(sqlmock.NewRows([]string{"AccessFailedCount"}))

	n, found, err := store.Users.IncrementAccessFailedCount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 5, n)

	_, found, err = store.Users.IncrementAccessFailedCount(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserTable_LockIfThreshold(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	until := fixedNow.Add(15 * time.Minute)
	lock := exact(`UPDATE "public"."Users" SET "LockoutEndDateUtc" = $1, "AccessFailedCount" = 0 ` +
		`WHERE "Id" = $2 AND "LockoutEnabled" AND "AccessFailedCount" >= $3`)

	mock.ExpectExec(lock).WithArgs(until, "u1", int64(6)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(lock).WithArgs(until, "u1", int64(6)).WillReturnResult(sqlmock.NewResult(0, 0))

	locked, err := store.Users.LockIfThreshold(ctx, "u1", 6, until)
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = store.Users.LockIfThreshold(ctx, "u1", 6, until)
	require.NoError(t, err)
	assert.False(t, locked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserTable_ResetAccessFailed_TouchesOnlyLockoutColumns(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(exact(`UPDATE "public"."Users" SET "AccessFailedCount" = 0, "LockoutEndDateUtc" = NULL `+
		`WHERE "Id" = $1 AND (NOT "LockoutEnabled" OR "LockoutEndDateUtc" IS NULL OR "LockoutEndDateUtc" <= $2)`)).
		WithArgs("u1", fixedNow).WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := store.Users.ResetAccessFailed(context.Background(), "u1", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserTable_ReplacePasswordHash_RequiresCurrentHash(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(exact(`UPDATE "public"."Users" SET "PasswordHash" = $1 WHERE "Id" = $2 AND "PasswordHash" = $3`)).
		WithArgs("new", "u1", "old").WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := store.Users.ReplacePasswordHash(context.Background(), "u1", "old", "new")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
