package repo

import (
	"context"

	"github.com/ovaphlow/pitchfork/identity-store-pg/internal/identity/entity"
	"github.com/ovaphlow/pitchfork/identity-store-pg/pkg/database"
)

var (
	sqlRoleNamesForUser = "SELECT r." + q(fieldRoleName) + " FROM " + usersTable + " u" +
		" INNER JOIN " + userRolesTable + " ur ON u." + q(fieldID) + " = ur." + q(fieldUserID) +
		" INNER JOIN " + rolesTable + " r ON ur." + q(fieldRoleID) + " = r." + q(fieldID) +
		" WHERE u." + q(fieldID) + " = :user_id"
	sqlDeleteUserRoles = "DELETE FROM " + userRolesTable + " WHERE " + q(fieldUserID) + " = :user_id"
	sqlInsertUserRole  = "INSERT INTO " + userRolesTable + " (" + q(fieldUserID) + ", " + q(fieldRoleID) + ") VALUES (:user_id, :role_id)"
	sqlDeleteUserRole  = "DELETE FROM " + userRolesTable + " WHERE " + q(fieldUserID) + " = :user_id AND " + q(fieldRoleID) + " = :role_id"
)

// UserRoleTable is the gateway for the UserRoles association.
// Referential integrity is left to the schema.
type UserRoleTable struct {
	db *database.Database
}

func NewUserRoleTable(db *database.Database) *UserRoleTable {
	return &UserRoleTable{db: db}
}

// FindRoleNames returns the names of the roles userID belongs to, in no
// particular order.
func (t *UserRoleTable) FindRoleNames(ctx context.Context, userID string) ([]string, error) {
	rows, err := t.db.Query(ctx, sqlRoleNamesForUser, database.Params{"user_id": userID})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row[fieldRoleName])
	}
	return names, nil
}

// Delete removes every membership of userID.
func (t *UserRoleTable) Delete(ctx context.Context, userID string) (int64, error) {
	return t.db.Execute(ctx, sqlDeleteUserRoles, database.Params{"user_id": userID})
}

func (t *UserRoleTable) Insert(ctx context.Context, user entity.Account, roleID string) (int64, error) {
	return t.db.Execute(ctx, sqlInsertUserRole, database.Params{"user_id": user.Base().ID, "role_id": roleID})
}

// Remove revokes a single membership.
func (t *UserRoleTable) Remove(ctx context.Context, userID, roleID string) (int64, error) {
	return t.db.Execute(ctx, sqlDeleteUserRole, database.Params{"user_id": userID, "role_id": roleID})
}
