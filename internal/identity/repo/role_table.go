package repo

import (
	"context"

	"github.com/ovaphlow/pitchfork/identity-store-pg/internal/identity/entity"
	"github.com/ovaphlow/pitchfork/identity-store-pg/pkg/database"
)

var (
	selectRoles = "SELECT " + q(fieldID) + ", " + q(fieldRoleName) + " FROM " + rolesTable

	sqlInsertRole   = "INSERT INTO " + rolesTable + " (" + q(fieldID) + ", " + q(fieldRoleName) + ") VALUES (:id, :name)"
	sqlUpdateRole   = "UPDATE " + rolesTable + " SET " + q(fieldRoleName) + " = :name WHERE " + q(fieldID) + " = :id"
	sqlDeleteRole   = "DELETE FROM " + rolesTable + " WHERE " + q(fieldID) + " = :id"
	sqlRoleNameByID = "SELECT " + q(fieldRoleName) + " FROM " + rolesTable + " WHERE " + q(fieldID) + " = :id"
	sqlRoleIDByName = "SELECT " + q(fieldID) + " FROM " + rolesTable + " WHERE " + q(fieldRoleName) + " = :name"
	sqlRoleByID     = selectRoles + " WHERE " + q(fieldID) + " = :id"
	sqlRoleByName   = selectRoles + " WHERE " + q(fieldRoleName) + " = :name"
)

// RoleTable is the gateway for the Roles table.
type RoleTable struct {
	db *database.Database
}

func NewRoleTable(db *database.Database) *RoleTable {
	return &RoleTable{db: db}
}

func (t *RoleTable) Insert(ctx context.Context, role *entity.Role) (int64, error) {
	return t.db.Execute(ctx, sqlInsertRole, database.Params{"id": role.ID, "name": role.Name})
}

func (t *RoleTable) Update(ctx context.Context, role *entity.Role) (int64, error) {
	return t.db.Execute(ctx, sqlUpdateRole, database.Params{"id": role.ID, "name": role.Name})
}

func (t *RoleTable) Delete(ctx context.Context, roleID string) (int64, error) {
	return t.db.Execute(ctx, sqlDeleteRole, database.Params{"id": roleID})
}

func (t *RoleTable) GetRoleName(ctx context.Context, roleID string) (*string, error) {
	return t.db.GetStrValue(ctx, sqlRoleNameByID, database.Params{"id": roleID})
}

func (t *RoleTable) GetRoleID(ctx context.Context, name string) (*string, error) {
	return t.db.GetStrValue(ctx, sqlRoleIDByName, database.Params{"name": name})
}

// GetByID returns nil when no role matches.
func (t *RoleTable) GetByID(ctx context.Context, roleID string) (*entity.Role, error) {
	return t.one(ctx, sqlRoleByID, database.Params{"id": roleID})
}

// GetByName returns nil when no role matches.
func (t *RoleTable) GetByName(ctx context.Context, name string) (*entity.Role, error) {
	return t.one(ctx, sqlRoleByName, database.Params{"name": name})
}

func (t *RoleTable) one(ctx context.Context, query string, params database.Params) (*entity.Role, error) {
	rows, err := t.db.Query(ctx, query, params)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, nil
	}
	return &entity.Role{ID: rows[0][fieldID], Name: rows[0][fieldRoleName]}, nil
}
