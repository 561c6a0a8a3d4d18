package repo

import (
	"strings"

	"github.com/ovaphlow/pitchfork/identity-store-pg/pkg/database"
)

// Schema holds every identity table.
const Schema = "public"

// Users table.
const (
	usersTableName            = "Users"
	fieldID                   = "Id"
	fieldUserName             = "UserName"
	fieldPasswordHash         = "PasswordHash"
	fieldSecurityStamp        = "SecurityStamp"
	fieldEmail                = "Email"
	fieldEmailConfirmed       = "EmailConfirmed"
	fieldPhoneNumber          = "PhoneNumber"
	fieldPhoneNumberConfirmed = "PhoneNumberConfirmed"
	fieldTwoFactorEnabled     = "TwoFactorEnabled"
	fieldLockoutEndDate       = "LockoutEndDateUtc"
	fieldLockoutEnabled       = "LockoutEnabled"
	fieldAccessFailedCount    = "AccessFailedCount"
)

// Roles table.
const (
	rolesTableName = "Roles"
	fieldRoleName  = "Name"
)

// UserRoles table.
const (
	userRolesTableName = "UserRoles"
	fieldUserID        = "UserId"
	fieldRoleID        = "RoleId"
)

// UserClaims table.
const (
	userClaimsTableName = "UserClaims"
	fieldClaimType      = "ClaimType"
	fieldClaimValue     = "ClaimValue"
)

var (
	usersTable      = database.QualifiedName(Schema, usersTableName)
	rolesTable      = database.QualifiedName(Schema, rolesTableName)
	userRolesTable  = database.QualifiedName(Schema, userRolesTableName)
	userClaimsTable = database.QualifiedName(Schema, userClaimsTableName)
)

var q = database.Quote

// column pairs a table column with the named parameter that carries it.
type column struct {
	name  string
	param string
}

// userColumns is the full Users row in insert order.
var userColumns = []column{
	{fieldID, "id"},
	{fieldUserName, "user_name"},
	{fieldPasswordHash, "password_hash"},
	{fieldSecurityStamp, "security_stamp"},
	{fieldEmail, "email"},
	{fieldEmailConfirmed, "email_confirmed"},
	{fieldPhoneNumber, "phone_number"},
	{fieldPhoneNumberConfirmed, "phone_number_confirmed"},
	{fieldTwoFactorEnabled, "two_factor_enabled"},
	{fieldLockoutEndDate, "lockout_end_date"},
	{fieldLockoutEnabled, "lockout_enabled"},
	{fieldAccessFailedCount, "access_failed_count"},
}

// columnList renders `"A", "B"`.
func columnList(cols []column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = q(c.name)
	}
	return strings.Join(names, ", ")
}

// paramList renders `:a, :b`.
func paramList(cols []column) string {
	params := make([]string, len(cols))
	for i, c := range cols {
		params[i] = ":" + c.param
	}
	return strings.Join(params, ", ")
}

// assignList renders `"A" = :a, "B" = :b`.
func assignList(cols []column) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = q(c.name) + " = :" + c.param
	}
	return strings.Join(parts, ", ")
}
