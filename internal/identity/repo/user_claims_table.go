package repo

import (
	"context"

	"github.com/ovaphlow/pitchfork/identity-store-pg/internal/identity/entity"
	"github.com/ovaphlow/pitchfork/identity-store-pg/pkg/database"
)

var (
	sqlClaimsForUser    = "SELECT " + q(fieldClaimType) + ", " + q(fieldClaimValue) + " FROM " + userClaimsTable + " WHERE " + q(fieldUserID) + " = :user_id"
	sqlDeleteUserClaims = "DELETE FROM " + userClaimsTable + " WHERE " + q(fieldUserID) + " = :user_id"
	sqlInsertUserClaim  = "INSERT INTO " + userClaimsTable + " (" + q(fieldClaimValue) + ", " + q(fieldClaimType) + ", " + q(fieldUserID) + ") VALUES (:value, :type, :user_id)"
	sqlDeleteUserClaim  = "DELETE FROM " + userClaimsTable + " WHERE " + q(fieldUserID) + " = :user_id AND " +
		q(fieldClaimValue) + " = :value AND " + q(fieldClaimType) + " = :type"
)

// UserClaimsTable is the gateway for the UserClaims table. Duplicate
// (type, value) pairs per user are allowed.
type UserClaimsTable struct {
	db *database.Database
}

func NewUserClaimsTable(db *database.Database) *UserClaimsTable {
	return &UserClaimsTable{db: db}
}

// FindByUserID returns the user's claims; no rows gives an empty set.
func (t *UserClaimsTable) FindByUserID(ctx context.Context, userID string) (*entity.ClaimSet, error) {
	rows, err := t.db.Query(ctx, sqlClaimsForUser, database.Params{"user_id": userID})
	if err != nil {
		return nil, err
	}
	claims := entity.NewClaimSet()
	for _, row := range rows {
		claims.Add(entity.Claim{Type: row[fieldClaimType], Value: row[fieldClaimValue]})
	}
	return claims, nil
}

// Delete removes every claim of userID.
func (t *UserClaimsTable) Delete(ctx context.Context, userID string) (int64, error) {
	return t.db.Execute(ctx, sqlDeleteUserClaims, database.Params{"user_id": userID})
}

func (t *UserClaimsTable) Insert(ctx context.Context, claim entity.Claim, userID string) (int64, error) {
	return t.db.Execute(ctx, sqlInsertUserClaim, database.Params{"value": claim.Value, "type": claim.Type, "user_id": userID})
}

// DeleteClaim removes rows matching the user id, type and value exactly.
func (t *UserClaimsTable) DeleteClaim(ctx context.Context, user entity.Account, claim entity.Claim) (int64, error) {
	return t.db.Execute(ctx, sqlDeleteUserClaim, database.Params{"user_id": user.Base().ID, "value": claim.Value, "type": claim.Type})
}
