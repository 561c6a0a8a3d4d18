package repo

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/identity-store-pg/internal/identity/entity"
	"github.com/ovaphlow/pitchfork/identity-store-pg/pkg/database"
)

// timestamp layouts accepted for LockoutEndDateUtc. The first matches what
// database.Text produces; the rest cover rows stored as text.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// hydrateUser fills u from a Users row. now is used when the lockout end
// is absent.
func hydrateUser(u *entity.User, row database.Row, now time.Time) error {
	u.ID = row[fieldID]
	u.UserName = row[fieldUserName]
	u.PasswordHash = optional(row[fieldPasswordHash])
	u.SecurityStamp = optional(row[fieldSecurityStamp])
	u.Email = optional(row[fieldEmail])
	u.PhoneNumber = optional(row[fieldPhoneNumber])

	var err error
	if u.EmailConfirmed, err = parseFlag(row, fieldEmailConfirmed); err != nil {
		return err
	}
	if u.PhoneNumberConfirmed, err = parseFlag(row, fieldPhoneNumberConfirmed); err != nil {
		return err
	}
	if u.TwoFactorEnabled, err = parseFlag(row, fieldTwoFactorEnabled); err != nil {
		return err
	}
	if u.LockoutEnabled, err = parseFlag(row, fieldLockoutEnabled); err != nil {
		return err
	}
	if u.LockoutEndDateUTC, err = parseTimestamp(row, fieldLockoutEndDate, now); err != nil {
		return err
	}
	if u.AccessFailedCount, err = parseCount(row, fieldAccessFailedCount); err != nil {
		return err
	}
	return nil
}

// optional maps an empty or blank column to nil.
func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// parseFlag accepts every strconv.ParseBool form, so both "1" and "True"
// style rows load. Absent means false.
func parseFlag(row database.Row, col string) (bool, error) {
	s := strings.TrimSpace(row[col])
	if s == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("column %s: %w", col, err)
	}
	return v, nil
}

func parseTimestamp(row database.Row, col string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(row[col])
	if s == "" {
		return now, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("column %s: unrecognised timestamp %q", col, s)
}

func parseCount(row database.Row, col string) (int, error) {
	s := strings.TrimSpace(row[col])
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", col, err)
	}
	return n, nil
}
