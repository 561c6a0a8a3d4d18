package entity

import "time"

// User represents an account row in the Users table.
// Optional text columns are nil when absent; an empty string is never stored
// back as a value by hydration.
type User struct {
	ID                   string    `json:"id"`
	UserName             string    `json:"user_name"`
	PasswordHash         *string   `json:"-"`
	SecurityStamp        *string   `json:"-"`
	Email                *string   `json:"email,omitempty"`
	EmailConfirmed       bool      `json:"email_confirmed"`
	PhoneNumber          *string   `json:"phone_number,omitempty"`
	PhoneNumberConfirmed bool      `json:"phone_number_confirmed"`
	TwoFactorEnabled     bool      `json:"two_factor_enabled"`
	LockoutEndDateUTC    time.Time `json:"lockout_end_date_utc"`
	LockoutEnabled       bool      `json:"lockout_enabled"`
	AccessFailedCount    int       `json:"access_failed_count"`
}

// Base returns u itself so *User satisfies Account.
func (u *User) Base() *User { return u }

// Account is any user record the store can persist. Extended record types
// embed User and get Base for free.
type Account interface {
	Base() *User
}

// Role is a row in the Roles table.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
