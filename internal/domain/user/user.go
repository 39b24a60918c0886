package user

import (
	"slices"
	"time"

	"github.com/example/sportshop/internal/apperr"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

const (
	MaxFailedLogins = 5
	LockDuration    = 30 * time.Minute
)

var (
	ErrUserNotFound       = apperr.NotFound("user not found")
	ErrAddressNotFound    = apperr.NotFound("address not found")
	ErrInvalidEmail       = apperr.Validation("invalid email address")
	ErrInvalidName        = apperr.Validation("name is required")
	ErrInvalidPhone       = apperr.Validation("phone number must have 10 or 11 digits")
	ErrInvalidRole        = apperr.Validation("unknown role")
	ErrInvalidAddress     = apperr.Validation("street and district are required")
	ErrUnknownDistrict    = apperr.Validation("unrecognised district")
	ErrEmailTaken         = apperr.New(apperr.KindConflict, "email already registered")
	ErrInvalidCredentials = apperr.Unauthorized("invalid email or password")
	ErrAccountLocked      = apperr.Unauthorized("account is temporarily locked after too many failed logins")
	ErrUserDeactivated    = apperr.Unauthorized("user account is deactivated")
	ErrWrongPassword      = apperr.Validation("current password is incorrect")
	ErrSelfModification   = apperr.DomainConstraint("admins cannot change their own role or status")
	ErrConcurrentUpdate   = apperr.Conflict("user was modified by another request")
)

type Address struct {
	ID           string `json:"id" bson:"id"`
	Label        string `json:"label,omitempty" bson:"label,omitempty"`
	Recipient    string `json:"recipient,omitempty" bson:"recipient,omitempty"`
	Phone        string `json:"phone,omitempty" bson:"phone,omitempty"`
	Street       string `json:"street" bson:"street"`
	Ward         string `json:"ward,omitempty" bson:"ward,omitempty"`
	DistrictCode string `json:"district_code" bson:"district_code"`
	DistrictName string `json:"district_name" bson:"district_name"`
	IsDefault    bool   `json:"is_default" bson:"is_default"`
}

type User struct {
	ID           string     `json:"id" bson:"_id"`
	Email        string     `json:"email" bson:"email"`
	PasswordHash string     `json:"-" bson:"password_hash"`
	Name         string     `json:"name" bson:"name"`
	Phone        string     `json:"phone,omitempty" bson:"phone,omitempty"`
	Role         Role       `json:"role" bson:"role"`
	IsActive     bool       `json:"is_active" bson:"is_active"`
	Addresses    []Address  `json:"addresses" bson:"addresses"`
	Favorites    []string   `json:"favorites" bson:"favorites"`
	FailedLogins int        `json:"-" bson:"failed_logins"`
	LockedUntil  *time.Time `json:"-" bson:"locked_until,omitempty"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" bson:"last_login_at,omitempty"`
	Version      int        `json:"-" bson:"version"`
	CreatedAt    time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" bson:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsLocked reports whether a login lock is still in force at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// releaseExpiredLock clears a lock whose window has passed together with the
// failure counter that caused it.
func (u *User) releaseExpiredLock(now time.Time) bool {
	if u.LockedUntil == nil || now.Before(*u.LockedUntil) {
		return false
	}
	u.LockedUntil = nil
	u.FailedLogins = 0
	return true
}

func (u *User) recordFailure(now time.Time) {
	u.FailedLogins++
	if u.FailedLogins >= MaxFailedLogins {
		until := now.Add(LockDuration)
		u.LockedUntil = &until
	}
}

func (u *User) recordSuccess(now time.Time) {
	u.FailedLogins = 0
	u.LockedUntil = nil
	at := now
	u.LastLoginAt = &at
}

func (u *User) addressIndex(id string) int {
	return slices.IndexFunc(u.Addresses, func(a Address) bool { return a.ID == id })
}

// ensureDefault keeps exactly one default address when any exist.
func (u *User) ensureDefault() {
	if len(u.Addresses) == 0 || slices.ContainsFunc(u.Addresses, func(a Address) bool { return a.IsDefault }) {
		return
	}
	u.Addresses[0].IsDefault = true
}

func (u *User) IsFavorite(productID string) bool {
	return slices.Contains(u.Favorites, productID)
}

func (u *User) Clone() *User {
	cp := *u
	cp.Addresses = slices.Clone(u.Addresses)
	cp.Favorites = slices.Clone(u.Favorites)
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		cp.LockedUntil = &t
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		cp.LastLoginAt = &t
	}
	return &cp
}
