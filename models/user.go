package models

import (
	"time"

	"github.com/google/uuid"
)

// RoleName identifies one of the caller kinds known to the system
type RoleName string

const (
	RoleAdmin   RoleName = "ADMIN"
	RoleTrainer RoleName = "TRAINER"
	RoleTrainee RoleName = "TRAINEE"
)

// AllRoles lists every role seeded into the roles table
var AllRoles = []RoleName{RoleAdmin, RoleTrainer, RoleTrainee}

// Valid reports whether r is a known role
func (r RoleName) Valid() bool {
	switch r {
	case RoleAdmin, RoleTrainer, RoleTrainee:
		return true
	}
	return false
}

// User represents an account able to log in
type User struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	FirstName    string     `json:"first_name" db:"first_name"`
	LastName     string     `json:"last_name" db:"last_name"`
	Username     string     `json:"username" db:"username"`
	PasswordHash string     `json:"-" db:"password_hash"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	Roles        []RoleName `json:"roles" db:"-"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// NewUser creates a new active User instance
func NewUser(firstName, lastName, username, passwordHash string, roles ...RoleName) *User {
	now := time.Now()
	return &User{
		ID:           uuid.New(),
		FirstName:    firstName,
		LastName:     lastName,
		Username:     username,
		PasswordHash: passwordHash,
		IsActive:     true,
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// UserStatus is the externally visible activation state of a profile
type UserStatus string

const (
	UserStatusActive   UserStatus = "ACTIVE"
	UserStatusInactive UserStatus = "INACTIVE"
)

// IsActive maps the status to the stored flag
func (s UserStatus) IsActive() bool {
	return s == UserStatusActive
}
