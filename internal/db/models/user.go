// Package models - user.go defines the User model for fleet staff accounts, including the
// role used for authorization and the name parts used to build display labels.
package models

import (
	"strings"
	"time"
)

// User roles
const (
	RoleAdmin    = "admin"
	RoleGestor   = "gestor"
	RoleOperator = "operador"
	RoleViewer   = "visualizador"
)

// User represents a staff member with access to the admin backend
type User struct {
	ID             string     `json:"id" db:"id"`
	Username       string     `json:"username" db:"username"`
	Email          string     `json:"email" db:"email"`
	PasswordHash   string     `json:"-" db:"password_hash"`
	FirstName      string     `json:"firstName" db:"first_name"`
	SecondName     *string    `json:"secondName,omitempty" db:"second_name"`
	LastName       string     `json:"lastName" db:"last_name"`
	SecondLastName *string    `json:"secondLastName,omitempty" db:"second_last_name"`
	Role           string     `json:"role" db:"role"`
	Phone          *string    `json:"phone,omitempty" db:"phone"`
	Position       *string    `json:"position,omitempty" db:"position"`
	Department     *string    `json:"department,omitempty" db:"department"`
	HireDate       *time.Time `json:"hireDate,omitempty" db:"hire_date"`
	IsActive       bool       `json:"isActive" db:"is_active"`
	LastLogin      *time.Time `json:"lastLogin,omitempty" db:"last_login"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" db:"updated_at"`
}

// FullName joins the non-empty name parts with single spaces.
func (u *User) FullName() string {
	parts := make([]string, 0, 4)
	for _, p := range []*string{&u.FirstName, u.SecondName, &u.LastName, u.SecondLastName} {
		if p != nil && *p != "" {
			parts = append(parts, *p)
		}
	}
	return strings.Join(parts, " ")
}

// DisplayName returns the full name, falling back to the username.
func (u *User) DisplayName() string {
	if name := u.FullName(); name != "" {
		return name
	}
	return u.Username
}
