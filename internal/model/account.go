package model

import (
	"time"
)

type Account struct {
	ID          string     `db:"id" json:"id"`
	Email       string     `db:"email" json:"email"`
	DisplayName string     `db:"display_name" json:"displayName"`
	Role        Role       `db:"role" json:"role"`
	VerifiedAt  *time.Time `db:"verified_at" json:"verifiedAt,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type CreateAccountParams struct {
	Email       string
	DisplayName string
	Role        Role
	Verified    bool
}
