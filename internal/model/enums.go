package model

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type PasscodePurpose string

const (
	PurposeAdminLogin   PasscodePurpose = "admin_login"
	PurposeLogin        PasscodePurpose = "login"
	PurposeRegistration PasscodePurpose = "registration"
)

func (p PasscodePurpose) Valid() bool {
	switch p {
	case PurposeAdminLogin, PurposeLogin, PurposeRegistration:
		return true
	}
	return false
}
