package models

// RoleName — имя роли.
type RoleName string

const (
	RoleUser    RoleName = "USER"
	RoleManager RoleName = "MANAGER"
	RoleAdmin   RoleName = "ADMIN"
)

// AuthorityPrefix — префикс, с которым роль попадает в набор полномочий принципала.
const AuthorityPrefix = "ROLE_"

// Valid сообщает, известна ли роль.
func (n RoleName) Valid() bool {
	switch n {
	case RoleUser, RoleManager, RoleAdmin:
		return true
	}

	return false
}

// Authority возвращает полномочие вида ROLE_<name>.
func (n RoleName) Authority() string {
	return AuthorityPrefix + string(n)
}

// Role — роль из справочника roles.
type Role struct {
	ID          int64
	Name        RoleName
	Description string
}
