package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type UserStatus string

const (
	UserStatusActive UserStatus = "active"
	UserStatusBanned UserStatus = "banned"
)

type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Phone        string     `json:"phone,omitempty"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func ValidRole(r Role) bool {
	return r == RoleUser || r == RoleAdmin
}

func ValidUserStatus(s UserStatus) bool {
	return s == UserStatusActive || s == UserStatusBanned
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin && u.Status == UserStatusActive
}

func (u *User) IsBanned() bool {
	return u.Status == UserStatusBanned
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CanonicalEmail folds addresses that reach the same mailbox: case, surrounding
// space and "+tag" suffixes on the local part are ignored.
func CanonicalEmail(email string) string {
	e := NormalizeEmail(email)
	at := strings.LastIndex(e, "@")
	if at <= 0 {
		return e
	}
	local, host := e[:at], e[at:]
	if plus := strings.Index(local, "+"); plus > 0 {
		local = local[:plus]
	}
	return local + host
}
