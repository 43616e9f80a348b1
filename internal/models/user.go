package models

import (
	"time"

	"github.com/google/uuid"
)

// Role — закрытое перечисление ролей пользователя.
// Новые роли добавляются здесь и в ParseRole; точки авторизации
// используют исчерпывающий switch, а не сравнение строк.
type Role string

const (
	RoleAdmin    Role = "admin"
	RolePremium  Role = "premium"
	RoleStandard Role = "standard"
)

// ParseRole приводит произвольную строку к известной роли.
// Неизвестные значения сводятся к RoleStandard.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin
	case RolePremium:
		return RolePremium
	case RoleStandard:
		return RoleStandard
	default:
		return RoleStandard
	}
}

// Valid сообщает, является ли роль одной из известных.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePremium, RoleStandard:
		return true
	}

	return false
}

// User — модель пользователя системы.
//
// Пользователи никогда не удаляются физически: деактивация выполняется
// сбросом флага Active.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}
