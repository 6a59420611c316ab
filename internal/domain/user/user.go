// Package user описывает учётную запись пользователя портала.
// Пароль скрыт при сериализации.
package user

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/schoolportal/internal/elegant"
)

const (
	// ModelName - имя модели в elegant.Manager.
	ModelName = "User"

	// Endpoint - REST-ресурс пользователей.
	Endpoint = "users"
)

// Role определяет роль пользователя на портале.
type Role string

const (
	RoleStudent Role = "student"
	RoleMentor  Role = "mentor"
	RoleAdmin   Role = "admin"
)

// IsStaff возвращает true для сотрудников школы.
func (r Role) IsStaff() bool {
	return r == RoleMentor || r == RoleAdmin
}

// Schema возвращает описание полей пользователя.
func Schema() elegant.Schema {
	return elegant.Schema{
		Name:     ModelName,
		Endpoint: Endpoint,
		Fields: map[string]elegant.Field{
			"Id":        {Type: elegant.TypeInt},
			"StudentId": {Type: elegant.TypeInt},
			"Login":     {Type: elegant.TypeString},
			"Email":     {Type: elegant.TypeString},
			"Password":  {Type: elegant.TypeString},
			"Role":      {Type: elegant.TypeString},
			"LastLogin": {Type: elegant.TypeDate},
		},
		Hidden: []string{"Password"},
	}
}

// Register регистрирует модель пользователя в менеджере.
func Register(m *elegant.Manager) error {
	return m.Register(Schema())
}

// User - типизированная обёртка над моделью пользователя.
type User struct {
	*elegant.Model
}

// Wrap оборачивает модель.
func Wrap(m *elegant.Model) *User {
	if m == nil {
		return nil
	}
	return &User{Model: m}
}

// FindByLogin ищет пользователя по логину. Возвращает nil, если не найден.
func FindByLogin(ctx context.Context, manager *elegant.Manager, login string) (*User, error) {
	b, err := manager.Query(ModelName)
	if err != nil {
		return nil, err
	}
	m, err := b.Where("Login", login).First(ctx)
	if err != nil {
		return nil, fmt.Errorf("find user %q: %w", login, err)
	}
	return Wrap(m), nil
}

// ID возвращает первичный ключ.
func (u *User) ID() int64 {
	return u.Int("Id")
}

// Login возвращает логин.
func (u *User) Login() string {
	return u.String("Login")
}

// Email возвращает email.
func (u *User) Email() string {
	return u.String("Email")
}

// Role возвращает роль.
func (u *User) Role() Role {
	return Role(u.String("Role"))
}

// LastLogin возвращает время последнего входа.
func (u *User) LastLogin() time.Time {
	return u.Time("LastLogin")
}

// Touch выставляет LastLogin в at.
func (u *User) Touch(at time.Time) error {
	return u.SetAttribute("LastLogin", at)
}
