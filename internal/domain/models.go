// Package domain собирает модели школьного портала.
package domain

import (
	"github.com/alem-hub/schoolportal/internal/domain/enrollment"
	"github.com/alem-hub/schoolportal/internal/domain/student"
	"github.com/alem-hub/schoolportal/internal/domain/user"
	"github.com/alem-hub/schoolportal/internal/elegant"
)

// RegisterModels регистрирует все модели портала в менеджере.
func RegisterModels(m *elegant.Manager) error {
	for _, register := range []func(*elegant.Manager) error{
		user.Register,
		enrollment.Register,
		student.Register,
	} {
		if err := register(m); err != nil {
			return err
		}
	}
	return nil
}
