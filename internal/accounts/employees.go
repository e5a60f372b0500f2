package accounts

import (
	"context"
	"errors"
	"strings"

	"go-pos-ledger/internal/apperr"
	"go-pos-ledger/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type EmployeeInput struct {
	Name        string          `json:"name" binding:"required"`
	Phone       *string         `json:"phone"`
	Email       *string         `json:"email"`
	Designation string          `json:"designation"`
	Salary      decimal.Decimal `json:"salary"`
	UserID      *uint           `json:"user_id"`
}

// EmployeePatch holds the fields UpdateEmployee may change; nil means unchanged.
type EmployeePatch struct {
	Name        *string          `json:"name"`
	Phone       *string          `json:"phone"`
	Email       *string          `json:"email"`
	Designation *string          `json:"designation"`
	Salary      *decimal.Decimal `json:"salary"`
	UserID      *uint            `json:"user_id"`
}

func (s *Service) CreateEmployee(ctx context.Context, in EmployeeInput) (*models.Employee, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("Employee name is required")
	}
	if in.Salary.IsNegative() {
		return nil, apperr.Validation("Salary cannot be negative")
	}
	emp := &models.Employee{
		Name:        name,
		Phone:       normalizePhone(in.Phone),
		Email:       normalizeEmail(in.Email),
		Designation: strings.TrimSpace(in.Designation),
		Salary:      in.Salary.Round(2),
		UserID:      in.UserID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureUserExists(tx, emp.UserID); err != nil {
			return err
		}
		if err := ensureContactFree(tx, &models.Employee{}, emp.Email, emp.Phone, 0); err != nil {
			return err
		}
		if err := tx.Create(emp).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return duplicateContact()
			}
			return apperr.Storage("create employee", err)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.From("create employee", err)
	}
	s.log.Info("employee created", zap.Uint("employee_id", emp.ID))
	return emp, nil
}

func (s *Service) UpdateEmployee(ctx context.Context, id uint, p EmployeePatch) (*models.Employee, error) {
	var emp models.Employee
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&emp, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("Employee %d not found", id)
			}
			return apperr.Storage("load employee", err)
		}

		updates := map[string]any{}
		if p.Name != nil {
			name := strings.TrimSpace(*p.Name)
			if name == "" {
				return apperr.Validation("Employee name is required")
			}
			updates["name"] = name
		}
		if p.Designation != nil {
			updates["designation"] = strings.TrimSpace(*p.Designation)
		}
		if p.Salary != nil {
			if p.Salary.IsNegative() {
				return apperr.Validation("Salary cannot be negative")
			}
			updates["salary"] = p.Salary.Round(2)
		}
		email, phone := normalizeEmail(p.Email), normalizePhone(p.Phone)
		if err := ensureContactFree(tx, &models.Employee{}, email, phone, id); err != nil {
			return err
		}
		if p.Email != nil {
			updates["email"] = email
		}
		if p.Phone != nil {
			updates["phone"] = phone
		}
		if p.UserID != nil {
			if err := ensureUserExists(tx, p.UserID); err != nil {
				return err
			}
			updates["user_id"] = *p.UserID
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&emp).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return duplicateContact()
			}
			return apperr.Storage("update employee", err)
		}
		return tx.First(&emp, id).Error
	})
	if err != nil {
		return nil, apperr.From("update employee", err)
	}
	return &emp, nil
}

func (s *Service) ListEmployees(ctx context.Context) ([]models.Employee, error) {
	var out []models.Employee
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&out).Error; err != nil {
		return nil, apperr.Storage("list employees", err)
	}
	return out, nil
}

func (s *Service) DeleteEmployee(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Employee{}, id)
	if res.Error != nil {
		return apperr.Storage("delete employee", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Employee %d not found", id)
	}
	s.log.Info("employee deleted", zap.Uint("employee_id", id))
	return nil
}

func ensureUserExists(tx *gorm.DB, id *uint) error {
	if id == nil {
		return nil
	}
	var n int64
	if err := tx.Model(&models.User{}).Where("id = ?", *id).Count(&n).Error; err != nil {
		return apperr.Storage("check user", err)
	}
	if n == 0 {
		return apperr.NotFound("User %d not found", *id)
	}
	return nil
}
