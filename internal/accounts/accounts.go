// Package accounts manages back-office logins and the staff register.
package accounts

import (
	"context"
	"errors"
	"strings"

	"go-pos-ledger/internal/apperr"
	"go-pos-ledger/internal/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLen = 6

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	hashCost int
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func WithHashCost(cost int) Option { return func(s *Service) { s.hashCost = cost } }

func New(db *gorm.DB, opts ...Option) *Service {
	s := &Service{db: db, log: zap.NewNop(), hashCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type NewUser struct {
	Username string  `json:"username" binding:"required"`
	Password string  `json:"password" binding:"required"`
	Role     string  `json:"role"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
}

func validRole(role string) bool {
	switch role {
	case models.RoleAdmin, models.RoleManager, models.RoleCashier:
		return true
	}
	return false
}

func (s *Service) CreateUser(ctx context.Context, in NewUser) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, apperr.Validation("Username is required")
	}
	if len(in.Password) < minPasswordLen {
		return nil, apperr.Validation("Password must be at least %d characters", minPasswordLen)
	}
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if role == "" {
		role = models.RoleCashier
	}
	if !validRole(role) {
		return nil, apperr.Validation("Unknown role %q", in.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, apperr.Storage("hash password", err)
	}
	user := &models.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		Email:        normalizeEmail(in.Email),
		Phone:        normalizePhone(in.Phone),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Where("LOWER(username) = ?", strings.ToLower(username)).Count(&n).Error; err != nil {
			return apperr.Storage("check username", err)
		}
		if n > 0 {
			return apperr.New(apperr.KindConflict, apperr.CodeDuplicateName, "Username %q is taken", username)
		}
		if err := ensureContactFree(tx, &models.User{}, user.Email, user.Phone, 0); err != nil {
			return err
		}
		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return duplicateContact()
			}
			return apperr.Storage("create user", err)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.From("create user", err)
	}
	s.log.Info("user created", zap.Uint("user_id", user.ID), zap.String("role", user.Role))
	return user, nil
}

// Authenticate checks a username and password. Unknown users and wrong
// passwords give the same error.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	invalid := apperr.New(apperr.KindAuth, apperr.CodeUnauthorized, "Invalid credentials")

	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, apperr.Storage("load user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.log.Info("login failed", zap.String("username", user.Username))
		return nil, invalid
	}
	return &user, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("username ASC").Find(&users).Error; err != nil {
		return nil, apperr.Storage("list users", err)
	}
	return users, nil
}

// CountUsers is used to let the very first registration create an admin.
func (s *Service) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&n).Error; err != nil {
		return 0, apperr.Storage("count users", err)
	}
	return n, nil
}

func (s *Service) DeleteUser(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.User{}, id)
		if res.Error != nil {
			return apperr.Storage("delete user", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("User %d not found", id)
		}
		// Staff records outlive their login.
		if err := tx.Model(&models.Employee{}).Where("user_id = ?", id).Update("user_id", nil).Error; err != nil {
			return apperr.Storage("unlink employee", err)
		}
		return nil
	})
	if err != nil {
		return apperr.From("delete user", err)
	}
	s.log.Info("user deleted", zap.Uint("user_id", id))
	return nil
}

// ensureContactFree rejects an email or phone already used by another row of model's table.
func ensureContactFree(tx *gorm.DB, model any, email, phone *string, exceptID uint) error {
	check := func(column string, value *string) error {
		if value == nil {
			return nil
		}
		var n int64
		q := tx.Model(model).Where(column+" = ?", *value)
		if exceptID != 0 {
			q = q.Where("id <> ?", exceptID)
		}
		if err := q.Count(&n).Error; err != nil {
			return apperr.Storage("check "+column, err)
		}
		if n > 0 {
			return duplicateContact()
		}
		return nil
	}
	if err := check("email", email); err != nil {
		return err
	}
	return check("phone", phone)
}

func duplicateContact() *apperr.Error {
	return apperr.New(apperr.KindConflict, apperr.CodeDuplicateContact, "Email or phone is already registered")
}

func normalizeEmail(v *string) *string {
	if v == nil {
		return nil
	}
	e := strings.ToLower(strings.TrimSpace(*v))
	if e == "" {
		return nil
	}
	return &e
}

func normalizePhone(v *string) *string {
	if v == nil {
		return nil
	}
	p := strings.Join(strings.Fields(*v), "")
	if p == "" {
		return nil
	}
	return &p
}
