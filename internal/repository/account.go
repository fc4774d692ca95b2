package repository

import (
	"context"

	"knot/internal/models"

	"gorm.io/gorm"
)

// AccountRepository defines persistence operations for login accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Delete(ctx context.Context, id string) error
}

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository returns a new AccountRepository implementation.
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("An account with this email already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, lookupError(err, "Account", id)
	}
	return &account, nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&account).Error; err != nil {
		return nil, lookupError(err, "Account", email)
	}
	return &account, nil
}

// Delete removes the account and its sessions.
func (r *accountRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", id).Delete(&models.Session{}).Error; err != nil {
			return models.NewInternalError(err)
		}
		if err := tx.Where("id = ?", id).Delete(&models.Account{}).Error; err != nil {
			return models.NewInternalError(err)
		}
		return nil
	})
}
