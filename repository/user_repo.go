package repository

import (
	"errors"
	"fmt"

	chaterrors "merry-chat/errors"
	"merry-chat/models"

	"gorm.io/gorm"
)

type UserRepository interface {
	Create(user *models.User) error
	FindByUsername(username string) (*models.User, error)
	FindByID(id string) (*models.User, error)
}

type GormUserRepo struct {
	db *gorm.DB
}

func NewGormUserRepo(db *gorm.DB) *GormUserRepo {
	return &GormUserRepo{db: db}
}

// Migrate creates the relational tables owned by this service.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.User{})
}

func (r *GormUserRepo) Create(user *models.User) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("username = ?", user.Username).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check username: %w", err)
		}
		if count > 0 {
			return chaterrors.ErrUsernameTaken
		}
		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return chaterrors.ErrUsernameTaken
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		return nil
	})
}

func (r *GormUserRepo) FindByUsername(username string) (*models.User, error) {
	return r.first("username = ?", username)
}

func (r *GormUserRepo) FindByID(id string) (*models.User, error) {
	return r.first("id = ?", id)
}

func (r *GormUserRepo) first(query string, arg any) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, chaterrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}
