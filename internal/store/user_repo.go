package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"promptmaster-nano/internal/model"
)

type UserRepository interface {
	Save(ctx context.Context, u *model.User) error
	Get(ctx context.Context, id string) (*model.User, error)
	SetLoggedIn(ctx context.Context, id string, loggedIn bool) error
}

type userRepo struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepo{db: db}
}

// Save inserts or fully replaces the user row.
func (r *userRepo) Save(ctx context.Context, u *model.User) error {
	return r.db.WithContext(ctx).Save(u).Error
}

func (r *userRepo) Get(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) SetLoggedIn(ctx context.Context, id string, loggedIn bool) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("is_logged_in", loggedIn)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
