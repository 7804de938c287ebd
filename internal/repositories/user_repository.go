package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"support-chat/internal/models"
)

// UserRepository reads account records owned by the account service.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (models.User, error)
}

// UserRepo is a read-only sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.User, error) {
	return getUser(ctx, r.db, userID)
}

func getUser(ctx context.Context, q sqlx.QueryerContext, userID string) (models.User, error) {
	if userID == "" {
		return models.User{}, ErrMissingIdentity
	}
	var user models.User
	err := sqlx.GetContext(ctx, q, &user, `SELECT id, email, name FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, storageErr("get user", err)
}
