package app

import (
	"context"

	"github.com/tuniwaste/exchange/internal/domain"
)

// UserService mirrors identities from the session service so that
// references resolve locally.
type UserService struct {
	users UserRepository
}

func NewUserService(users UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) Remember(ctx context.Context, user domain.User) error {
	if !validID(user.ID) {
		return domain.ErrInvalidID
	}
	if !user.Role.Valid() {
		return domain.ErrRoleNotAllowed
	}
	return s.users.UpsertUser(ctx, user)
}

func (s *UserService) Get(ctx context.Context, id string) (domain.User, error) {
	if !validID(id) {
		return domain.User{}, domain.ErrInvalidID
	}
	return s.users.GetUser(ctx, id)
}
