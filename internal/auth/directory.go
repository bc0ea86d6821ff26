package auth

import (
	"context"

	lru "github.com/hashicorp/golang-lru"

	"github.com/tuniwaste/exchange/internal/domain"
)

// UserStore is the persistent user mirror.
type UserStore interface {
	Remember(ctx context.Context, user domain.User) error
	Get(ctx context.Context, id string) (domain.User, error)
}

// Directory fronts the user mirror with an LRU so that authenticated
// requests only write when a principal's claims change.
type Directory struct {
	store UserStore
	cache *lru.Cache
}

func NewDirectory(store UserStore, size int) (*Directory, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Directory{store: store, cache: cache}, nil
}

func (d *Directory) Remember(ctx context.Context, user domain.User) error {
	if v, ok := d.cache.Get(user.ID); ok && v.(domain.User) == user {
		return nil
	}
	if err := d.store.Remember(ctx, user); err != nil {
		return err
	}
	d.cache.Add(user.ID, user)
	return nil
}

func (d *Directory) Lookup(ctx context.Context, id string) (domain.User, error) {
	if v, ok := d.cache.Get(id); ok {
		return v.(domain.User), nil
	}
	user, err := d.store.Get(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	d.cache.Add(id, user)
	return user, nil
}
