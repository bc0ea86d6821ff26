// Package files turns stored document names into URLs a client can fetch.
// The core never stores file bytes; uploads happen out of band.
package files

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
)

var ErrInvalidName = errors.New("invalid file name")

// Resolver maps a stored document or attachment name to a retrieval URL.
type Resolver interface {
	URL(ctx context.Context, name string) (string, error)
}

// Local serves names relative to a static base URL.
type Local struct {
	base string
}

func NewLocal(baseURL string) *Local {
	return &Local{base: strings.TrimRight(baseURL, "/")}
}

func (l *Local) URL(_ context.Context, name string) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	parts := strings.Split(clean, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return l.base + "/" + strings.Join(parts, "/"), nil
}

// cleanName rejects names that would escape the storage root.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, `\`) {
		return "", ErrInvalidName
	}
	clean := path.Clean("/" + name)
	if clean == "/" || clean != "/"+strings.TrimPrefix(name, "/") {
		return "", ErrInvalidName
	}
	return strings.TrimPrefix(clean, "/"), nil
}
