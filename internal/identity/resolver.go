// Package identity maps chat usernames to person records in the task store.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benvon/taskbot/internal/logger"
	"github.com/benvon/taskbot/internal/models"
	"go.uber.org/zap"
)

// ErrIdentityNotFound is returned when no person record carries the username
var ErrIdentityNotFound = errors.New("identity not found")

// PersonSource lists the person records known to the task store
type PersonSource interface {
	QueryPersons(ctx context.Context) ([]models.Person, error)
}

// ResolverInterface resolves chat usernames to person ids
type ResolverInterface interface {
	Resolve(ctx context.Context, username string) (string, error)
}

// Resolver scans the store's person records for a matching username
type Resolver struct {
	source PersonSource
	logger *zap.Logger
}

var _ ResolverInterface = (*Resolver)(nil)

// NewResolver creates a new identity resolver
func NewResolver(source PersonSource, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{source: source, logger: logger}
}

// Resolve returns the id of the first person whose stored username matches.
// Matching ignores surrounding whitespace, a leading "@" and letter case.
func (r *Resolver) Resolve(ctx context.Context, username string) (string, error) {
	want := Normalize(username)
	if want == "" {
		return "", ErrIdentityNotFound
	}

	persons, err := r.source.QueryPersons(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to query persons: %w", err)
	}

	for _, p := range persons {
		if Normalize(p.Username) == want {
			return p.ID, nil
		}
	}

	r.logger.Debug("identity_not_found",
		zap.String("username", logger.SanitizeUsername(username)),
		zap.Int("persons_scanned", len(persons)),
	)
	return "", ErrIdentityNotFound
}

// Normalize canonicalises a username for comparison
func Normalize(username string) string {
	username = strings.TrimSpace(username)
	username = strings.TrimPrefix(username, "@")
	return strings.ToLower(strings.TrimSpace(username))
}
