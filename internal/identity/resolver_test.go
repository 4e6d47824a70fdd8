package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/benvon/taskbot/internal/models"
	"github.com/benvon/taskbot/internal/tasks"
)

type mockPersonSource struct {
	queryPersonsFunc func(ctx context.Context) ([]models.Person, error)
	calls            int
}

var _ PersonSource = (*mockPersonSource)(nil)

func (m *mockPersonSource) QueryPersons(ctx context.Context) ([]models.Person, error) {
	m.calls++
	if m.queryPersonsFunc != nil {
		return m.queryPersonsFunc(ctx)
	}
	return nil, nil
}

func staticPersons(persons ...models.Person) *mockPersonSource {
	return &mockPersonSource{
		queryPersonsFunc: func(ctx context.Context) ([]models.Person, error) {
			return persons, nil
		},
	}
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	team := []models.Person{
		{ID: "p1", Username: "@Alice"},
		{ID: "p2", Username: "bob "},
		{ID: "p3", Username: "alice"},
	}

	tests := []struct {
		name     string
		persons  []models.Person
		username string
		wantID   string
		wantErr  error
	}{
		{name: "exact", persons: team, username: "@Alice", wantID: "p1"},
		{name: "case and at-sign insensitive", persons: team, username: "ALICE", wantID: "p1"},
		{name: "stored without at-sign", persons: team, username: "@bob", wantID: "p2"},
		{name: "absent username", persons: team, username: "carol", wantErr: ErrIdentityNotFound},
		{name: "absent with at-sign", persons: team, username: "@Carol", wantErr: ErrIdentityNotFound},
		{name: "empty username", persons: team, username: "  ", wantErr: ErrIdentityNotFound},
		{name: "empty store", persons: nil, username: "alice", wantErr: ErrIdentityNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			id, err := NewResolver(staticPersons(tt.persons...), nil).Resolve(context.Background(), tt.username)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if id != tt.wantID {
				t.Errorf("Expected id %s, got %s", tt.wantID, id)
			}
		})
	}
}

func TestResolver_Resolve_StoreFailure(t *testing.T) {
	t.Parallel()

	source := &mockPersonSource{
		queryPersonsFunc: func(ctx context.Context) ([]models.Person, error) {
			return nil, tasks.ErrStoreUnavailable
		},
	}

	_, err := NewResolver(source, nil).Resolve(context.Background(), "alice")
	if !errors.Is(err, tasks.ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}
	if errors.Is(err, ErrIdentityNotFound) {
		t.Error("Store failure must not be reported as not found")
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"@Alice":   "alice",
		"  bob  ":  "bob",
		" @ Carol": "carol",
		"":         "",
		"@":        "",
	}
	for input, want := range tests {
		if got := Normalize(input); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", input, got, want)
		}
	}
}
