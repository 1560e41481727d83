package storage

import (
	"context"
	"strings"
	"testing"
)

type fakeRepo struct {
	Repository
}

func fakeFactory(ctx context.Context, cfg Config) (Repository, error) {
	return &fakeRepo{}, nil
}

// TestRegisterAndNew verifies factory selection by kind.
func TestRegisterAndNew(t *testing.T) {
	Register("fake", fakeFactory)

	repo, err := New(context.Background(), Config{Kind: "fake", DSN: "ignored"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, ok := repo.(*fakeRepo); !ok {
		t.Fatalf("New() returned %T, want *fakeRepo", repo)
	}
}

// TestNewRejectsUnknownKind verifies error handling for missing and
// unregistered kinds.
func TestNewRejectsUnknownKind(t *testing.T) {
	if _, err := New(context.Background(), Config{Kind: ""}); err == nil {
		t.Fatal("New() with empty kind succeeded, want error")
	}

	_, err := New(context.Background(), Config{Kind: "no-such-backend"})
	if err == nil {
		t.Fatal("New() with unknown kind succeeded, want error")
	}
	if !strings.Contains(err.Error(), "no-such-backend") {
		t.Errorf("error %q does not name the kind", err)
	}
}

// TestRegisterPanics verifies the fail-fast behavior on bad registration.
func TestRegisterPanics(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{name: "empty_kind", fn: func() { Register("", fakeFactory) }},
		{name: "nil_factory", fn: func() { Register("x", nil) }},
		{name: "duplicate_kind", fn: func() {
			Register("dup", fakeFactory)
			Register("dup", fakeFactory)
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			tc.fn()
		})
	}
}
