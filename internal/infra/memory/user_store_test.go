package memory

import (
	"context"
	"testing"

	"quiz-result-service/internal/domain"
)

func TestUserStorePrependsHistory(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore(domain.User{ID: "u1", Username: "alice"})

	if _, err := store.PrependHistory(ctx, "u1", domain.QuizHistoryEntry{ID: "a"}); err != nil {
		t.Fatalf("prepend: %v", err)
	}
	history, err := store.PrependHistory(ctx, "u1", domain.QuizHistoryEntry{ID: "b"})
	if err != nil {
		t.Fatalf("prepend: %v", err)
	}
	if len(history) != 2 || history[0].ID != "b" || history[1].ID != "a" {
		t.Fatalf("expected most recent first, got %+v", history)
	}

	// Mutating the returned slice must not leak into the store.
	history[0].ID = "mutated"
	user, err := store.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if user.QuizHistory[0].ID != "b" {
		t.Fatalf("store history was mutated through returned slice")
	}
}

func TestUserStoreUnknownUser(t *testing.T) {
	store := NewUserStore()
	if _, err := store.FindByID(context.Background(), "nope"); err != domain.ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := store.PrependHistory(context.Background(), "nope", domain.QuizHistoryEntry{}); err != domain.ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
