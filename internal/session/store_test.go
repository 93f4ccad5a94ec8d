package session

import (
	"context"
	"errors"
	"testing"

	"verifica18-backend/internal/models"

	"github.com/google/uuid"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	userID := uuid.New()

	if _, err := store.Get(context.Background(), userID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("esperado ErrNotFound, veio %v", err)
	}

	sess := &models.Session{
		UserID: userID,
		Draft: models.Draft{
			Nome:     "Ana",
			Idade:    "19",
			Email:    "a@a.com",
			Whatsapp: "11999999999",
		},
		Submitted: true,
	}
	if err := store.Save(context.Background(), sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Draft.Nome != "Ana" || !got.Submitted {
		t.Errorf("sessão não sobreviveu ao round-trip: %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("updatedAt não preenchido no save")
	}
}

// As fotos nunca podem sobreviver à persistência, só os campos textuais
func TestMemoryStoreStripsBinaries(t *testing.T) {
	store := NewMemoryStore()
	userID := uuid.New()

	sess := &models.Session{
		UserID: userID,
		Draft: models.Draft{
			Nome:       "Ana",
			FotoFrente: &models.DocumentImage{Data: []byte{1, 2, 3}},
			FotoVerso:  &models.DocumentImage{Data: []byte{4, 5, 6}},
		},
	}
	if err := store.Save(context.Background(), sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Draft.FotoFrente != nil || got.Draft.FotoVerso != nil {
		t.Error("binários não deveriam ser persistidos")
	}
	if got.Draft.Nome != "Ana" {
		t.Error("campos textuais deveriam ser persistidos")
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	userID := uuid.New()

	if err := store.Save(context.Background(), &models.Session{UserID: userID}); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(context.Background(), userID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(context.Background(), userID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("esperado ErrNotFound após delete, veio %v", err)
	}
}
