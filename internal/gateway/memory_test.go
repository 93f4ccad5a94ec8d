package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"verifica18-backend/internal/models"
	"verifica18-backend/internal/storage"

	"github.com/google/uuid"
)

func newTestGateway() *MemoryGateway {
	return NewMemoryGateway(storage.NewMemoryImageStore())
}

func testSubmission(owner uuid.UUID) *models.Submission {
	return &models.Submission{
		Nome:          "Carlos Silva",
		Idade:         25,
		Email:         "carlos@email.com",
		Whatsapp:      "11999999999",
		FotoFrenteURL: "memory://uploads/frente.jpg",
		FotoVersoURL:  "memory://uploads/verso.jpg",
		UserID:        owner,
	}
}

func mustCreate(t *testing.T, g *MemoryGateway, owner uuid.UUID) *models.Submission {
	t.Helper()
	sub := testSubmission(owner)
	if err := g.CreateSubmission(context.Background(), sub); err != nil {
		t.Fatalf("create: %v", err)
	}
	return sub
}

func TestCreateSubmissionAssignsIdentity(t *testing.T) {
	g := newTestGateway()
	sub := mustCreate(t, g, uuid.New())

	if sub.ID == uuid.Nil {
		t.Error("ID não atribuído")
	}
	if sub.Status != models.StatusPending {
		t.Errorf("status inicial = %q, esperado pending", sub.Status)
	}
	if sub.CreatedAt.IsZero() {
		t.Error("createdAt não definido")
	}
}

func TestCreateSubmissionRejectsMalformed(t *testing.T) {
	g := newTestGateway()

	sub := testSubmission(uuid.New())
	sub.Nome = ""

	err := g.CreateSubmission(context.Background(), sub)
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("esperado *PersistenceError, veio %v", err)
	}
}

func TestListSubmissionsNewestFirstAndScoped(t *testing.T) {
	g := newTestGateway()
	ownerA := uuid.New()
	ownerB := uuid.New()

	// Cria em instantes distintos para a ordenação ser observável
	first := testSubmission(ownerA)
	g.now = func() time.Time { return time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC) }
	if err := g.CreateSubmission(context.Background(), first); err != nil {
		t.Fatal(err)
	}
	second := testSubmission(ownerA)
	g.now = func() time.Time { return time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC) }
	if err := g.CreateSubmission(context.Background(), second); err != nil {
		t.Fatal(err)
	}
	other := testSubmission(ownerB)
	if err := g.CreateSubmission(context.Background(), other); err != nil {
		t.Fatal(err)
	}

	all, err := g.ListSubmissions(context.Background(), Filter{OwnerID: &ownerA})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("esperado 2 do dono A, veio %d", len(all))
	}
	if all[0].ID != second.ID {
		t.Error("mais recente deveria vir primeiro")
	}

	none, err := g.ListSubmissions(context.Background(), Filter{OwnerID: &ownerA, Status: statusPtr(models.StatusApproved)})
	if err != nil {
		t.Fatalf("list vazio: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("resultado vazio deve ser fatia vazia, veio %#v", none)
	}
}

func TestUpdateStatusLifecycle(t *testing.T) {
	g := newTestGateway()
	sub := mustCreate(t, g, uuid.New())

	got, err := g.UpdateSubmissionStatus(context.Background(), sub.ID, models.StatusApproved)
	if err != nil {
		t.Fatalf("aprovar: %v", err)
	}
	if got.Status != models.StatusApproved {
		t.Fatalf("status = %q", got.Status)
	}

	// Repetir a mesma decisão é um no-op
	again, err := g.UpdateSubmissionStatus(context.Background(), sub.ID, models.StatusApproved)
	if err != nil {
		t.Fatalf("aprovação repetida deveria ser idempotente: %v", err)
	}
	if again.Status != models.StatusApproved {
		t.Fatalf("status mudou em decisão repetida: %q", again.Status)
	}

	// Decisão conflitante é recusada: aprovado nunca vira rejeitado
	if _, err := g.UpdateSubmissionStatus(context.Background(), sub.ID, models.StatusRejected); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("esperado ErrStatusConflict, veio %v", err)
	}

	if _, err := g.UpdateSubmissionStatus(context.Background(), uuid.New(), models.StatusApproved); !errors.Is(err, ErrNotFound) {
		t.Fatalf("esperado ErrNotFound, veio %v", err)
	}
}

func TestSubscribeScopedByOwner(t *testing.T) {
	g := newTestGateway()
	owner := uuid.New()

	var mu sync.Mutex
	var events []Event
	unsub, err := g.Subscribe(Filter{OwnerID: &owner}, func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	mustCreate(t, g, owner)
	mustCreate(t, g, uuid.New()) // outro dono, não deve chegar

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("esperado 1 evento do dono, veio %d", len(events))
	}
	if events[0].Kind != EventInserted {
		t.Errorf("kind = %q", events[0].Kind)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	g := newTestGateway()
	owner := uuid.New()

	var mu sync.Mutex
	count := 0
	unsub, _ := g.Subscribe(Filter{OwnerID: &owner}, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	mustCreate(t, g, owner)
	unsub()
	unsub() // repetido é inofensivo
	mustCreate(t, g, owner)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("esperado 1 entrega, veio %d", count)
	}
}

func TestHubDedupesRapidRedelivery(t *testing.T) {
	h := newHub(100 * time.Millisecond)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base
	h.now = func() time.Time { return now }

	var mu sync.Mutex
	count := 0
	h.subscribe(Filter{}, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	sub := &models.Submission{ID: uuid.New(), Status: models.StatusApproved}
	ev := Event{Kind: EventUpdated, Submission: sub}

	h.publish(ev)
	now = base.Add(50 * time.Millisecond) // dentro da janela: descartado
	h.publish(ev)
	now = base.Add(150 * time.Millisecond) // fora da janela: entregue
	h.publish(ev)

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Fatalf("esperado 2 entregas (1 duplicada suprimida), veio %d", count)
	}
}

func TestHubDistinctEventsNotDeduped(t *testing.T) {
	h := newHub(100 * time.Millisecond)

	var mu sync.Mutex
	count := 0
	h.subscribe(Filter{}, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	id := uuid.New()
	// Mesmo registro, status diferente: não é duplicata
	h.publish(Event{Kind: EventUpdated, Submission: &models.Submission{ID: id, Status: models.StatusPending}})
	h.publish(Event{Kind: EventUpdated, Submission: &models.Submission{ID: id, Status: models.StatusApproved}})

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Fatalf("esperado 2 entregas, veio %d", count)
	}
}

func statusPtr(s models.Status) *models.Status { return &s }
