package admin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"verifica18-backend/internal/gateway"
	"verifica18-backend/internal/models"
	"verifica18-backend/internal/storage"

	"github.com/google/uuid"
)

// fakeGateway dá controle total sobre a carga inicial, os pushes e as
// falhas de atualização
type fakeGateway struct {
	mu          sync.Mutex
	items       []*models.Submission
	handlers    []gateway.OnEvent
	updateErr   error
	updateCalls int
	unsubCalls  int

	// executado no meio do UpdateSubmissionStatus, antes de responder
	duringUpdate func()
}

func (f *fakeGateway) UploadDocumentImage(ctx context.Context, img *models.DocumentImage, ownerID uuid.UUID) (string, error) {
	return "memory://fake", nil
}

func (f *fakeGateway) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append([]*models.Submission{sub}, f.items...)
	return nil
}

func (f *fakeGateway) ListSubmissions(ctx context.Context, fl gateway.Filter) ([]*models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Submission, 0, len(f.items))
	for _, item := range f.items {
		cp := *item
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeGateway) Subscribe(fl gateway.Filter, fn gateway.OnEvent) (gateway.Unsubscribe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, fn)
	return func() {
		f.mu.Lock()
		f.unsubCalls++
		f.mu.Unlock()
	}, nil
}

func (f *fakeGateway) UpdateSubmissionStatus(ctx context.Context, id uuid.UUID, status models.Status) (*models.Submission, error) {
	f.mu.Lock()
	f.updateCalls++
	during := f.duringUpdate
	err := f.updateErr
	f.mu.Unlock()

	if during != nil {
		during()
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i, item := range f.items {
		if item.ID == id {
			cp := *item
			cp.Status = status
			f.items[i] = &cp
			out := cp
			return &out, nil
		}
	}
	return nil, gateway.ErrNotFound
}

func (f *fakeGateway) push(ev gateway.Event) {
	f.mu.Lock()
	handlers := append([]gateway.OnEvent(nil), f.handlers...)
	f.mu.Unlock()
	for _, fn := range handlers {
		fn(ev)
	}
}

func submissionAt(t *testing.T, created time.Time) *models.Submission {
	t.Helper()
	return &models.Submission{
		ID:            uuid.New(),
		Nome:          "Ana",
		Idade:         19,
		Email:         "a@a.com",
		Whatsapp:      "11999999999",
		FotoFrenteURL: "memory://f",
		FotoVersoURL:  "memory://v",
		UserID:        uuid.New(),
		Status:        models.StatusPending,
		CreatedAt:     created,
	}
}

func startedPanel(t *testing.T, fake *fakeGateway) *Panel {
	t.Helper()
	p := NewPanel(fake, 100)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(p.Stop)
	return p
}

func TestPanelRequiresStart(t *testing.T) {
	p := NewPanel(&fakeGateway{}, 100)

	if _, err := p.Submissions(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("esperado ErrNotStarted, veio %v", err)
	}
	if err := p.Approve(context.Background(), uuid.New()); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("esperado ErrNotStarted, veio %v", err)
	}
}

func TestPanelInitialLoad(t *testing.T) {
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	older := submissionAt(t, base)
	newer := submissionAt(t, base.Add(time.Minute))
	fake := &fakeGateway{items: []*models.Submission{newer, older}}

	p := startedPanel(t, fake)

	items, err := p.Submissions()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("carga inicial com %d itens", len(items))
	}
	if items[0].ID != newer.ID || items[1].ID != older.ID {
		t.Error("a lista deveria vir mais recente primeiro")
	}
}

// Um push de inserção entra no topo da lista, não no fim
func TestPanelInsertMergesAtHead(t *testing.T) {
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	existing := submissionAt(t, base)
	fake := &fakeGateway{items: []*models.Submission{existing}}
	p := startedPanel(t, fake)

	fresh := submissionAt(t, base.Add(time.Hour))
	fake.push(gateway.Event{Kind: gateway.EventInserted, Submission: fresh})

	items, _ := p.Submissions()
	if len(items) != 2 {
		t.Fatalf("%d itens após o push", len(items))
	}
	if items[0].ID != fresh.ID {
		t.Error("registro novo deveria aparecer no topo")
	}
}

// Um push de atualização substitui a linha pelo id, sem duplicar
func TestPanelUpdateMergesById(t *testing.T) {
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	existing := submissionAt(t, base)
	fake := &fakeGateway{items: []*models.Submission{existing}}
	p := startedPanel(t, fake)

	changed := *existing
	changed.Status = models.StatusApproved
	fake.push(gateway.Event{Kind: gateway.EventUpdated, Submission: &changed})
	fake.push(gateway.Event{Kind: gateway.EventUpdated, Submission: &changed}) // reentrega

	items, _ := p.Submissions()
	if len(items) != 1 {
		t.Fatalf("merge por id não pode duplicar: %d itens", len(items))
	}
	if items[0].Status != models.StatusApproved {
		t.Errorf("status = %q", items[0].Status)
	}
}

func TestPanelDeleteRemoves(t *testing.T) {
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	existing := submissionAt(t, base)
	fake := &fakeGateway{items: []*models.Submission{existing}}
	p := startedPanel(t, fake)

	fake.push(gateway.Event{Kind: gateway.EventDeleted, Submission: existing})

	items, _ := p.Submissions()
	if len(items) != 0 {
		t.Fatalf("registro deletado ainda na lista: %d itens", len(items))
	}
}

// O clique muda a lista antes da resposta do backend
func TestPanelApproveIsOptimistic(t *testing.T) {
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	existing := submissionAt(t, base)
	fake := &fakeGateway{items: []*models.Submission{existing}}
	p := startedPanel(t, fake)

	var seen models.Status
	fake.duringUpdate = func() {
		items, _ := p.Submissions()
		seen = items[0].Status
	}

	if err := p.Approve(context.Background(), existing.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if seen != models.StatusApproved {
		t.Errorf("durante a chamada a lista deveria já mostrar approved, veio %q", seen)
	}

	items, _ := p.Submissions()
	if items[0].Status != models.StatusApproved {
		t.Errorf("status final = %q", items[0].Status)
	}
}

// Falha do backend desfaz a mudança otimista
func TestPanelRejectRollsBackOnFailure(t *testing.T) {
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	existing := submissionAt(t, base)
	fake := &fakeGateway{
		items:     []*models.Submission{existing},
		updateErr: &gateway.PersistenceError{Op: "update-status", Err: errors.New("conexão caiu")},
	}
	p := startedPanel(t, fake)

	err := p.Reject(context.Background(), existing.ID)
	var perr *gateway.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("esperado *PersistenceError, veio %v", err)
	}

	items, _ := p.Submissions()
	if items[0].Status != models.StatusPending {
		t.Errorf("rollback deveria devolver pending, veio %q", items[0].Status)
	}
}

// Linha que não está mais pendente não gera chamada nenhuma
func TestPanelDecisionOnSettledRowIsNoop(t *testing.T) {
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	existing := submissionAt(t, base)
	existing.Status = models.StatusApproved
	fake := &fakeGateway{items: []*models.Submission{existing}}
	p := startedPanel(t, fake)

	if err := p.Reject(context.Background(), existing.ID); err != nil {
		t.Fatalf("decisão sobre linha resolvida: %v", err)
	}

	fake.mu.Lock()
	calls := fake.updateCalls
	fake.mu.Unlock()
	if calls != 0 {
		t.Errorf("backend foi chamado %d vezes para uma linha resolvida", calls)
	}

	items, _ := p.Submissions()
	if items[0].Status != models.StatusApproved {
		t.Errorf("status = %q", items[0].Status)
	}
}

func TestPanelApproveUnknownID(t *testing.T) {
	fake := &fakeGateway{}
	p := startedPanel(t, fake)

	if err := p.Approve(context.Background(), uuid.New()); !errors.Is(err, gateway.ErrNotFound) {
		t.Fatalf("esperado ErrNotFound, veio %v", err)
	}
}

func TestPanelStopClosesSubscriptionOnce(t *testing.T) {
	fake := &fakeGateway{}
	p := NewPanel(fake, 100)
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	p.Stop()
	p.Stop() // idempotente

	fake.mu.Lock()
	calls := fake.unsubCalls
	fake.mu.Unlock()
	if calls != 1 {
		t.Errorf("assinatura fechada %d vezes", calls)
	}

	if _, err := p.Submissions(); !errors.Is(err, ErrNotStarted) {
		t.Error("painel parado não deveria responder")
	}
}

func TestPanelWatchReceivesLists(t *testing.T) {
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	fake := &fakeGateway{}
	p := startedPanel(t, fake)

	ch, cancel := p.Watch()
	defer cancel()

	fake.push(gateway.Event{Kind: gateway.EventInserted, Submission: submissionAt(t, base)})

	select {
	case items := <-ch:
		if len(items) != 1 {
			t.Errorf("watch recebeu lista com %d itens", len(items))
		}
	case <-time.After(time.Second):
		t.Fatal("watch não recebeu a lista atualizada")
	}
}

// Fluxo completo contra o gateway em memória: decisão do painel chega
// como push e permanece consistente após o merge
func TestPanelWithMemoryGateway(t *testing.T) {
	gw := gateway.NewMemoryGateway(storage.NewMemoryImageStore())
	ctx := context.Background()

	first := &models.Submission{
		Nome: "Ana", Idade: 19, Email: "a@a.com", Whatsapp: "11999999999",
		FotoFrenteURL: "memory://f", FotoVersoURL: "memory://v", UserID: uuid.New(),
	}
	if err := gw.CreateSubmission(ctx, first); err != nil {
		t.Fatal(err)
	}

	p := NewPanel(gw, 100)
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer p.Stop()

	// Registro criado depois do Start chega por push
	second := &models.Submission{
		Nome: "Bia", Idade: 21, Email: "b@b.com", Whatsapp: "11888888888",
		FotoFrenteURL: "memory://f2", FotoVersoURL: "memory://v2", UserID: uuid.New(),
	}
	if err := gw.CreateSubmission(ctx, second); err != nil {
		t.Fatal(err)
	}

	items, err := p.Submissions()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("%d itens no painel", len(items))
	}

	if err := p.Approve(ctx, first.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	items, _ = p.Submissions()
	for _, item := range items {
		if item.ID == first.ID && item.Status != models.StatusApproved {
			t.Errorf("decisão não refletida: %q", item.Status)
		}
	}

	// Decisão conflitante de outro admin devolve o conflito
	if err := p.Reject(ctx, first.ID); err != nil {
		t.Fatalf("linha já resolvida deveria ser no-op local, veio %v", err)
	}
}
