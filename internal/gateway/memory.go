package gateway

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"verifica18-backend/internal/models"
	"verifica18-backend/internal/storage"

	"github.com/google/uuid"
)

// MemoryGateway é uma implementação em memória do Gateway, usada nos
// testes e no modo dev
type MemoryGateway struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]*models.Submission
	images storage.ImageStore
	hub    *hub
	now    func() time.Time
}

// NewMemoryGateway cria um novo gateway em memória
func NewMemoryGateway(images storage.ImageStore) *MemoryGateway {
	return &MemoryGateway{
		subs:   make(map[uuid.UUID]*models.Submission),
		images: images,
		hub:    newHub(dedupeWindow),
		now:    time.Now,
	}
}

// UploadDocumentImage delega ao store de imagens e traduz as falhas
func (g *MemoryGateway) UploadDocumentImage(ctx context.Context, img *models.DocumentImage, ownerID uuid.UUID) (string, error) {
	url, err := g.images.Store(ctx, img, ownerID)
	if err != nil {
		return "", &UploadError{Reason: "imagem recusada", Err: err}
	}
	return url, nil
}

// CreateSubmission persiste o registro e publica o evento de inserção
func (g *MemoryGateway) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	if err := validatePayload(sub); err != nil {
		return &PersistenceError{Op: "create", Err: err}
	}

	g.mu.Lock()
	sub.ID = uuid.New()
	sub.Status = models.StatusPending
	sub.CreatedAt = g.now()
	stored := *sub
	g.subs[sub.ID] = &stored
	g.mu.Unlock()

	g.hub.publish(Event{Kind: EventInserted, Submission: &stored})
	return nil
}

// ListSubmissions devolve os registros do filtro, mais recentes primeiro
func (g *MemoryGateway) ListSubmissions(ctx context.Context, f Filter) ([]*models.Submission, error) {
	g.mu.RLock()
	matched := make([]*models.Submission, 0, len(g.subs))
	for _, sub := range g.subs {
		if f.matches(sub) {
			cp := *sub
			matched = append(matched, &cp)
		}
	}
	g.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() > matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	// Offset e limite depois da ordenação
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return []*models.Submission{}, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}

	return matched, nil
}

// Subscribe abre uma assinatura no hub
func (g *MemoryGateway) Subscribe(f Filter, fn OnEvent) (Unsubscribe, error) {
	return g.hub.subscribe(f, fn), nil
}

// UpdateSubmissionStatus aplica a decisão do administrador.
// Repetir o mesmo status terminal é idempotente; um terminal diferente
// devolve ErrStatusConflict.
func (g *MemoryGateway) UpdateSubmissionStatus(ctx context.Context, id uuid.UUID, status models.Status) (*models.Submission, error) {
	if !status.Terminal() {
		return nil, &PersistenceError{Op: "update-status", Err: errors.New("status de destino inválido")}
	}

	g.mu.Lock()
	sub, ok := g.subs[id]
	if !ok {
		g.mu.Unlock()
		return nil, ErrNotFound
	}

	if sub.Status != models.StatusPending {
		cp := *sub
		g.mu.Unlock()
		if cp.Status == status {
			return &cp, nil // decisão repetida, sem efeito
		}
		return nil, ErrStatusConflict
	}

	sub.Status = status
	cp := *sub
	g.mu.Unlock()

	g.hub.publish(Event{Kind: EventUpdated, Submission: &cp})
	return &cp, nil
}

// DeleteSubmission remove um registro e publica o evento. Não faz parte do
// fluxo do formulário; existe para limpeza administrativa.
func (g *MemoryGateway) DeleteSubmission(ctx context.Context, id uuid.UUID) error {
	g.mu.Lock()
	sub, ok := g.subs[id]
	if !ok {
		g.mu.Unlock()
		return ErrNotFound
	}
	cp := *sub
	delete(g.subs, id)
	g.mu.Unlock()

	g.hub.publish(Event{Kind: EventDeleted, Submission: &cp})
	return nil
}

// validatePayload recusa registros malformados antes de persistir
func validatePayload(sub *models.Submission) error {
	switch {
	case sub == nil:
		return errors.New("registro vazio")
	case sub.Nome == "":
		return errors.New("nome ausente")
	case sub.Idade <= 0:
		return errors.New("idade ausente")
	case sub.Email == "":
		return errors.New("email ausente")
	case sub.Whatsapp == "":
		return errors.New("whatsapp ausente")
	case sub.FotoFrenteURL == "" || sub.FotoVersoURL == "":
		return errors.New("URLs das fotos ausentes")
	case sub.UserID == uuid.Nil:
		return errors.New("userId ausente")
	}
	return nil
}
