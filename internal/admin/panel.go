package admin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"verifica18-backend/internal/gateway"
	"verifica18-backend/internal/models"

	"github.com/google/uuid"
)

// ErrNotStarted indica uso do painel antes do Start
var ErrNotStarted = errors.New("painel ainda não foi iniciado")

// Panel é a visão do administrador sobre as verificações: uma lista viva,
// ordenada da mais recente para a mais antiga, alimentada pela carga
// inicial e pelos pushes do gateway.
type Panel struct {
	mu sync.Mutex

	gw       gateway.Gateway
	pageSize int

	started     bool
	items       []*models.Submission
	unsubscribe gateway.Unsubscribe

	watchers    map[int]chan []models.Submission
	nextWatcher int
}

// NewPanel cria um painel sobre o gateway. pageSize limita a carga
// inicial; zero usa o padrão do gateway.
func NewPanel(gw gateway.Gateway, pageSize int) *Panel {
	return &Panel{
		gw:       gw,
		pageSize: pageSize,
		watchers: make(map[int]chan []models.Submission),
	}
}

// Start assina as mudanças e faz a carga inicial. A assinatura abre
// antes da busca: um evento entregue no meio da carga espera o lock e é
// aplicado por cima via merge, que é idempotente por id.
func (p *Panel) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	unsub, err := p.gw.Subscribe(gateway.Filter{}, p.onEvent)
	if err != nil {
		return fmt.Errorf("erro ao assinar mudanças: %w", err)
	}
	p.unsubscribe = unsub

	items, err := p.gw.ListSubmissions(ctx, gateway.Filter{Limit: p.pageSize})
	if err != nil {
		p.unsubscribe()
		p.unsubscribe = nil
		return fmt.Errorf("erro na carga inicial: %w", err)
	}

	p.items = items
	p.started = true
	p.notifyLocked()
	return nil
}

// Stop fecha a assinatura. Idempotente.
func (p *Panel) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
	p.started = false
}

// Submissions devolve uma cópia da lista atual, mais recente primeiro
func (p *Panel) Submissions() ([]models.Submission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil, ErrNotStarted
	}
	return p.copyLocked(), nil
}

// Watch abre um canal que recebe a lista inteira a cada mudança
func (p *Panel) Watch() (<-chan []models.Submission, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextWatcher
	p.nextWatcher++
	ch := make(chan []models.Submission, 8)
	p.watchers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.watchers, id)
			p.mu.Unlock()
		})
	}
	return ch, cancel
}

// Approve aprova uma verificação pendente
func (p *Panel) Approve(ctx context.Context, id uuid.UUID) error {
	return p.decide(ctx, id, models.StatusApproved)
}

// Reject rejeita uma verificação pendente
func (p *Panel) Reject(ctx context.Context, id uuid.UUID) error {
	return p.decide(ctx, id, models.StatusRejected)
}

// decide aplica a decisão de forma otimista: a lista local muda na hora
// e é desfeita se o gateway recusar. Itens que não estão mais pendentes
// não geram chamada nenhuma.
func (p *Panel) decide(ctx context.Context, id uuid.UUID, status models.Status) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}

	idx := p.indexLocked(id)
	if idx < 0 {
		p.mu.Unlock()
		return gateway.ErrNotFound
	}
	if p.items[idx].Status != models.StatusPending {
		p.mu.Unlock()
		return nil
	}

	previous := p.items[idx]
	optimistic := *previous
	optimistic.Status = status
	p.items[idx] = &optimistic
	p.notifyLocked()
	p.mu.Unlock()

	updated, err := p.gw.UpdateSubmissionStatus(ctx, id, status)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		// Rollback: a linha volta ao que era antes do clique
		if idx := p.indexLocked(id); idx >= 0 {
			p.items[idx] = previous
			p.notifyLocked()
		}
		return err
	}

	if idx := p.indexLocked(id); idx >= 0 {
		p.items[idx] = updated
		p.notifyLocked()
	}
	return nil
}

// onEvent aplica um push do gateway à lista local
func (p *Panel) onEvent(ev gateway.Event) {
	if ev.Submission == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	switch ev.Kind {
	case gateway.EventDeleted:
		if idx := p.indexLocked(ev.Submission.ID); idx >= 0 {
			p.items = append(p.items[:idx], p.items[idx+1:]...)
			p.notifyLocked()
		}
	case gateway.EventInserted, gateway.EventUpdated:
		p.mergeLocked(ev.Submission)
		p.notifyLocked()
	default:
		log.Printf("Evento de tipo desconhecido ignorado: %q", ev.Kind)
	}
}

// mergeLocked insere ou substitui por id, mantendo a ordenação por
// data de criação decrescente
func (p *Panel) mergeLocked(sub *models.Submission) {
	cp := *sub
	if idx := p.indexLocked(cp.ID); idx >= 0 {
		p.items[idx] = &cp
		return
	}

	p.items = append(p.items, &cp)
	sort.SliceStable(p.items, func(i, j int) bool {
		if !p.items[i].CreatedAt.Equal(p.items[j].CreatedAt) {
			return p.items[i].CreatedAt.After(p.items[j].CreatedAt)
		}
		return p.items[i].ID.String() > p.items[j].ID.String()
	})
}

func (p *Panel) indexLocked(id uuid.UUID) int {
	for i, item := range p.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (p *Panel) copyLocked() []models.Submission {
	out := make([]models.Submission, 0, len(p.items))
	for _, item := range p.items {
		out = append(out, *item)
	}
	return out
}

func (p *Panel) notifyLocked() {
	snap := p.copyLocked()
	for _, ch := range p.watchers {
		select {
		case ch <- snap:
		default: // observador lento perde listas intermediárias
		}
	}
}
