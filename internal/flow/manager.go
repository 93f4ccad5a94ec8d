package flow

import (
	"context"
	"errors"
	"sync"

	"verifica18-backend/internal/models"
	"verifica18-backend/internal/session"

	"github.com/google/uuid"
)

// Manager mantém uma máquina por userId. Duas abas com o mesmo userId
// enxergam a mesma máquina; coordenação além disso não é definida.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	machines map[uuid.UUID]*Machine
}

// NewManager cria um novo gerenciador de fluxos
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		machines: make(map[uuid.UUID]*Machine),
	}
}

// Machine devolve a máquina do dispositivo, restaurando a sessão
// persistida ou criando uma nova na primeira visita
func (mg *Manager) Machine(ctx context.Context, userID uuid.UUID) (*Machine, error) {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	if m, ok := mg.machines[userID]; ok {
		return m, nil
	}

	sess, err := mg.cfg.Sessions.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			return nil, err
		}
		sess = &models.Session{UserID: userID}
		if err := mg.cfg.Sessions.Save(ctx, sess); err != nil {
			return nil, err
		}
	}

	m := NewMachine(mg.cfg, sess)
	mg.machines[userID] = m
	return m, nil
}

// Close encerra as assinaturas de todas as máquinas
func (mg *Manager) Close() {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	for _, m := range mg.machines {
		m.Close()
	}
}
