package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"verifica18-backend/internal/models"

	"github.com/google/uuid"
)

// ErrNotFound indica que o dispositivo ainda não tem sessão
var ErrNotFound = errors.New("sessão não encontrada")

// Store persiste a sessão de um dispositivo entre reloads: userId estável,
// rascunho sem binários, flag de envio e flag de admin
type Store interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

// MemoryStore é a implementação em memória da interface Store
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]models.Session
}

// NewMemoryStore cria uma nova instância do store em memória
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[uuid.UUID]models.Session)}
}

func (s *MemoryStore) Get(ctx context.Context, userID uuid.UUID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := sess
	return &cp, nil
}

func (s *MemoryStore) Save(ctx context.Context, sess *models.Session) error {
	cp := *sess
	// Binários nunca sobrevivem à persistência
	cp.Draft.FotoFrente = nil
	cp.Draft.FotoVerso = nil
	cp.UpdatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[cp.UserID] = cp
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}
