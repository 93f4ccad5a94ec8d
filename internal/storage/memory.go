package storage

import (
	"context"
	"sync"
	"time"

	"verifica18-backend/internal/models"

	"github.com/google/uuid"
)

// MemoryImageStore é uma implementação em memória para testes e modo dev
type MemoryImageStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryImageStore cria um novo store em memória
func NewMemoryImageStore() *MemoryImageStore {
	return &MemoryImageStore{objects: make(map[string][]byte)}
}

// Store valida e guarda a imagem, devolvendo uma URL sintética
func (s *MemoryImageStore) Store(ctx context.Context, img *models.DocumentImage, ownerID uuid.UUID) (string, error) {
	ext, err := ValidateImage(img)
	if err != nil {
		return "", err
	}

	key := objectKey(ownerID, ext, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = img.Data

	return "memory://" + key, nil
}

// Len devolve o número de objetos guardados
func (s *MemoryImageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
