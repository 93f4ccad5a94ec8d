package gateway

import (
	"context"

	"verifica18-backend/internal/models"

	"github.com/google/uuid"
)

// EventKind é o tipo de mudança notificada pelo backend
type EventKind string

const (
	EventInserted EventKind = "inserted"
	EventUpdated  EventKind = "updated"
	EventDeleted  EventKind = "deleted"
)

// Event carrega o registro afetado por uma mudança
type Event struct {
	Kind       EventKind
	Submission *models.Submission
}

// Filter restringe consultas e assinaturas
type Filter struct {
	OwnerID *uuid.UUID
	Status  *models.Status
	Limit   int
	Offset  int
}

// OnEvent recebe cada mudança que passar pelo filtro
type OnEvent func(Event)

// Unsubscribe encerra uma assinatura; chamadas repetidas são inofensivas
type Unsubscribe func()

// Gateway é o contrato do backend consumido pelo núcleo. A implementação
// concreta (memória, Postgres+S3) é injetada; o núcleo nunca depende de um
// SDK específico.
type Gateway interface {
	// UploadDocumentImage guarda a foto e devolve a URL pública.
	// Falha com *UploadError em tamanho, tipo ou transporte.
	UploadDocumentImage(ctx context.Context, img *models.DocumentImage, ownerID uuid.UUID) (string, error)

	// CreateSubmission persiste o registro, preenchendo ID, Status
	// (pending) e CreatedAt. Falha com *PersistenceError.
	CreateSubmission(ctx context.Context, sub *models.Submission) error

	// ListSubmissions devolve os registros do filtro, mais recentes
	// primeiro. Resultado vazio é uma fatia vazia, nunca erro.
	ListSubmissions(ctx context.Context, f Filter) ([]*models.Submission, error)

	// Subscribe abre uma assinatura de mudanças. Entregas duplicadas em
	// janela curta são suprimidas pela implementação.
	Subscribe(f Filter, fn OnEvent) (Unsubscribe, error)

	// UpdateSubmissionStatus aplica pending→approved ou pending→rejected.
	// Repetir o mesmo status terminal é idempotente; um status terminal
	// conflitante devolve ErrStatusConflict.
	UpdateSubmissionStatus(ctx context.Context, id uuid.UUID, status models.Status) (*models.Submission, error)
}

// matches decide se um registro passa pelo filtro de uma assinatura
func (f Filter) matches(sub *models.Submission) bool {
	if sub == nil {
		return false
	}
	if f.OwnerID != nil && sub.UserID != *f.OwnerID {
		return false
	}
	if f.Status != nil && sub.Status != *f.Status {
		return false
	}
	return true
}
