package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indica que a submissão não existe
	ErrNotFound = errors.New("submissão não encontrada")

	// ErrStatusConflict indica uma decisão conflitante sobre um registro
	// já revisado. Não existe operação de reversão.
	ErrStatusConflict = errors.New("submissão já revisada com outro status")
)

// UploadError cobre falhas de upload de imagem: tamanho, tipo ou transporte.
// Recuperável: o usuário pode tentar enviar de novo.
type UploadError struct {
	Reason string
	Err    error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("falha no upload: %s: %v", e.Reason, e.Err)
	}
	return "falha no upload: " + e.Reason
}

func (e *UploadError) Unwrap() error { return e.Err }

// PersistenceError cobre falhas ao gravar ou atualizar registros
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("falha de persistência em %s: %v", e.Op, e.Err)
	}
	return "falha de persistência em " + e.Op
}

func (e *PersistenceError) Unwrap() error { return e.Err }
