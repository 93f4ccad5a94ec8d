package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials é a resposta genérica para qualquer falha de
// login do administrador. A mensagem nunca distingue a causa.
var ErrInvalidCredentials = errors.New("credenciais inválidas")

// Verifier compara a senha do administrador com o hash configurado.
// A comparação acontece no servidor; nenhum segredo é embutido no cliente.
type Verifier struct {
	passwordHash []byte
}

// NewVerifier cria um verificador a partir de um hash bcrypt
func NewVerifier(passwordHash string) (*Verifier, error) {
	if passwordHash == "" {
		return nil, fmt.Errorf("hash da senha de admin não pode ser vazio")
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, fmt.Errorf("hash da senha de admin inválido: %w", err)
	}
	return &Verifier{passwordHash: []byte(passwordHash)}, nil
}

// Verify devolve ErrInvalidCredentials para qualquer falha
func (v *Verifier) Verify(password string) error {
	if err := bcrypt.CompareHashAndPassword(v.passwordHash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
