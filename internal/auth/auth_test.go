package auth

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func testHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func TestVerifier(t *testing.T) {
	v, err := NewVerifier(testHash(t, "senha-forte"))
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	if err := v.Verify("senha-forte"); err != nil {
		t.Errorf("senha correta recusada: %v", err)
	}

	// Qualquer falha devolve o mesmo erro genérico
	if err := v.Verify("senha-errada"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("esperado ErrInvalidCredentials, veio %v", err)
	}
	if err := v.Verify(""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("esperado ErrInvalidCredentials, veio %v", err)
	}
}

func TestNewVerifierRejectsBadHash(t *testing.T) {
	if _, err := NewVerifier(""); err == nil {
		t.Error("hash vazio deveria ser recusado")
	}
	if _, err := NewVerifier("nao-e-um-hash-bcrypt"); err == nil {
		t.Error("hash malformado deveria ser recusado")
	}
}

func TestAdminTokenRoundTrip(t *testing.T) {
	svc, err := NewTokenService("segredo-de-teste")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	token, err := svc.NewAdminToken()
	if err != nil {
		t.Fatalf("NewAdminToken: %v", err)
	}
	if err := svc.ValidateAdminToken(token); err != nil {
		t.Errorf("token recém-emitido recusado: %v", err)
	}

	if err := svc.ValidateAdminToken("lixo"); err == nil {
		t.Error("token inválido deveria ser recusado")
	}

	other, _ := NewTokenService("outro-segredo")
	foreign, _ := other.NewAdminToken()
	if err := svc.ValidateAdminToken(foreign); err == nil {
		t.Error("token de outro segredo deveria ser recusado")
	}
}
