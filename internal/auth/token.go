package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const adminSubject = "admin"

// TokenService lida com a lógica de JWT da sessão de administrador
type TokenService struct {
	jwtSecret []byte
}

// NewTokenService cria um novo serviço de token
func NewTokenService(secret string) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("segredo JWT não pode ser vazio")
	}
	return &TokenService{
		jwtSecret: []byte(secret),
	}, nil
}

// NewAdminToken cria um token para a sessão do administrador
func (s *TokenService) NewAdminToken() (string, error) {
	claims := jwt.MapClaims{
		"sub": adminSubject,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour * 24).Unix(), // Token expira em 24h
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateAdminToken verifica a validade de um token string
func (s *TokenService) ValidateAdminToken(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Verifica o método de assinatura
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("método de assinatura inesperado: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return fmt.Errorf("falha ao parsear token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("token inválido")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return fmt.Errorf("não foi possível ler claims do token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub != adminSubject {
		return fmt.Errorf("token sem o sujeito esperado")
	}

	return nil
}
