package api

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"verifica18-backend/internal/flow"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/tomasen/realip"
)

// contextKey é um tipo privado para evitar colisões de chaves no contexto
type contextKey string

const machineContextKey = contextKey("machine")

// machineFrom recupera a máquina do dispositivo injetada pelo middleware
func machineFrom(ctx context.Context) (*flow.Machine, bool) {
	m, ok := ctx.Value(machineContextKey).(*flow.Machine)
	return m, ok && m != nil
}

// MachineMiddleware resolve a máquina do dispositivo a partir do header
// X-User-ID, emitido pelo POST /v1/session
func (h *Handler) MachineMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-User-ID")
		if raw == "" {
			h.respondWithError(w, http.StatusUnauthorized, "Header X-User-ID não fornecido")
			return
		}

		userID, err := uuid.Parse(raw)
		if err != nil {
			h.respondWithError(w, http.StatusUnauthorized, "X-User-ID inválido")
			return
		}

		m, err := h.flows.Machine(r.Context(), userID)
		if err != nil {
			log.Printf("Erro ao resolver a máquina de %s: %v", userID, err)
			h.respondWithError(w, http.StatusInternalServerError, "Erro ao abrir sessão")
			return
		}

		ctx := context.WithValue(r.Context(), machineContextKey, m)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminAuthMiddleware valida o token JWT do painel
func (h *Handler) AdminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			h.respondWithError(w, http.StatusUnauthorized, "Token de autorização não fornecido")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			h.respondWithError(w, http.StatusUnauthorized, "Formato do token inválido")
			return
		}

		if err := h.tokenService.ValidateAdminToken(parts[1]); err != nil {
			h.respondWithError(w, http.StatusUnauthorized, "Token inválido")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// AccessLog registra cada requisição com o IP real do cliente
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Printf("%s %s %s -> %d (%s)",
			realip.FromRequest(r), r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}
