package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"verifica18-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore é a implementação da interface Store para o PostgreSQL.
// O rascunho vai como JSONB; as fotos ficam de fora por construção
// (campos excluídos da serialização).
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore cria um store de sessões sobre um pool existente
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, userID uuid.UUID) (*models.Session, error) {
	sql := `
        SELECT draft, submitted, admin_logged, updated_at
        FROM sessoes
        WHERE user_id = $1`

	var draftJSON []byte
	sess := &models.Session{UserID: userID}
	err := s.db.QueryRow(ctx, sql, userID).Scan(
		&draftJSON,
		&sess.Submitted,
		&sess.AdminLogged,
		&sess.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("falha ao buscar sessão: %w", err)
	}

	if err := json.Unmarshal(draftJSON, &sess.Draft); err != nil {
		return nil, fmt.Errorf("falha ao decodificar rascunho: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) Save(ctx context.Context, sess *models.Session) error {
	draftJSON, err := json.Marshal(sess.Draft)
	if err != nil {
		return fmt.Errorf("falha ao codificar rascunho: %w", err)
	}

	sql := `
        INSERT INTO sessoes (user_id, draft, submitted, admin_logged, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id) DO UPDATE SET
            draft = EXCLUDED.draft,
            submitted = EXCLUDED.submitted,
            admin_logged = EXCLUDED.admin_logged,
            updated_at = EXCLUDED.updated_at`

	_, err = s.db.Exec(ctx, sql, sess.UserID, draftJSON, sess.Submitted, sess.AdminLogged, time.Now())
	if err != nil {
		return fmt.Errorf("falha ao salvar sessão: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM sessoes WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("falha ao remover sessão: %w", err)
	}
	return nil
}
