package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"verifica18-backend/internal/models"
	"verifica18-backend/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// notifyChannel é o canal NOTIFY alimentado pelo trigger da migração
const notifyChannel = "verificacoes_changes"

// PostgresGateway é a implementação do Gateway sobre PostgreSQL + um
// ImageStore (S3 em produção). As mudanças chegam por LISTEN/NOTIFY e são
// redistribuídas pelo hub com a mesma janela de dedupe do modo em memória.
type PostgresGateway struct {
	db     *pgxpool.Pool
	images storage.ImageStore
	hub    *hub
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPostgresGateway cria o gateway sobre um pool existente
func NewPostgresGateway(db *pgxpool.Pool, images storage.ImageStore) *PostgresGateway {
	return &PostgresGateway{
		db:     db,
		images: images,
		hub:    newHub(dedupeWindow),
	}
}

// Start abre o loop de LISTEN em background. Deve ser chamado uma vez.
func (g *PostgresGateway) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.done = make(chan struct{})
	go g.listenChanges(ctx)
}

// Close encerra o loop de notificações. O pool pertence a quem o criou.
func (g *PostgresGateway) Close() {
	if g.cancel != nil {
		g.cancel()
		<-g.done
	}
}

// RunMigrations executa o script SQL de migração
func RunMigrations(ctx context.Context, db *pgxpool.Pool, migrationSQL string) error {
	_, err := db.Exec(ctx, migrationSQL)
	if err != nil {
		return fmt.Errorf("falha ao executar migração: %w", err)
	}
	return nil
}

// UploadDocumentImage delega ao store de imagens e traduz as falhas
func (g *PostgresGateway) UploadDocumentImage(ctx context.Context, img *models.DocumentImage, ownerID uuid.UUID) (string, error) {
	url, err := g.images.Store(ctx, img, ownerID)
	if err != nil {
		return "", &UploadError{Reason: "imagem recusada", Err: err}
	}
	return url, nil
}

// CreateSubmission insere o registro; o trigger do banco publica o evento
func (g *PostgresGateway) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	if err := validatePayload(sub); err != nil {
		return &PersistenceError{Op: "create", Err: err}
	}

	sub.ID = uuid.New()
	sub.Status = models.StatusPending
	sub.CreatedAt = time.Now().UTC()

	sql := `
        INSERT INTO verificacoes
            (id, nome, idade, email, whatsapp, foto_frente_url, foto_verso_url, user_id, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := g.db.Exec(ctx, sql,
		sub.ID,
		sub.Nome,
		sub.Idade,
		sub.Email,
		sub.Whatsapp,
		sub.FotoFrenteURL,
		sub.FotoVersoURL,
		sub.UserID,
		sub.Status,
		sub.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return &PersistenceError{Op: "create", Err: errors.New("registro duplicado")}
		}
		return &PersistenceError{Op: "create", Err: err}
	}
	return nil
}

// ListSubmissions consulta pelo filtro, mais recentes primeiro
func (g *PostgresGateway) ListSubmissions(ctx context.Context, f Filter) ([]*models.Submission, error) {
	sql := `
        SELECT id, nome, idade, email, whatsapp, foto_frente_url, foto_verso_url, user_id, status, created_at
        FROM verificacoes`

	args := []any{}
	where := ""
	if f.OwnerID != nil {
		args = append(args, *f.OwnerID)
		where = fmt.Sprintf(" WHERE user_id = $%d", len(args))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		if where == "" {
			where = fmt.Sprintf(" WHERE status = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND status = $%d", len(args))
		}
	}
	sql += where + " ORDER BY created_at DESC, id DESC"

	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := g.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	defer rows.Close()

	// Fatia vazia, não nil, para consistência de JSON
	subs := []*models.Submission{}

	for rows.Next() {
		sub := &models.Submission{}
		err := rows.Scan(
			&sub.ID,
			&sub.Nome,
			&sub.Idade,
			&sub.Email,
			&sub.Whatsapp,
			&sub.FotoFrenteURL,
			&sub.FotoVersoURL,
			&sub.UserID,
			&sub.Status,
			&sub.CreatedAt,
		)
		if err != nil {
			return nil, &PersistenceError{Op: "list", Err: err}
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}

	return subs, nil
}

// Subscribe abre uma assinatura no hub alimentado pelo LISTEN
func (g *PostgresGateway) Subscribe(f Filter, fn OnEvent) (Unsubscribe, error) {
	return g.hub.subscribe(f, fn), nil
}

// UpdateSubmissionStatus aplica a decisão do administrador. A cláusula
// WHERE garante que só registros pendentes mudam; o caso de zero linhas é
// desambiguado por uma leitura em seguida.
func (g *PostgresGateway) UpdateSubmissionStatus(ctx context.Context, id uuid.UUID, status models.Status) (*models.Submission, error) {
	if !status.Terminal() {
		return nil, &PersistenceError{Op: "update-status", Err: errors.New("status de destino inválido")}
	}

	tag, err := g.db.Exec(ctx,
		`UPDATE verificacoes SET status = $2 WHERE id = $1 AND status = 'pending'`,
		id, status,
	)
	if err != nil {
		return nil, &PersistenceError{Op: "update-status", Err: err}
	}

	sub, err := g.getByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if tag.RowsAffected() == 0 {
		if sub.Status == status {
			return sub, nil // decisão repetida, sem efeito
		}
		return nil, ErrStatusConflict
	}
	return sub, nil
}

func (g *PostgresGateway) getByID(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	sql := `
        SELECT id, nome, idade, email, whatsapp, foto_frente_url, foto_verso_url, user_id, status, created_at
        FROM verificacoes
        WHERE id = $1`

	sub := &models.Submission{}
	err := g.db.QueryRow(ctx, sql, id).Scan(
		&sub.ID,
		&sub.Nome,
		&sub.Idade,
		&sub.Email,
		&sub.Whatsapp,
		&sub.FotoFrenteURL,
		&sub.FotoVersoURL,
		&sub.UserID,
		&sub.Status,
		&sub.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "get", Err: err}
	}
	return sub, nil
}

// notifyPayload é o JSON montado pelo trigger notify_verificacoes
type notifyPayload struct {
	Kind   EventKind    `json:"kind"`
	Record notifyRecord `json:"record"`
}

type notifyRecord struct {
	ID            uuid.UUID     `json:"id"`
	Nome          string        `json:"nome"`
	Idade         int           `json:"idade"`
	Email         string        `json:"email"`
	Whatsapp      string        `json:"whatsapp"`
	FotoFrenteURL string        `json:"foto_frente_url"`
	FotoVersoURL  string        `json:"foto_verso_url"`
	UserID        uuid.UUID     `json:"user_id"`
	Status        models.Status `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
}

// listenChanges mantém uma conexão dedicada em LISTEN e bombeia as
// notificações para o hub. Erros são registrados e a conexão é refeita;
// a falha de uma assinatura nunca derruba o processo.
func (g *PostgresGateway) listenChanges(ctx context.Context) {
	defer close(g.done)

	for {
		if ctx.Err() != nil {
			return
		}

		if err := g.listenOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Erro no listener de mudanças: %v (reconectando)", err)
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (g *PostgresGateway) listenOnce(ctx context.Context) error {
	conn, err := g.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("falha no LISTEN: %w", err)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		var payload notifyPayload
		if err := json.Unmarshal([]byte(n.Payload), &payload); err != nil {
			log.Printf("Notificação com payload inválido: %v", err)
			continue
		}

		rec := payload.Record
		g.hub.publish(Event{
			Kind: payload.Kind,
			Submission: &models.Submission{
				ID:            rec.ID,
				Nome:          rec.Nome,
				Idade:         rec.Idade,
				Email:         rec.Email,
				Whatsapp:      rec.Whatsapp,
				FotoFrenteURL: rec.FotoFrenteURL,
				FotoVersoURL:  rec.FotoVersoURL,
				UserID:        rec.UserID,
				Status:        rec.Status,
				CreatedAt:     rec.CreatedAt,
			},
		})
	}
}
