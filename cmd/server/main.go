package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"verifica18-backend/internal/admin"
	"verifica18-backend/internal/api"
	"verifica18-backend/internal/auth"
	"verifica18-backend/internal/config"
	"verifica18-backend/internal/flow"
	"verifica18-backend/internal/gateway"
	"verifica18-backend/internal/session"
	"verifica18-backend/internal/storage"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	// Carregar o .env antes da configuração
	if err := godotenv.Load(); err != nil {
		log.Printf("Aviso: Não foi possível carregar o arquivo .env: %v. (Usando variáveis de ambiente existentes)", err)
	}

	var cfg config.Config
	if err := config.Load(&cfg); err != nil {
		log.Fatalf("Falha ao carregar configuração: %v", err)
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelInit()

	// Gateway e sessões: em memória no modo dev, Postgres + S3 fora dele
	var gw gateway.Gateway
	var sessions session.Store
	var shutdownGateway func()

	if cfg.DevMode {
		log.Println("DEV_MODE ativo: gateway e sessões em memória, sem Postgres/S3")
		gw = gateway.NewMemoryGateway(storage.NewMemoryImageStore())
		sessions = session.NewMemoryStore()
		shutdownGateway = func() {}
	} else {
		pool, err := pgxpool.New(initCtx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Falha ao conectar ao banco de dados: %v", err)
		}
		if err := pool.Ping(initCtx); err != nil {
			log.Fatalf("Falha no ping ao banco de dados: %v", err)
		}
		log.Println("Conectado ao PostgreSQL!")

		migrationSQL, err := os.ReadFile(cfg.MigrationsFile)
		if err != nil {
			log.Fatalf("Falha ao ler arquivo de migração: %v", err)
		}
		if err := gateway.RunMigrations(initCtx, pool, string(migrationSQL)); err != nil {
			log.Printf("Aviso ao rodar migrações: %v. (Continuando...)", err)
		} else {
			log.Println("Migrações do banco de dados aplicadas com sucesso.")
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(initCtx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			log.Fatalf("Falha ao carregar configuração da AWS: %v", err)
		}
		images := storage.NewS3ImageStore(
			s3.NewFromConfig(awsCfg), cfg.AWSBucketName, cfg.AWSRegion, cfg.PublicURLBase)

		pg := gateway.NewPostgresGateway(pool, images)
		pg.Start()
		log.Println("Listener de mudanças do banco iniciado.")

		gw = pg
		sessions = session.NewPostgresStore(pool)
		shutdownGateway = func() {
			pg.Close()
			pool.Close()
		}
	}
	defer shutdownGateway()

	// Autenticação do administrador
	verifier, err := auth.NewVerifier(cfg.AdminPasswordHash)
	if err != nil {
		log.Fatalf("ADMIN_PASSWORD_HASH inválido: %v", err)
	}
	tokenService, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("Falha ao iniciar TokenService: %v", err)
	}

	// Núcleo: máquinas de fluxo por dispositivo e o painel do admin
	flows := flow.NewManager(flow.Config{
		Gateway:       gw,
		Sessions:      sessions,
		Verifier:      verifier,
		SubmitTimeout: cfg.SubmitTimeout,
	})
	defer flows.Close()

	panel := admin.NewPanel(gw, cfg.AdminPageSize)
	if err := panel.Start(initCtx); err != nil {
		log.Fatalf("Falha ao iniciar o painel de administração: %v", err)
	}
	defer panel.Stop()

	// Camada HTTP
	handler := api.NewHandler(flows, panel, tokenService, cfg.MaxUploadBytes, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:     handler.Routes(),
		ReadTimeout: 15 * time.Second,
		// WriteTimeout zero: as rotas de SSE ficam abertas indefinidamente
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Printf("Servidor iniciado em http://localhost:%d/v1", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Erro ao iniciar servidor: %v", err)
		}
	}()

	// Aguardar sinal de interrupção
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Recebido sinal de desligamento, encerrando servidor...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Erro no graceful shutdown: %v", err)
	}
	log.Println("Servidor encerrado.")
}
