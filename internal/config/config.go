package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config armazena a configuração da aplicação
type Config struct {
	ServerPort int  `envconfig:"SERVER_PORT" default:"8080"`
	DevMode    bool `envconfig:"DEV_MODE" default:"false"` // usa gateway em memória, sem Postgres/S3

	DatabaseURL    string `envconfig:"DATABASE_URL"`
	MigrationsFile string `envconfig:"MIGRATIONS_FILE" default:"./migrations/001_init.sql"`

	AWSBucketName string `envconfig:"AWS_BUCKET_NAME"`
	AWSRegion     string `envconfig:"AWS_REGION"`
	PublicURLBase string `envconfig:"PUBLIC_URL_BASE"` // base das URLs públicas das fotos; derivada do bucket se vazia

	JWTSecret         string `envconfig:"JWT_SECRET" required:"true"`
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH" required:"true"` // hash bcrypt, nunca a senha em texto

	MaxUploadBytes int64         `envconfig:"MAX_UPLOAD_BYTES" default:"3145728"` // 3MB por foto na borda HTTP
	SubmitTimeout  time.Duration `envconfig:"SUBMIT_TIMEOUT" default:"60s"`
	AdminPageSize  int           `envconfig:"ADMIN_PAGE_SIZE" default:"100"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// Load carrega a configuração das variáveis de ambiente
func Load(cfg *Config) error {
	return envconfig.Process("", cfg)
}
