package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"verifica18-backend/internal/models"

	"github.com/google/uuid"
)

// ImageStore guarda a foto de um documento e devolve a URL pública.
// Nunca devolve bytes crus para o resto do sistema.
type ImageStore interface {
	Store(ctx context.Context, img *models.DocumentImage, ownerID uuid.UUID) (string, error)
}

// MaxImageBytes é o teto rígido do lado servidor. A recomendação para o
// cliente é comprimir acima de 3MB; aqui só o teto é imposto.
const MaxImageBytes = 10 << 20

var (
	ErrImageTooLarge        = errors.New("imagem muito grande (máximo 10MB)")
	ErrUnsupportedImageType = errors.New("tipo de arquivo não permitido (use JPEG, PNG ou WebP)")
	ErrEmptyImage           = errors.New("nenhum arquivo enviado")
)

// extensão por content-type aceito
var allowedImageTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// ValidateImage aplica as regras de tipo e tamanho e devolve a extensão
func ValidateImage(img *models.DocumentImage) (string, error) {
	if img == nil || len(img.Data) == 0 {
		return "", ErrEmptyImage
	}
	if int64(len(img.Data)) > MaxImageBytes {
		return "", ErrImageTooLarge
	}

	ct := strings.ToLower(strings.TrimSpace(img.ContentType))
	if ct == "" || ct == "application/octet-stream" {
		// Content-Type ausente ou genérico: decide pelos bytes
		ct = http.DetectContentType(img.Data)
	}
	ext, ok := allowedImageTypes[ct]
	if !ok {
		return "", ErrUnsupportedImageType
	}
	return ext, nil
}

// objectKey gera um caminho único por dono:
// uploads/<ano>/user_<id>_<timestamp>_<sufixo>.<ext>
func objectKey(ownerID uuid.UUID, ext string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("uploads/%d/user_%s_%d_%s.%s",
		now.Year(), ownerID.String(), now.UnixMilli(), suffix, ext)
}
