package storage

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"verifica18-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3ImageStore guarda as fotos dos documentos em um bucket S3
type S3ImageStore struct {
	client        *s3.Client
	bucketName    string
	publicURLBase string
}

// NewS3ImageStore cria um novo store S3. publicURLBase é a base das URLs
// públicas; se vazia, usa o endereço padrão do bucket na região dada.
func NewS3ImageStore(client *s3.Client, bucketName, region, publicURLBase string) *S3ImageStore {
	if publicURLBase == "" {
		publicURLBase = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucketName, region)
	}
	return &S3ImageStore{
		client:        client,
		bucketName:    bucketName,
		publicURLBase: strings.TrimRight(publicURLBase, "/"),
	}
}

// Store valida a imagem, envia para o bucket e devolve a URL pública
func (s *S3ImageStore) Store(ctx context.Context, img *models.DocumentImage, ownerID uuid.UUID) (string, error) {
	ext, err := ValidateImage(img)
	if err != nil {
		return "", err
	}

	key := objectKey(ownerID, ext, time.Now())

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucketName),
		Key:          aws.String(key),
		Body:         bytes.NewReader(img.Data),
		ContentType:  aws.String(img.ContentType),
		CacheControl: aws.String("max-age=3600"),
	})
	if err != nil {
		log.Printf("Erro ao enviar objeto %s para o S3: %v", key, err)
		return "", fmt.Errorf("falha ao enviar imagem: %w", err)
	}

	return s.publicURLBase + "/" + key, nil
}
