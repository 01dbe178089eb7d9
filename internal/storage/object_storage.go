package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStorage хранит файлы согласований в S3-совместимом хранилище.
// Клиенты получают содержимое только по временным presigned-ссылкам.
type ObjectStorage struct {
	client         *minio.Client
	bucket         string
	maxUploadBytes int64
}

// Config описывает подключение к S3-совместимому хранилищу.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// MaxUploadMB ограничивает размер одного файла.
	MaxUploadMB int64
}

// New создаёт хранилище и проверяет наличие бакета.
func New(ctx context.Context, cfg Config) (*ObjectStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: подключение к %s: %w", cfg.Endpoint, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: проверка бакета %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: создание бакета %s: %w", cfg.Bucket, err)
		}
	}

	return &ObjectStorage{
		client:         client,
		bucket:         cfg.Bucket,
		maxUploadBytes: cfg.MaxUploadMB * 1024 * 1024,
	}, nil
}

// MaxUploadBytes возвращает лимит размера файла.
func (s *ObjectStorage) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// Put сохраняет файл согласования и возвращает ключ объекта. Ключ
// включает организацию и согласование: разбор инцидентов по префиксу.
func (s *ObjectStorage) Put(ctx context.Context, orgID, approvalID uuid.UUID, originalName, contentType string, r io.Reader, size int64) (string, error) {
	if size > s.maxUploadBytes {
		return "", fmt.Errorf("storage: размер файла превышает лимит %d байт", s.maxUploadBytes)
	}

	safeName := sanitizeFilename(originalName)
	objectKey := fmt.Sprintf("%s/%s/%d_%s", orgID, approvalID, time.Now().UnixNano(), safeName)

	if _, err := s.client.PutObject(ctx, s.bucket, objectKey, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("storage: запись объекта: %w", err)
	}

	return objectKey, nil
}

// PresignGet выдаёт временную ссылку на скачивание с человеческим
// именем файла в Content-Disposition.
func (s *ObjectStorage) PresignGet(ctx context.Context, objectKey, fileName string, expiry time.Duration) (string, error) {
	params := make(url.Values)
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", sanitizeFilename(fileName)))

	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, expiry, params)
	if err != nil {
		return "", fmt.Errorf("storage: presigned-ссылка: %w", err)
	}

	return u.String(), nil
}

// Delete удаляет объект.
func (s *ObjectStorage) Delete(ctx context.Context, objectKey string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("storage: удаление объекта: %w", err)
	}
	return nil
}

// sanitizeFilename удаляет потенциально опасные символы.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" {
		name = "file"
	}
	return name
}
