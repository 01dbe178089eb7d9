package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/audit"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/repository"
)

// UploadStore описывает объектное хранилище для сервиса загрузок.
type UploadStore interface {
	Put(ctx context.Context, orgID, approvalID uuid.UUID, originalName, contentType string, r io.Reader, size int64) (string, error)
	PresignGet(ctx context.Context, objectKey, fileName string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, objectKey string) error
}

// UploadApprovalReader отдаёт согласование для проверки прав на загрузку.
type UploadApprovalReader interface {
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Approval, error)
}

// UploadService управляет файлами согласований: содержимое в объектном
// хранилище, метаданные в БД.
type UploadService struct {
	approvals UploadApprovalReader
	files     *repository.FileRepository
	store     UploadStore
	auditor   *audit.Recorder
}

// NewUploadService создаёт сервис загрузок.
func NewUploadService(approvals UploadApprovalReader, files *repository.FileRepository, store UploadStore, auditor *audit.Recorder) *UploadService {
	return &UploadService{approvals: approvals, files: files, store: store, auditor: auditor}
}

// Attach прикладывает файл к согласованию. После ответа клиента состав
// файлов заморожен: клиент отвечал на конкретные материалы.
func (s *UploadService) Attach(ctx context.Context, actor Actor, approvalID uuid.UUID, fileName, contentType string, r io.Reader, size int64) (*models.ApprovalFile, error) {
	approval, err := s.approvals.GetByID(ctx, actor.OrgID, approvalID)
	if err != nil {
		if errors.Is(err, repository.ErrApprovalNotFound) {
			return nil, apperror.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("upload service: attach %w", err)
	}

	if approval.RespondedAt != nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "по согласованию уже дан ответ, файлы изменить нельзя")
	}

	objectKey, err := s.store.Put(ctx, actor.OrgID, approval.ID, fileName, contentType, r, size)
	if err != nil {
		return nil, fmt.Errorf("upload service: attach %w", err)
	}

	file := &models.ApprovalFile{
		ApprovalID: approval.ID,
		OrgID:      actor.OrgID,
		ObjectKey:  objectKey,
		FileName:   fileName,
		MimeType:   contentType,
		SizeBytes:  size,
	}

	if err := s.files.Create(ctx, file); err != nil {
		// Объект уже записан: подчищаем, чтобы не копить сирот.
		_ = s.store.Delete(ctx, objectKey)
		return nil, fmt.Errorf("upload service: attach meta %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		OrgID:      actor.OrgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &actor.UserID,
		Action:     models.AuditFileUploaded,
		EntityType: "approval_file",
		EntityID:   &file.ID,
		Details: map[string]any{
			"approval_id": approval.ID.String(),
			"file_name":   fileName,
			"size_bytes":  size,
		},
		IP: actor.IP,
	})

	return file, nil
}

// Link выдаёт временную ссылку на файл для дашборда.
func (s *UploadService) Link(ctx context.Context, orgID, fileID uuid.UUID) (string, error) {
	file, err := s.files.GetByID(ctx, orgID, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return "", apperror.New(apperror.ErrCodeNotFound, "файл не найден")
		}
		return "", fmt.Errorf("upload service: link %w", err)
	}

	url, err := s.store.PresignGet(ctx, file.ObjectKey, file.FileName, time.Hour)
	if err != nil {
		return "", fmt.Errorf("upload service: link %w", err)
	}

	return url, nil
}

// Remove удаляет файл согласования, пока по нему нет ответа.
func (s *UploadService) Remove(ctx context.Context, actor Actor, fileID uuid.UUID) error {
	file, err := s.files.GetByID(ctx, actor.OrgID, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return apperror.New(apperror.ErrCodeNotFound, "файл не найден")
		}
		return fmt.Errorf("upload service: remove %w", err)
	}

	approval, err := s.approvals.GetByID(ctx, actor.OrgID, file.ApprovalID)
	if err == nil && approval.RespondedAt != nil {
		return apperror.New(apperror.ErrCodeConflict, "по согласованию уже дан ответ, файлы изменить нельзя")
	}

	if err := s.files.Delete(ctx, actor.OrgID, fileID); err != nil {
		return fmt.Errorf("upload service: remove meta %w", err)
	}

	if err := s.store.Delete(ctx, file.ObjectKey); err != nil {
		return fmt.Errorf("upload service: remove object %w", err)
	}

	return nil
}
