package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/audit"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/repository"
)

// uploadApprovalStub отдаёт одно согласование по его идентификатору.
type uploadApprovalStub struct {
	approval *models.Approval
}

func (s *uploadApprovalStub) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Approval, error) {
	if s.approval == nil || s.approval.ID != id || s.approval.OrgID != orgID {
		return nil, repository.ErrApprovalNotFound
	}
	clone := *s.approval
	return &clone, nil
}

// uploadStoreStub считает обращения к объектному хранилищу.
type uploadStoreStub struct {
	puts int
}

func (s *uploadStoreStub) Put(ctx context.Context, orgID, approvalID uuid.UUID, originalName, contentType string, r io.Reader, size int64) (string, error) {
	s.puts++
	return "org/" + orgID.String() + "/" + originalName, nil
}

func (s *uploadStoreStub) PresignGet(ctx context.Context, objectKey, fileName string, expiry time.Duration) (string, error) {
	return "https://files.example.com/" + objectKey, nil
}

func (s *uploadStoreStub) Delete(ctx context.Context, objectKey string) error { return nil }

func TestUploadService_Attach_AfterResponse(t *testing.T) {
	orgID := uuid.New()
	now := time.Now().UTC()
	approval := &models.Approval{
		ID:          uuid.New(),
		OrgID:       orgID,
		Status:      models.ApprovalStatusApproved,
		RespondedAt: &now,
	}

	store := &uploadStoreStub{}
	svc := NewUploadService(&uploadApprovalStub{approval: approval}, nil, store, audit.NewRecorder(&recordingAuditRepo{}))

	_, err := svc.Attach(context.Background(), Actor{UserID: uuid.New(), OrgID: orgID}, approval.ID,
		"plan.pdf", "application/pdf", strings.NewReader("%PDF"), 4)
	if apperror.CodeOf(err) != apperror.ErrCodeConflict {
		t.Fatalf("после ответа клиента состав файлов заморожен, получили %v", err)
	}
	if store.puts != 0 {
		t.Fatalf("файл не должен был попасть в хранилище")
	}
}

func TestUploadService_Attach_UnknownApproval(t *testing.T) {
	svc := NewUploadService(&uploadApprovalStub{}, nil, &uploadStoreStub{}, audit.NewRecorder(&recordingAuditRepo{}))

	_, err := svc.Attach(context.Background(), Actor{UserID: uuid.New(), OrgID: uuid.New()}, uuid.New(),
		"plan.pdf", "application/pdf", strings.NewReader("%PDF"), 4)
	if apperror.CodeOf(err) != apperror.ErrCodeNotFound {
		t.Fatalf("чужое или несуществующее согласование должно давать NOT_FOUND, получили %v", err)
	}
}
