package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/report"
)

// eventLabels задаёт подписи событий журнала для хронологии отчёта.
// Отчёт генерируется латиницей, см. пакет report.
var eventLabels = map[string]string{
	models.AuditApprovalCreated:      "Approval created",
	models.AuditApprovalSent:         "Sent to client",
	models.AuditApprovalViewed:       "Viewed by client",
	models.AuditApprovalApproved:     "Approved by client",
	models.AuditApprovalChanges:      "Changes requested by client",
	models.AuditApprovalResubmitted:  "Resubmitted after changes",
	models.AuditApprovalReminderSent: "Reminder sent",
	models.AuditFileUploaded:         "File attached",
}

// ReportService собирает PDF-отчёт по согласованию для выгрузки из
// кабинета студии.
type ReportService struct {
	approvals ApprovalRepository
	orgs      OrganizationReader
	audit     *AuditService
}

// NewReportService создаёт экземпляр сервиса.
func NewReportService(approvals ApprovalRepository, orgs OrganizationReader, audit *AuditService) *ReportService {
	return &ReportService{approvals: approvals, orgs: orgs, audit: audit}
}

// Generate пишет PDF-отчёт в w и возвращает имя файла для выгрузки.
func (s *ReportService) Generate(ctx context.Context, w io.Writer, orgID, approvalID uuid.UUID) (string, error) {
	approval, err := s.approvals.GetByID(ctx, orgID, approvalID)
	if err != nil {
		return "", err
	}

	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return "", err
	}

	now := time.Now()

	data := report.Data{
		OrgName:       org.Name,
		ProjectName:   approval.ProjectName,
		ClientName:    approval.ClientName,
		Title:         approval.Title,
		Status:        approval.EffectiveStatus(now),
		Version:       approval.Version,
		CreatedAt:     approval.CreatedAt,
		ExpiresAt:     approval.ExpiresAt,
		SentAt:        approval.SentAt,
		RespondedAt:   approval.RespondedAt,
		ViewCount:     approval.ViewCount,
		FirstViewedAt: approval.FirstViewedAt,
		LastViewedAt:  approval.LastViewedAt,
		GeneratedAt:   now,
	}
	if approval.ResponseNotes != nil {
		data.ResponseNotes = *approval.ResponseNotes
	}

	trail, err := s.audit.EntityTrail(ctx, orgID, "approval", approval.ID)
	if err != nil {
		return "", err
	}
	for _, entry := range trail {
		label, ok := eventLabels[entry.Action]
		if !ok {
			continue
		}
		data.Timeline = append(data.Timeline, report.TimelineEntry{At: entry.CreatedAt, Event: label})
	}

	if err := report.Build(w, data); err != nil {
		return "", fmt.Errorf("report service: build pdf %w", err)
	}

	fileName := fmt.Sprintf("approval-%s-v%d.pdf", approval.ID.String()[:8], approval.Version)
	return fileName, nil
}
