package email

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/models"
)

func TestRendererDefaultTemplates(t *testing.T) {
	r := NewRenderer(nil)

	data := TemplateData{
		OrgName:     "Студия Треугольник",
		ClientName:  "Виктор Смирнов",
		ProjectName: "Дом в Репино",
		Title:       "Планировка первого этажа",
		PortalURL:   "https://portal.example.com/a/tok-123",
		ExpiresAt:   "12.09.2026",
		Version:     2,
	}

	subject, body, err := r.Render(context.Background(), uuid.New(), models.EmailKindApprovalRequest, data)
	if err != nil {
		t.Fatalf("рендер письма вернул ошибку: %v", err)
	}
	if !strings.Contains(subject, "Планировка первого этажа") {
		t.Fatalf("тема должна содержать название согласования, получили %q", subject)
	}
	if !strings.Contains(body, data.PortalURL) {
		t.Fatalf("тело должно содержать ссылку на портал")
	}
	if !strings.Contains(body, "12.09.2026") {
		t.Fatalf("тело должно содержать срок действия ссылки")
	}
}

func TestRendererEveryKindRenders(t *testing.T) {
	r := NewRenderer(nil)
	data := TemplateData{
		OrgName:     "Студия",
		ClientName:  "Клиент",
		ProjectName: "Проект",
		Title:       "Лист",
		Notes:       "Поправьте фасад",
	}

	kinds := []string{
		models.EmailKindApprovalRequest,
		models.EmailKindApprovalReminder,
		models.EmailKindApprovalApproved,
		models.EmailKindApprovalChanges,
		models.EmailKindApprovalResubmitted,
	}

	for _, kind := range kinds {
		subject, body, err := r.Render(context.Background(), uuid.New(), kind, data)
		if err != nil {
			t.Fatalf("вид %s не отрендерился: %v", kind, err)
		}
		if subject == "" || body == "" {
			t.Fatalf("вид %s дал пустое письмо", kind)
		}
	}
}

func TestRendererUnknownKind(t *testing.T) {
	r := NewRenderer(nil)

	_, _, err := r.Render(context.Background(), uuid.New(), "no-such-kind", TemplateData{})
	if err == nil {
		t.Fatalf("неизвестный вид письма должен давать ошибку")
	}
}

func TestRendererEscapesHTML(t *testing.T) {
	r := NewRenderer(nil)

	data := TemplateData{
		OrgName:    "Студия",
		ClientName: "<script>alert(1)</script>",
		Title:      "Лист",
	}

	_, body, err := r.Render(context.Background(), uuid.New(), models.EmailKindApprovalApproved, data)
	if err != nil {
		t.Fatalf("рендер письма вернул ошибку: %v", err)
	}
	if strings.Contains(body, "<script>") {
		t.Fatalf("данные клиента должны экранироваться в HTML")
	}
}

func TestFormatExpiry(t *testing.T) {
	ts := time.Date(2026, 9, 12, 15, 4, 5, 0, time.UTC)
	if got := FormatExpiry(ts); got != "12.09.2026" {
		t.Fatalf("ожидали 12.09.2026, получили %q", got)
	}
}
