package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/repository"
)

// TemplateData содержит данные, доступные шаблонам писем.
type TemplateData struct {
	OrgName     string
	ClientName  string
	ProjectName string
	Title       string
	PortalURL   string
	ExpiresAt   string
	Notes       string
	Version     int
}

// defaultTemplate встроенный шаблон письма.
type defaultTemplate struct {
	subject string
	body    string
}

// Встроенные шаблоны по видам писем. Организация может переопределить
// любой из них строкой в email_templates.
var defaultTemplates = map[string]defaultTemplate{
	models.EmailKindApprovalRequest: {
		subject: "{{.OrgName}}: согласование «{{.Title}}»",
		body: `<p>Здравствуйте, {{.ClientName}}!</p>
<p>Студия {{.OrgName}} просит вас согласовать «{{.Title}}» по проекту «{{.ProjectName}}».</p>
<p><a href="{{.PortalURL}}">Открыть согласование</a></p>
<p>Ссылка действует до {{.ExpiresAt}}.</p>`,
	},
	models.EmailKindApprovalReminder: {
		subject: "Напоминание: «{{.Title}}» ждёт вашего решения",
		body: `<p>Здравствуйте, {{.ClientName}}!</p>
<p>Согласование «{{.Title}}» по проекту «{{.ProjectName}}» всё ещё ждёт вашего решения.</p>
<p><a href="{{.PortalURL}}">Открыть согласование</a></p>
<p>Ссылка действует до {{.ExpiresAt}}.</p>`,
	},
	models.EmailKindApprovalApproved: {
		subject: "Клиент согласовал «{{.Title}}»",
		body: `<p>{{.ClientName}} согласовал(а) «{{.Title}}» по проекту «{{.ProjectName}}».</p>
{{if .Notes}}<p>Комментарий: {{.Notes}}</p>{{end}}`,
	},
	models.EmailKindApprovalChanges: {
		subject: "Клиент запросил правки по «{{.Title}}»",
		body: `<p>{{.ClientName}} запросил(а) правки по «{{.Title}}» (проект «{{.ProjectName}}»).</p>
<p>Комментарий: {{.Notes}}</p>`,
	},
	models.EmailKindApprovalResubmitted: {
		subject: "{{.OrgName}}: обновлённая версия «{{.Title}}»",
		body: `<p>Здравствуйте, {{.ClientName}}!</p>
<p>Студия {{.OrgName}} внесла правки и повторно отправила «{{.Title}}» (версия {{.Version}}).</p>
<p><a href="{{.PortalURL}}">Открыть согласование</a></p>
<p>Ссылка действует до {{.ExpiresAt}}.</p>`,
	},
}

// Renderer собирает письмо по виду: берёт переопределение организации,
// а при его отсутствии встроенный шаблон.
type Renderer struct {
	templates *repository.EmailTemplateRepository
}

// NewRenderer создаёт рендерер писем.
func NewRenderer(templates *repository.EmailTemplateRepository) *Renderer {
	return &Renderer{templates: templates}
}

// Render возвращает тему и HTML-тело письма вида kind для организации.
func (r *Renderer) Render(ctx context.Context, orgID uuid.UUID, kind string, data TemplateData) (subject, body string, err error) {
	subjectTpl, bodyTpl, err := r.resolve(ctx, orgID, kind)
	if err != nil {
		return "", "", err
	}

	subject, err = renderTemplate("subject", subjectTpl, data)
	if err != nil {
		return "", "", fmt.Errorf("email: render subject for %s: %w", kind, err)
	}

	body, err = renderTemplate("body", bodyTpl, data)
	if err != nil {
		return "", "", fmt.Errorf("email: render body for %s: %w", kind, err)
	}

	return subject, body, nil
}

// resolve выбирает шаблон: переопределение организации или встроенный.
func (r *Renderer) resolve(ctx context.Context, orgID uuid.UUID, kind string) (subject, body string, err error) {
	if r.templates != nil {
		override, err := r.templates.GetByKind(ctx, orgID, kind)
		if err == nil {
			return override.Subject, override.BodyHTML, nil
		}
		if !errors.Is(err, repository.ErrEmailTemplateNotFound) {
			return "", "", fmt.Errorf("email: resolve template %s: %w", kind, err)
		}
	}

	def, ok := defaultTemplates[kind]
	if !ok {
		return "", "", fmt.Errorf("email: unknown template kind %q", kind)
	}
	return def.subject, def.body, nil
}

func renderTemplate(name, text string, data TemplateData) (string, error) {
	tpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// FormatExpiry форматирует срок действия для писем.
func FormatExpiry(t time.Time) string {
	return t.Format("02.01.2006")
}
