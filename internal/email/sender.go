package email

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"github.com/sirupsen/logrus"

	"github.com/approvhq/approv-backend/internal/logger"
)

// Message представляет письмо, готовое к отправке.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender отправляет письма. Реализации: Resend для боевой среды,
// лог-заглушка для разработки без API-ключа.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ResendSender отправляет письма через Resend.
type ResendSender struct {
	client *resend.Client
	from   string
	log    *logrus.Entry
}

// NewResendSender создаёт отправителя. from в формате "Имя <адрес>".
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
		log:    logger.WithComponent("email"),
	}
}

// Send отправляет письмо.
func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("email: send %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"email_id": sent.Id,
		"subject":  msg.Subject,
	}).Info("письмо отправлено")

	return nil
}

// LogSender пишет письма в лог вместо отправки. Используется в
// разработке, когда RESEND_API_KEY не задан.
type LogSender struct {
	log *logrus.Entry
}

// NewLogSender создаёт лог-отправителя.
func NewLogSender() *LogSender {
	return &LogSender{log: logger.WithComponent("email")}
}

// Send логирует письмо.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("письмо не отправлено: отправка выключена, текст записан в лог")
	return nil
}
