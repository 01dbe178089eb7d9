package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/approvhq/approv-backend/internal/audit"
	"github.com/approvhq/approv-backend/internal/logger"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/repository"
	"github.com/approvhq/approv-backend/internal/service"
)

// webhookBodyLimit ограничивает тело входящего вебхука.
const webhookBodyLimit = 1 << 20

// WebhookHandler принимает входящие вебхуки провайдеров. Маршруты
// публичные, подлинность подтверждается подписью запроса.
type WebhookHandler struct {
	accounts      *repository.IntegrationRepository
	notifier      *service.NotificationService
	auditor       *audit.Recorder
	dropboxSecret string
	mondaySecret  string
	log           *logrus.Entry
}

// NewWebhookHandler создаёт новый хэндлер.
func NewWebhookHandler(
	accounts *repository.IntegrationRepository,
	notifier *service.NotificationService,
	auditor *audit.Recorder,
	dropboxSecret, mondaySecret string,
) *WebhookHandler {
	return &WebhookHandler{
		accounts:      accounts,
		notifier:      notifier,
		auditor:       auditor,
		dropboxSecret: dropboxSecret,
		mondaySecret:  mondaySecret,
		log:           logger.WithComponent("webhooks"),
	}
}

// DropboxChallenge обрабатывает GET /webhooks/dropbox: эхо параметра
// challenge при регистрации вебхука. Dropbox ждёт text/plain.
func (h *WebhookHandler) DropboxChallenge(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.String(http.StatusOK, c.Query("challenge"))
}

// dropboxNotification описывает тело уведомления Dropbox: списки аккаунтов,
// у которых изменились файлы.
type dropboxNotification struct {
	ListFolder struct {
		Accounts []string `json:"accounts"`
	} `json:"list_folder"`
}

// DropboxNotify обрабатывает POST /webhooks/dropbox. Подпись проверяется
// как HMAC-SHA256 сырого тела ключом app secret, сравнение за
// постоянное время.
func (h *WebhookHandler) DropboxNotify(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookBodyLimit))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "не удалось прочитать тело запроса"})
		return
	}

	if !h.verifyDropboxSignature(body, c.GetHeader("X-Dropbox-Signature")) {
		h.log.Warn("вебхук Dropbox с неверной подписью отклонён")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "неверная подпись"})
		return
	}

	var payload dropboxNotification
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "некорректное тело запроса"})
		return
	}

	// Dropbox присылает только идентификаторы аккаунтов; организации
	// находятся по external_id подключения.
	linked, err := h.accounts.ListByProvider(c.Request.Context(), models.IntegrationProviderDropbox)
	if err != nil {
		h.log.WithError(err).Error("не удалось получить подключения Dropbox")
		c.Status(http.StatusOK)
		return
	}

	changed := make(map[string]bool, len(payload.ListFolder.Accounts))
	for _, account := range payload.ListFolder.Accounts {
		changed[account] = true
	}

	ctx := c.Request.Context()
	for _, account := range linked {
		if account.ExternalID == nil || !changed[*account.ExternalID] {
			continue
		}

		h.auditor.Record(ctx, audit.Event{
			OrgID:      account.OrgID,
			ActorType:  models.ActorTypeSystem,
			Action:     models.AuditWebhookReceived,
			EntityType: "integration",
			EntityID:   &account.ID,
			Details:    map[string]any{"provider": models.IntegrationProviderDropbox},
		})

		h.notifier.Notify(ctx, account.OrgID, models.NotificationFilesChanged,
			"Файлы в Dropbox обновились",
			"В подключённой папке Dropbox появились изменения.",
			map[string]any{"provider": models.IntegrationProviderDropbox},
		)
	}

	// Dropbox повторяет доставку при не-2xx, отвечаем быстро и без тела.
	c.Status(http.StatusOK)
}

// verifyDropboxSignature сверяет подпись тела с заголовком.
func (h *WebhookHandler) verifyDropboxSignature(body []byte, signature string) bool {
	if h.dropboxSecret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.dropboxSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// mondayEvent описывает тело вебхука Monday: либо challenge при регистрации,
// либо событие доски.
type mondayEvent struct {
	Challenge string `json:"challenge"`
	Event     struct {
		Type    string          `json:"type"`
		BoardID json.RawMessage `json:"boardId"`
	} `json:"event"`
}

// MondayNotify обрабатывает POST /webhooks/monday. Monday подписывает
// запросы JWT в заголовке Authorization; при регистрации присылает
// challenge, который нужно вернуть как есть.
func (h *WebhookHandler) MondayNotify(c *gin.Context) {
	if !h.verifyMondayToken(c.GetHeader("Authorization")) {
		h.log.Warn("вебхук Monday с неверным токеном отклонён")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "неверная подпись"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookBodyLimit))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "не удалось прочитать тело запроса"})
		return
	}

	var payload mondayEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "некорректное тело запроса"})
		return
	}

	if payload.Challenge != "" {
		c.JSON(http.StatusOK, gin.H{"challenge": payload.Challenge})
		return
	}

	boardID := trimJSONNumber(payload.Event.BoardID)
	if payload.Event.Type == "" || boardID == "" {
		c.Status(http.StatusOK)
		return
	}

	linked, err := h.accounts.ListByProvider(c.Request.Context(), models.IntegrationProviderMonday)
	if err != nil {
		h.log.WithError(err).Error("не удалось получить подключения Monday")
		c.Status(http.StatusOK)
		return
	}

	ctx := c.Request.Context()
	for _, account := range linked {
		if !mondayBoardMatches(account.Settings, boardID) {
			continue
		}

		h.auditor.Record(ctx, audit.Event{
			OrgID:      account.OrgID,
			ActorType:  models.ActorTypeSystem,
			Action:     models.AuditWebhookReceived,
			EntityType: "integration",
			EntityID:   &account.ID,
			Details: map[string]any{
				"provider": models.IntegrationProviderMonday,
				"event":    payload.Event.Type,
			},
		})

		h.notifier.Notify(ctx, account.OrgID, models.NotificationFilesChanged,
			"Изменение на доске Monday",
			fmt.Sprintf("На подключённой доске произошло событие %s.", payload.Event.Type),
			map[string]any{"provider": models.IntegrationProviderMonday, "event": payload.Event.Type},
		)
	}

	c.Status(http.StatusOK)
}

// verifyMondayToken проверяет JWT из заголовка Authorization.
func (h *WebhookHandler) verifyMondayToken(raw string) bool {
	if h.mondaySecret == "" || raw == "" {
		return false
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный метод подписи: %v", t.Header["alg"])
		}
		return []byte(h.mondaySecret), nil
	})

	return err == nil && token.Valid
}

// mondayBoardMatches сообщает, настроено ли подключение на эту доску.
func mondayBoardMatches(settings json.RawMessage, boardID string) bool {
	if len(settings) == 0 {
		return false
	}

	var parsed struct {
		BoardID string `json:"board_id"`
	}
	if err := json.Unmarshal(settings, &parsed); err != nil {
		return false
	}

	return parsed.BoardID != "" && parsed.BoardID == boardID
}

// trimJSONNumber приводит boardId к строке: Monday шлёт его числом.
func trimJSONNumber(raw json.RawMessage) string {
	s := string(raw)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
