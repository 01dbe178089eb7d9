package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/approvhq/approv-backend/internal/http/handlers/common"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/obs"
	"github.com/approvhq/approv-backend/internal/service"
)

// CsrfCookieName имя cookie с CSRF-токеном портала. Вторая половина
// double-submit пары, первая уходит в теле ответа.
const CsrfCookieName = "approv_csrf"

// PortalHandler обслуживает клиентский портал. Авторизации нет:
// доступ определяется токеном в ссылке.
type PortalHandler struct {
	portal *service.PortalService
	csrf   *service.CsrfService
	cache  *service.CacheService
	// secureCookies включает флаг Secure на CSRF-cookie.
	secureCookies bool
}

// NewPortalHandler создаёт новый хэндлер.
func NewPortalHandler(portal *service.PortalService, csrf *service.CsrfService, cache *service.CacheService, secureCookies bool) *PortalHandler {
	return &PortalHandler{portal: portal, csrf: csrf, cache: cache, secureCookies: secureCookies}
}

// PortalViewResponse описывает страницу согласования на портале. В ответе на
// решение CSRF-токен уже не выдаётся.
type PortalViewResponse struct {
	Approval  *models.Approval `json:"approval"`
	CsrfToken string           `json:"csrf_token,omitempty"`
}

// RespondRequest содержит тело ответа клиента. Комментарий обязателен при
// запросе правок.
type RespondRequest struct {
	Notes *string `json:"notes"`
}

// View обрабатывает GET /portal/approvals/:token: отдаёт согласование,
// учитывает просмотр и выдаёт CSRF-пару для последующего ответа.
func (h *PortalHandler) View(c *gin.Context) {
	approval, err := h.portal.View(c.Request.Context(), c.Param("token"), c.ClientIP())
	if err != nil {
		common.Error(c, err)
		return
	}

	csrfToken, err := h.csrf.Issue(c.Request.Context(), approval.ID)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CsrfCookieName, csrfToken.Token, int(h.csrf.TTL().Seconds()), "/", "", h.secureCookies, true)

	approval.Status = approval.EffectiveStatus(time.Now())
	c.JSON(http.StatusOK, PortalViewResponse{Approval: approval, CsrfToken: csrfToken.Token})
}

// Approve обрабатывает POST /portal/approvals/:token/approve.
func (h *PortalHandler) Approve(c *gin.Context) {
	h.respond(c, models.ApprovalStatusApproved)
}

// RequestChanges обрабатывает POST /portal/approvals/:token/request-changes.
func (h *PortalHandler) RequestChanges(c *gin.Context) {
	h.respond(c, models.ApprovalStatusChangesRequested)
}

// respond записывает решение клиента. CSRF-пара собирается из
// заголовка и cookie, сверка происходит в сервисе после разрешения
// токена в согласование.
func (h *PortalHandler) respond(c *gin.Context, decision string) {
	var req RespondRequest
	if c.Request.ContentLength > 0 {
		if err := common.BindJSON(c, &req); err != nil {
			common.Error(c, err)
			return
		}
	}

	cookieToken, _ := c.Cookie(CsrfCookieName)

	approval, err := h.portal.Respond(c.Request.Context(), service.RespondInput{
		Token:      c.Param("token"),
		Decision:   decision,
		Notes:      req.Notes,
		CsrfHeader: c.GetHeader("X-CSRF-Token"),
		CsrfCookie: cookieToken,
		IP:         c.ClientIP(),
	})
	if err != nil {
		common.Error(c, err)
		return
	}

	obs.PortalResponsesTotal.WithLabelValues(decision).Inc()
	h.cache.InvalidateOrgCache(approval.OrgID)

	approval.Status = approval.EffectiveStatus(time.Now())
	c.JSON(http.StatusOK, PortalViewResponse{Approval: approval})
}

// ClientOverview обрабатывает GET /portal/me/:portalToken: личная
// страница клиента с его проектами и согласованиями.
func (h *PortalHandler) ClientOverview(c *gin.Context) {
	overview, err := h.portal.Overview(c.Request.Context(), c.Param("portalToken"))
	if err != nil {
		common.Error(c, err)
		return
	}

	now := time.Now()
	for i := range overview.Approvals {
		overview.Approvals[i].Status = overview.Approvals[i].EffectiveStatus(now)
	}

	c.JSON(http.StatusOK, overview)
}
