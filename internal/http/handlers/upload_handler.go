package handlers

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/h2non/filetype"

	"github.com/approvhq/approv-backend/internal/http/handlers/common"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/service"
)

// Допустимые материалы согласований: изображения и PDF. Тип проверяется по
// магическим байтам, расширению не доверяем.
var allowedUploadMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"image/gif":       true,
	"image/tiff":      true,
	"application/pdf": true,
}

// UploadHandler обслуживает файлы согласований: загрузку материалов,
// временные ссылки и удаление.
type UploadHandler struct {
	uploads     *service.UploadService
	maxUploadMB int64
}

// NewUploadHandler создаёт новый хэндлер.
func NewUploadHandler(uploads *service.UploadService, maxUploadMB int64) *UploadHandler {
	return &UploadHandler{uploads: uploads, maxUploadMB: maxUploadMB}
}

// Upload обрабатывает POST /api/approvals/:id/files.
func (h *UploadHandler) Upload(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	approvalID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Error(c, err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		common.Error(c, apperror.New(apperror.ErrCodeValidation, "поле file обязательно"))
		return
	}

	if fileHeader.Size == 0 {
		common.Error(c, apperror.New(apperror.ErrCodeValidation, "файл не может быть пустым"))
		return
	}
	if fileHeader.Size > h.maxUploadMB<<20 {
		common.Error(c, apperror.New(apperror.ErrCodeValidation,
			fmt.Sprintf("файл слишком большой, лимит %d МБ", h.maxUploadMB)))
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		common.Error(c, fmt.Errorf("upload handler: open multipart %w", err))
		return
	}
	defer src.Close()

	// Читаем первые 512 байт для проверки магических байтов.
	buffer := make([]byte, 512)
	n, err := src.Read(buffer)
	if err != nil && err != io.EOF {
		common.Error(c, apperror.New(apperror.ErrCodeValidation, "не удалось прочитать файл"))
		return
	}

	kind, err := filetype.Match(buffer[:n])
	if err != nil || kind == filetype.Unknown || !allowedUploadMimeTypes[kind.MIME.Value] {
		common.Error(c, apperror.New(apperror.ErrCodeValidation,
			"неподдерживаемый формат файла. Разрешены: "+strings.Join(allowedUploadList(), ", ")))
		return
	}

	// Сбрасываем позицию после чтения магических байтов.
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		common.Error(c, fmt.Errorf("upload handler: seek multipart %w", err))
		return
	}

	file, err := h.uploads.Attach(c.Request.Context(), actor, approvalID,
		fileHeader.Filename, kind.MIME.Value, src, fileHeader.Size)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, file)
}

// Link обрабатывает GET /api/files/:id/link: выдаёт временную ссылку
// на скачивание.
func (h *UploadHandler) Link(c *gin.Context) {
	orgID, err := common.CurrentOrgID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	fileID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Error(c, err)
		return
	}

	url, err := h.uploads.Link(c.Request.Context(), orgID, fileID)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// Remove обрабатывает DELETE /api/files/:id.
func (h *UploadHandler) Remove(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	fileID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Error(c, err)
		return
	}

	if err := h.uploads.Remove(c.Request.Context(), actor, fileID); err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "файл удалён"})
}

func allowedUploadList() []string {
	list := make([]string, 0, len(allowedUploadMimeTypes))
	for mime := range allowedUploadMimeTypes {
		list = append(list, mime)
	}
	sort.Strings(list)
	return list
}
