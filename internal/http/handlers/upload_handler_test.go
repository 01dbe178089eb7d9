package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/approvhq/approv-backend/internal/http/middleware"
	"github.com/approvhq/approv-backend/internal/models"
)

// testAuthContext подкладывает в контекст авторизованного владельца.
func testAuthContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, uuid.New())
		c.Set(middleware.ContextOrgIDKey, uuid.New())
		c.Set(middleware.ContextRoleKey, models.UserRoleOwner)
	}
}

func multipartFile(t *testing.T, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func TestUploadHandler_Upload_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler(false))
	handler := NewUploadHandler(nil, 25)
	r.POST("/api/approvals/:id/files", handler.Upload)

	req, _ := http.NewRequest("POST", "/api/approvals/"+uuid.NewString()+"/files", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUploadHandler_Upload_InvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler(false), testAuthContext())
	handler := NewUploadHandler(nil, 25)
	r.POST("/api/approvals/:id/files", handler.Upload)

	body, contentType := multipartFile(t, "plan.pdf", []byte("%PDF-1.4"))
	req, _ := http.NewRequest("POST", "/api/approvals/not-a-uuid/files", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "BAD_REQUEST")
}

func TestUploadHandler_Upload_UnknownFileType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler(false), testAuthContext())
	handler := NewUploadHandler(nil, 25)
	r.POST("/api/approvals/:id/files", handler.Upload)

	// Текстовый файл не проходит проверку магических байтов.
	body, contentType := multipartFile(t, "notes.txt", []byte("просто текст, не изображение"))
	req, _ := http.NewRequest("POST", "/api/approvals/"+uuid.NewString()+"/files", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestUploadHandler_Upload_TooLarge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler(false), testAuthContext())
	handler := NewUploadHandler(nil, 1)
	r.POST("/api/approvals/:id/files", handler.Upload)

	oversized := make([]byte, 2<<20)
	body, contentType := multipartFile(t, "big.png", oversized)
	req, _ := http.NewRequest("POST", "/api/approvals/"+uuid.NewString()+"/files", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "слишком большой")
}
