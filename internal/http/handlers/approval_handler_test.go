package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/approvhq/approv-backend/internal/http/middleware"
)

func TestApprovalHandler_Create_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler(false))
	handler := NewApprovalHandler(nil, nil, nil)
	r.POST("/api/approvals", handler.Create)

	req, _ := http.NewRequest("POST", "/api/approvals", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestApprovalHandler_Get_InvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler(false), testAuthContext())
	handler := NewApprovalHandler(nil, nil, nil)
	r.GET("/api/approvals/:id", handler.Get)

	req, _ := http.NewRequest("GET", "/api/approvals/not-a-uuid", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "BAD_REQUEST")
}

func TestApprovalHandler_List_BadProjectFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler(false), testAuthContext())
	handler := NewApprovalHandler(nil, nil, nil)
	r.GET("/api/approvals", handler.List)

	req, _ := http.NewRequest("GET", "/api/approvals?project_id=42", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApprovalHandler_Send_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler(false))
	handler := NewApprovalHandler(nil, nil, nil)
	r.POST("/api/approvals/:id/send", handler.Send)

	req, _ := http.NewRequest("POST", "/api/approvals/77/send", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
