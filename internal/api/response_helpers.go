// internal/api/response_helpers.go
package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/Corphon/TranscriptEditor/internal/errors"
	"github.com/Corphon/TranscriptEditor/internal/session"
	"github.com/gin-gonic/gin"
)

// APIResponse 标准API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"` // 用于调试和追踪
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseHelper 响应助手类
type ResponseHelper struct{}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success 成功响应
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	if len(message) > 0 {
		response.Message = message[0]
	}

	c.JSON(http.StatusOK, response)
}

// Created 创建成功响应
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	if len(message) > 0 {
		response.Message = message[0]
	}

	c.JSON(http.StatusCreated, response)
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	rh.ErrorWithData(c, statusCode, errorCode, message, nil, details...)
}

// ErrorWithData 错误响应，同时携带数据（例如会话快照）
func (rh *ResponseHelper) ErrorWithData(c *gin.Context, statusCode int, errorCode, message string, data interface{}, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: message,
	}

	if len(details) > 0 {
		apiError.Details = details[0]
	}

	response := &APIResponse{
		Success:   false,
		Data:      data,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	c.JSON(statusCode, response)
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// NotFound 404错误响应
func (rh *ResponseHelper) NotFound(c *gin.Context, resource string, details ...string) {
	rh.Error(c, http.StatusNotFound, rh.getResourceNotFoundCode(resource), resource+" not found", details...)
}

// InternalError 500错误响应
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, details...)
}

// Conflict 409错误响应
func (rh *ResponseHelper) Conflict(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusConflict, ErrorConflict, message, details...)
}

// FromError 将应用错误映射为HTTP响应
func (rh *ResponseHelper) FromError(c *gin.Context, err error, data interface{}) {
	status, code := classifyError(err)
	rh.ErrorWithData(c, status, code, err.Error(), data)
}

// classifyError 根据错误类型决定状态码和错误代码
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrNoTranscript):
		return http.StatusConflict, ErrorNoTranscript
	case errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict, ErrorSuperseded
	case errors.Is(err, session.ErrClosed):
		return http.StatusNotFound, ErrorSessionNotFound
	case apperrors.IsTooLargeError(err):
		return http.StatusRequestEntityTooLarge, ErrorFileTooLarge
	case apperrors.IsValidationError(err):
		return http.StatusUnprocessableEntity, ErrorTranscriptInvalid
	case apperrors.IsNotFoundError(err):
		return http.StatusNotFound, ErrorNotFound
	case apperrors.IsPreconditionError(err):
		return http.StatusConflict, ErrorConflict
	case apperrors.IsConflictError(err):
		return http.StatusConflict, ErrorConflict
	default:
		return http.StatusInternalServerError, ErrorInternalError
	}
}

// DownloadResponse 下载响应（强制下载）
func (rh *ResponseHelper) DownloadResponse(c *gin.Context, content string, filename string, contentType string) {
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Length", fmt.Sprintf("%d", len(content)))
	c.String(http.StatusOK, content)
}

// getRequestID 获取请求ID
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// getResourceNotFoundCode 根据资源类型生成错误代码
func (rh *ResponseHelper) getResourceNotFoundCode(resource string) string {
	switch resource {
	case "session":
		return ErrorSessionNotFound
	case "media":
		return ErrorMediaNotFound
	default:
		return ErrorNotFound
	}
}
