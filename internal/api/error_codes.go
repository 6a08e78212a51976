// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// 会话相关错误
	ErrorSessionNotFound = "SESSION_NOT_FOUND"
	ErrorSuperseded      = "SUPERSEDED"

	// 转录相关错误
	ErrorTranscriptInvalid = "TRANSCRIPT_INVALID"
	ErrorNoTranscript      = "NO_TRANSCRIPT"
	ErrorExportFormat      = "EXPORT_FORMAT_INVALID"

	// 文件相关错误
	ErrorFileUploadFailed = "FILE_UPLOAD_FAILED"
	ErrorFileTooLarge     = "FILE_TOO_LARGE"
	ErrorMediaNotFound    = "MEDIA_NOT_FOUND"

	// 配置相关错误
	ErrorConfigSaveFailed = "CONFIG_SAVE_FAILED"
)
