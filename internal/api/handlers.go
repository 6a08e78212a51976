// internal/api/handlers.go
package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/Corphon/TranscriptEditor/internal/config"
	"github.com/Corphon/TranscriptEditor/internal/editor"
	"github.com/Corphon/TranscriptEditor/internal/media"
	"github.com/Corphon/TranscriptEditor/internal/models"
	"github.com/Corphon/TranscriptEditor/internal/session"
	"github.com/Corphon/TranscriptEditor/internal/transcript"
	"github.com/Corphon/TranscriptEditor/internal/utils"
	"github.com/gin-gonic/gin"
)

// PageTitle 页面标题
const PageTitle = "Επεξεργασία Απομαγνητοφώνησης"

// Handler 处理API请求
type Handler struct {
	Sessions *session.Manager  // 会话管理
	Media    *media.Store      // 音频存储
	Hub      *Hub              // 编辑器连接
	Metrics  *utils.APIMetrics // 指标
	Logger   *utils.Logger
	Response *ResponseHelper // 响应助手
	BasePath string
}

// NewHandler 创建API处理器
func NewHandler(sessions *session.Manager, store *media.Store, hub *Hub, metrics *utils.APIMetrics, logger *utils.Logger, basePath string) *Handler {
	if logger == nil {
		logger = utils.GetLogger()
	}
	if metrics == nil {
		metrics = utils.NewAPIMetrics()
	}
	return &Handler{
		Sessions: sessions,
		Media:    store,
		Hub:      hub,
		Metrics:  metrics,
		Logger:   logger,
		Response: NewResponseHelper(),
		BasePath: basePath,
	}
}

// uploadSource 把 multipart 上传文件适配为会话的文件来源
type uploadSource struct {
	header *multipart.FileHeader
}

func (u uploadSource) Name() string { return u.header.Filename }

func (u uploadSource) Open() (io.ReadCloser, error) { return u.header.Open() }

// formFile 取出上传的 file 字段；没有选择文件时返回 nil
func (h *Handler) formFile(c *gin.Context) (session.Source, bool) {
	header, err := c.FormFile("file")
	if err == nil {
		return uploadSource{header: header}, true
	}
	if errors.Is(err, http.ErrMissingFile) {
		return nil, true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.Response.Error(c, http.StatusRequestEntityTooLarge, ErrorFileTooLarge, "upload exceeds the configured size limit")
		return nil, false
	}
	h.Response.BadRequest(c, "invalid upload", err.Error())
	return nil, false
}

// lookupSession 按路径参数取会话，不存在时写入 404
func (h *Handler) lookupSession(c *gin.Context) (*session.Session, bool) {
	sess, err := h.Sessions.Get(c.Param("id"))
	if err != nil {
		h.Response.NotFound(c, "session")
		return nil, false
	}
	return sess, true
}

// ========================================
// 页面
// ========================================

// IndexPage 渲染编辑器页面
func (h *Handler) IndexPage(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Title":    PageTitle,
		"BasePath": h.BasePath,
		"Buttons":  config.EditorButtons(),
	})
}

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"sessions":  h.Sessions.Count(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// ========================================
// 会话
// ========================================

// CreateSession 打开新的编辑会话
func (h *Handler) CreateSession(c *gin.Context) {
	sess := h.Sessions.Create()
	h.Response.Created(c, sess.Snapshot())
}

// ListSessions 列出所有会话
func (h *Handler) ListSessions(c *gin.Context) {
	h.Response.Success(c, h.Sessions.List())
}

// GetSession 返回会话快照
func (h *Handler) GetSession(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}
	h.Response.Success(c, sess.Snapshot())
}

// DeleteSession 关闭会话并释放音频
func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.Sessions.Close(c.Param("id")); err != nil {
		h.Response.NotFound(c, "session")
		return
	}
	h.Response.Success(c, nil, "session closed")
}

// UploadTranscript 选择转录文件
func (h *Handler) UploadTranscript(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}
	src, ok := h.formFile(c)
	if !ok {
		return
	}

	snap, err := sess.SelectTranscriptFile(c.Request.Context(), src)
	if err != nil {
		h.Metrics.RecordError(classifyErrorType(err), "transcript")
		var data interface{}
		if snap.ID != "" {
			data = snap
		}
		h.Response.FromError(c, err, data)
		return
	}
	h.Response.Success(c, snap)
}

// UploadAudio 选择音频文件
func (h *Handler) UploadAudio(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}
	src, ok := h.formFile(c)
	if !ok {
		return
	}

	snap, err := sess.SelectAudioFile(c.Request.Context(), src)
	if err != nil {
		h.Metrics.RecordError(classifyErrorType(err), "audio")
		h.Response.FromError(c, err, nil)
		return
	}
	h.Response.Success(c, snap)
}

// GetNodes 返回文档的默认可编辑节点
func (h *Handler) GetNodes(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}
	nodes, err := sess.Nodes()
	if err != nil {
		h.Response.FromError(c, err, nil)
		return
	}
	h.Response.Success(c, nodes)
}

// GetMetadata 返回会话元数据
func (h *Handler) GetMetadata(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}
	h.Response.Success(c, sess.Metadata())
}

// UpdateMetadata 更新标题、标签和转录者
func (h *Handler) UpdateMetadata(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	var update models.MetadataUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		h.Response.BadRequest(c, "invalid metadata", err.Error())
		return
	}

	meta, err := sess.UpdateMetadata(update)
	if err != nil {
		h.Response.FromError(c, err, nil)
		return
	}
	h.Response.Success(c, meta)
}

// SaveTranscript 处理保存请求
func (h *Handler) SaveTranscript(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	var req models.SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid save request", err.Error())
		return
	}

	payload, err := sess.HandleSave(c.Request.Context(), req.Nodes, req.Speakers)
	if err != nil {
		h.Metrics.RecordError(classifyErrorType(err), "save")
		h.Response.FromError(c, err, nil)
		return
	}
	h.Response.Success(c, payload, "transcript saved")
}

// ExportTranscript 以 md、srt 或 txt 格式下载文档
func (h *Handler) ExportTranscript(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	format := c.DefaultQuery("format", transcript.FormatMarkdown)
	ext, contentType, known := transcript.FileInfo(format)
	if !known {
		h.Response.Error(c, http.StatusBadRequest, ErrorExportFormat, "unsupported export format: "+format)
		return
	}

	snap := sess.Snapshot()
	if snap.Document == nil {
		h.Response.FromError(c, session.ErrNoTranscript, nil)
		return
	}

	content, err := transcript.Render(format, snap.Metadata, snap.Document)
	if err != nil {
		h.Response.InternalError(c, "export failed", err.Error())
		return
	}

	base := strings.TrimSuffix(snap.TranscriptFile, filepath.Ext(snap.TranscriptFile))
	if base == "" {
		base = "transcript"
	}
	h.Response.DownloadResponse(c, content, base+ext, contentType)
}

// ========================================
// 编辑器配置和指标
// ========================================

// GetEditorConfig 返回编辑器按钮配置
func (h *Handler) GetEditorConfig(c *gin.Context) {
	h.Response.Success(c, config.EditorButtons())
}

// UpdateEditorConfig 更新编辑器按钮配置，下次挂载时生效
func (h *Handler) UpdateEditorConfig(c *gin.Context) {
	var buttons editor.ButtonConfig
	if err := c.ShouldBindJSON(&buttons); err != nil {
		h.Response.BadRequest(c, "invalid editor config", err.Error())
		return
	}
	if err := config.UpdateEditorConfig(buttons); err != nil {
		h.Response.Error(c, http.StatusInternalServerError, ErrorConfigSaveFailed, "failed to save editor config", err.Error())
		return
	}
	h.Logger.Info("Editor config updated", map[string]interface{}{"buttons": buttons})
	h.Response.Success(c, buttons)
}

// GetMetrics 返回指标快照
func (h *Handler) GetMetrics(c *gin.Context) {
	metrics := h.Metrics.Collector().GetMetrics()
	metrics["sessions_open"] = h.Sessions.Count()
	if h.Hub != nil {
		metrics["websocket"] = h.Hub.GetStatus()
	}
	if h.Media != nil {
		metrics["media_handles"] = h.Media.Count()
	}
	h.Response.Success(c, metrics)
}

// ========================================
// 媒体
// ========================================

// ServeMedia 播放已上传的音频，支持 Range 请求
func (h *Handler) ServeMedia(c *gin.Context) {
	f, handle, err := h.Media.Open(c.Param("token"))
	if err != nil {
		h.Response.NotFound(c, "media")
		return
	}
	defer f.Close()

	if handle.ContentType != "" {
		c.Header("Content-Type", handle.ContentType)
	}
	c.Header("Cache-Control", "private, no-store")
	http.ServeContent(c.Writer, c.Request, handle.Name, handle.CreatedAt, f)
}

// classifyErrorType 返回用于指标的错误类别
func classifyErrorType(err error) string {
	_, code := classifyError(err)
	return strings.ToLower(code)
}
