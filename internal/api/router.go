// internal/api/router.go
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Corphon/TranscriptEditor/internal/config"
	"github.com/Corphon/TranscriptEditor/internal/di"
	"github.com/Corphon/TranscriptEditor/internal/media"
	"github.com/Corphon/TranscriptEditor/internal/session"
	"github.com/Corphon/TranscriptEditor/internal/utils"
	"github.com/Corphon/TranscriptEditor/web"
	"github.com/gin-gonic/gin"
)

// DefaultRateLimit 每个IP每分钟的 API 请求数
const DefaultRateLimit = 120

// RouterOptions 路由依赖
type RouterOptions struct {
	Sessions       *session.Manager
	Media          *media.Store
	Hub            *Hub
	Metrics        *utils.APIMetrics
	Logger         *utils.Logger
	BasePath       string
	MaxUploadBytes int64
	RateLimit      int // 每分钟请求数，0 表示不限制
}

// SetupRouter 从依赖注入容器组装HTTP路由
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	sessions, err := di.Resolve[*session.Manager](container, di.ServiceSessions)
	if err != nil {
		return nil, fmt.Errorf("会话管理器未正确初始化: %w", err)
	}
	store, err := di.Resolve[*media.Store](container, di.ServiceMedia)
	if err != nil {
		return nil, fmt.Errorf("媒体存储未正确初始化: %w", err)
	}
	hub, err := di.Resolve[*Hub](container, di.ServiceSurface)
	if err != nil {
		return nil, fmt.Errorf("编辑器连接管理器未正确初始化: %w", err)
	}
	metrics, _ := di.Resolve[*utils.APIMetrics](container, di.ServiceMetrics)
	logger, _ := di.Resolve[*utils.Logger](container, di.ServiceLogger)

	return NewRouter(RouterOptions{
		Sessions:       sessions,
		Media:          store,
		Hub:            hub,
		Metrics:        metrics,
		Logger:         logger,
		BasePath:       cfg.BasePath,
		MaxUploadBytes: cfg.MaxUploadMB << 20,
		RateLimit:      DefaultRateLimit,
	})
}

// NewRouter 配置HTTP路由
func NewRouter(opts RouterOptions) (*gin.Engine, error) {
	if opts.Sessions == nil || opts.Media == nil || opts.Hub == nil {
		return nil, fmt.Errorf("路由缺少必要的依赖")
	}

	handler := NewHandler(opts.Sessions, opts.Media, opts.Hub, opts.Metrics, opts.Logger, opts.BasePath)

	tmpl, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("加载页面模板失败: %w", err)
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(requestIDMiddleware())
	r.Use(corsMiddleware())
	r.Use(metricsMiddleware(handler.Metrics))
	r.SetHTMLTemplate(tmpl)

	// 所有路由都挂在可选的路径前缀下
	root := r.Group(opts.BasePath)

	// ===============================
	// 页面路由
	// ===============================
	root.GET("/", handler.IndexPage)
	root.GET("/health", handler.Health)
	root.StaticFS("/static", http.FS(web.Static()))

	// 音频播放
	root.GET("/media/:token", handler.ServeMedia)

	// 编辑器 WebSocket
	root.GET("/ws/sessions/:id", handler.SessionWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := root.Group("/api")
	if opts.RateLimit > 0 {
		api.Use(RateLimitByIP(NewRateLimiter(), opts.RateLimit, time.Minute))
	}
	{
		sessionsGroup := api.Group("/sessions")
		{
			sessionsGroup.POST("", handler.CreateSession)
			sessionsGroup.GET("", handler.ListSessions)
			sessionsGroup.GET("/:id", handler.GetSession)
			sessionsGroup.DELETE("/:id", handler.DeleteSession)

			// 文件选择
			uploads := sessionsGroup.Group("/:id", uploadLimitMiddleware(opts.MaxUploadBytes))
			{
				uploads.POST("/transcript", handler.UploadTranscript)
				uploads.POST("/audio", handler.UploadAudio)
			}

			sessionsGroup.GET("/:id/nodes", handler.GetNodes)
			sessionsGroup.GET("/:id/metadata", handler.GetMetadata)
			sessionsGroup.PUT("/:id/metadata", handler.UpdateMetadata)
			sessionsGroup.POST("/:id/save", handler.SaveTranscript)
			sessionsGroup.GET("/:id/export", handler.ExportTranscript)
		}

		editorGroup := api.Group("/editor")
		{
			editorGroup.GET("/config", handler.GetEditorConfig)
			editorGroup.PUT("/config", handler.UpdateEditorConfig)
		}

		api.GET("/metrics", handler.GetMetrics)
	}

	return r, nil
}
