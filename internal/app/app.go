// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/Corphon/TranscriptEditor/internal/api"
	"github.com/Corphon/TranscriptEditor/internal/config"
	"github.com/Corphon/TranscriptEditor/internal/di"
	"github.com/Corphon/TranscriptEditor/internal/media"
	"github.com/Corphon/TranscriptEditor/internal/session"
	"github.com/Corphon/TranscriptEditor/internal/sink"
	"github.com/Corphon/TranscriptEditor/internal/utils"
)

// Server 是 http.Server 中应用用到的部分，便于测试替换
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 应用实例
type App struct {
	config   *config.AppConfig
	router   http.Handler
	server   Server
	stopChan chan os.Signal
	logFile  string
}

var (
	instance *App
	appMutex sync.Mutex
)

const (
	shutdownTimeout = 30 * time.Second
	sweepInterval   = time.Minute
	metricsInterval = 5 * time.Minute
)

// GetApp 获取应用单例
func GetApp() *App {
	appMutex.Lock()
	defer appMutex.Unlock()

	if instance == nil {
		instance = &App{
			stopChan: make(chan os.Signal, 1),
		}
	}
	return instance
}

// Initialize 按顺序初始化配置、日志、服务和路由
func Initialize(base *config.Config) error {
	if err := config.InitConfig(base); err != nil {
		return fmt.Errorf("初始化配置失败: %w", err)
	}
	app := GetApp()
	app.config = config.GetCurrentConfig()

	if err := initLogger(app.config.LogDir); err != nil {
		return fmt.Errorf("初始化日志系统失败: %w", err)
	}
	utils.GetLogger().SetLogLevel(utils.ParseLogLevel(app.config.LogLevel))

	if err := InitServices(); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	router, err := api.SetupRouter()
	if err != nil {
		return fmt.Errorf("设置路由失败: %w", err)
	}
	app.router = router
	app.server = &http.Server{
		Addr:              ":" + app.config.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// initLogger 初始化日志系统
func initLogger(logDir string) error {
	path, err := utils.InitLogger(logDir)
	if err != nil {
		return err
	}
	GetApp().logFile = path
	log.Printf("📝 日志文件: %s", path)
	return nil
}

// InitServices 创建所有服务并注册到依赖注入容器
func InitServices() error {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	logger := utils.GetLogger()
	metrics := utils.NewAPIMetricsWith(utils.GetMetricsCollector(), logger)
	container.Register(di.ServiceLogger, logger)
	container.Register(di.ServiceMetrics, metrics)

	maxBytes := cfg.MaxUploadMB << 20
	store, err := media.NewStore(cfg.MediaDir, cfg.BasePath+"/media", maxBytes)
	if err != nil {
		return err
	}
	// 上次运行残留的音频没有任何会话引用
	if err := store.Purge(); err != nil {
		logger.Warn("清理媒体目录失败", map[string]interface{}{"dir": cfg.MediaDir, "error": err})
	}
	container.Register(di.ServiceMedia, store)

	saveSink := sink.NewLogSink(logger)
	container.Register(di.ServiceSink, saveSink)

	hub := api.NewHub(logger)
	container.Register(di.ServiceSurface, hub)

	ttl, err := time.ParseDuration(cfg.SessionTTL)
	if err != nil {
		ttl = 0
	}
	sessions := session.NewManager(session.Deps{
		Reader:    session.TextReader{MaxSize: maxBytes},
		Media:     store,
		Surface:   hub,
		Sink:      saveSink,
		Publisher: hub,
		Metrics:   metrics,
		Logger:    logger,
		Buttons:   config.EditorButtons,
	}, ttl)
	container.Register(di.ServiceSessions, sessions)

	logger.Info("Services initialized", map[string]interface{}{
		"services":    container.GetNames(),
		"media_dir":   cfg.MediaDir,
		"session_ttl": ttl.String(),
	})
	return nil
}

// Run 启动服务器和后台任务，收到停止信号后优雅关闭
func Run() error {
	app := GetApp()
	if app.server == nil {
		return fmt.Errorf("应用尚未初始化")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startBackground(ctx)

	signal.Notify(app.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(app.stopChan)

	serverErr := make(chan error, 1)
	go func() {
		if app.config != nil {
			log.Printf("🌐 服务器启动在端口 %s", app.config.Port)
			log.Printf("🔗 访问地址: http://localhost:%s%s/", app.config.Port, app.config.BasePath)
		}
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		app.cleanup()
		return fmt.Errorf("启动服务器失败: %w", err)
	case <-app.stopChan:
	}

	log.Println("🛑 正在关闭服务器...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	err := app.server.Shutdown(shutdownCtx)
	app.cleanup()
	if err != nil {
		return fmt.Errorf("服务器强制关闭: %w", err)
	}

	log.Println("✅ 服务器优雅关闭完成")
	return nil
}

// startBackground 启动会话过期清理、连接清理和指标收集
func startBackground(ctx context.Context) {
	container := di.GetContainer()

	if sessions, err := di.Resolve[*session.Manager](container, di.ServiceSessions); err == nil {
		sessions.StartCleanup(ctx, sweepInterval)
	}
	if hub, err := di.Resolve[*api.Hub](container, di.ServiceSurface); err == nil {
		go hub.Run(ctx)
	}
	if metrics, err := di.Resolve[*utils.APIMetrics](container, di.ServiceMetrics); err == nil {
		metrics.StartMetricsCollection(ctx, metricsInterval)
	}
}

// cleanup 关闭所有会话并释放资源
func (a *App) cleanup() {
	container := di.GetContainer()

	if sessions, err := di.Resolve[*session.Manager](container, di.ServiceSessions); err == nil {
		sessions.CloseAll()
	}
	if store, err := di.Resolve[*media.Store](container, di.ServiceMedia); err == nil {
		if err := store.Purge(); err != nil {
			log.Printf("⚠️ 清理媒体文件失败: %v", err)
		}
	}
	if a.config != nil {
		if err := config.SaveConfig(); err != nil {
			log.Printf("⚠️ 保存配置失败: %v", err)
		}
	}
	if err := utils.GetLogger().Close(); err != nil {
		log.Printf("⚠️ 关闭日志失败: %v", err)
	}
}

// CreateDirectories 创建应用所需的目录结构
func CreateDirectories(cfg *config.Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.MediaDir,
		cfg.LogDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(filepath.Clean(dir), 0755); err != nil {
			return fmt.Errorf("创建目录失败 %s: %w", dir, err)
		}
	}
	return nil
}
