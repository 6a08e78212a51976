// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/TranscriptEditor/internal/editor"
	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

const (
	// DefaultBasePath 生产环境下的路径前缀
	DefaultBasePath = "/transcript-editor"
	EnvProduction   = "production"
)

// Config 存储从环境变量读取的应用配置
type Config struct {
	Port        string
	Environment string
	BasePath    string
	DataDir     string
	MediaDir    string
	LogDir      string
	LogLevel    string
	DebugMode   bool
	MaxUploadMB int64
	SessionTTL  time.Duration
	Editor      editor.ButtonConfig
}

// AppConfig 运行时配置，编辑器设置可修改并持久化
type AppConfig struct {
	Port        string              `json:"port"`
	Environment string              `json:"environment"`
	BasePath    string              `json:"base_path"`
	DataDir     string              `json:"data_dir"`
	MediaDir    string              `json:"media_dir"`
	LogDir      string              `json:"log_dir"`
	LogLevel    string              `json:"log_level"`
	DebugMode   bool                `json:"debug_mode"`
	MaxUploadMB int64               `json:"max_upload_mb"`
	SessionTTL  string              `json:"session_ttl"`
	Editor      editor.ButtonConfig `json:"editor"`
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "development")
	dataDir := getEnv("DATA_DIR", "data")

	ttl, err := time.ParseDuration(getEnv("SESSION_TTL", "2h"))
	if err != nil {
		return nil, fmt.Errorf("无效的 SESSION_TTL: %w", err)
	}

	maxUpload, err := strconv.ParseInt(getEnv("MAX_UPLOAD_MB", "0"), 10, 64)
	if err != nil || maxUpload < 0 {
		return nil, fmt.Errorf("无效的 MAX_UPLOAD_MB: %q", os.Getenv("MAX_UPLOAD_MB"))
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		DataDir:     dataDir,
		MediaDir:    getEnv("MEDIA_DIR", filepath.Join(dataDir, "media")),
		LogDir:      getEnv("LOG_DIR", "logs"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DebugMode:   getEnvBool("DEBUG_MODE", true),
		MaxUploadMB: maxUpload,
		SessionTTL:  ttl,
		Editor: editor.ButtonConfig{
			MusicNote:   getEnvBool("EDITOR_MUSIC_NOTE", false),
			ReplaceText: getEnvBool("EDITOR_REPLACE_TEXT", false),
		},
	}

	// 路径前缀只在生产环境生效
	if env == EnvProduction {
		cfg.BasePath = normalizeBasePath(getEnv("BASE_PATH", DefaultBasePath))
	}

	return cfg, nil
}

// MaxUploadBytes 返回上传限制的字节数，0 表示不限制
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// InitConfig 初始化配置管理器，已保存的编辑器设置优先于环境变量
func InitConfig(base *Config) error {
	if err := os.MkdirAll(base.DataDir, 0755); err != nil {
		return fmt.Errorf("创建数据目录失败: %w", err)
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	configFile = filepath.Join(base.DataDir, "config.json")
	currentConfig = fromBase(base)

	if data, err := os.ReadFile(configFile); err == nil {
		var saved AppConfig
		if err := json.Unmarshal(data, &saved); err != nil {
			log.Printf("⚠️ 忽略无法解析的配置文件 %s: %v", configFile, err)
		} else {
			currentConfig.Editor = saved.Editor
		}
	}

	return saveLocked()
}

func fromBase(base *Config) *AppConfig {
	return &AppConfig{
		Port:        base.Port,
		Environment: base.Environment,
		BasePath:    base.BasePath,
		DataDir:     base.DataDir,
		MediaDir:    base.MediaDir,
		LogDir:      base.LogDir,
		LogLevel:    base.LogLevel,
		DebugMode:   base.DebugMode,
		MaxUploadMB: base.MaxUploadMB,
		SessionTTL:  base.SessionTTL.String(),
		Editor:      base.Editor,
	}
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		base, err := Load()
		if err != nil {
			return &AppConfig{Port: "8080", DataDir: "data", LogDir: "logs"}
		}
		return fromBase(base)
	}

	configCopy := *currentConfig
	return &configCopy
}

// EditorButtons 返回当前编辑器按钮配置
func EditorButtons() editor.ButtonConfig {
	return GetCurrentConfig().Editor
}

// UpdateEditorConfig 更新编辑器按钮配置并保存
func UpdateEditorConfig(buttons editor.ButtonConfig) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.Editor = buttons
	return saveLocked()
}

// SaveConfig 保存当前配置到文件
func SaveConfig() error {
	configMutex.Lock()
	defer configMutex.Unlock()
	return saveLocked()
}

func saveLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	tempPath := configFile + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("保存配置失败: %w", err)
	}
	return os.Rename(tempPath, configFile)
}

// Reset 清除单例，仅供测试使用
func Reset() {
	configMutex.Lock()
	defer configMutex.Unlock()
	currentConfig = nil
	configFile = ""
}
