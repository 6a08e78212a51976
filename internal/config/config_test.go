package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Corphon/TranscriptEditor/internal/editor"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "APP_ENV", "BASE_PATH", "DATA_DIR", "MEDIA_DIR", "SESSION_TTL", "MAX_UPLOAD_MB", "EDITOR_MUSIC_NOTE", "EDITOR_REPLACE_TEXT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Port != "8080" || cfg.BasePath != "" || cfg.SessionTTL != 2*time.Hour {
		t.Errorf("默认配置不正确: %+v", cfg)
	}
	if cfg.MediaDir != filepath.Join("data", "media") {
		t.Errorf("媒体目录不正确: %q", cfg.MediaDir)
	}
	if cfg.Editor.MusicNote || cfg.Editor.ReplaceText {
		t.Error("编辑器按钮默认应禁用")
	}
	if cfg.MaxUploadBytes() != 0 {
		t.Error("默认不限制上传大小")
	}
}

func TestLoadBasePathOnlyInProduction(t *testing.T) {
	t.Setenv("BASE_PATH", "")
	t.Setenv("APP_ENV", "production")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.BasePath != DefaultBasePath {
		t.Errorf("生产环境应使用默认前缀: %q", cfg.BasePath)
	}

	t.Setenv("BASE_PATH", "editor/")
	cfg, _ = Load()
	if cfg.BasePath != "/editor" {
		t.Errorf("前缀应被规范化: %q", cfg.BasePath)
	}

	t.Setenv("APP_ENV", "development")
	cfg, _ = Load()
	if cfg.BasePath != "" {
		t.Errorf("非生产环境不应使用前缀: %q", cfg.BasePath)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("SESSION_TTL", "forever")
	if _, err := Load(); err == nil {
		t.Error("无效的 SESSION_TTL 应返回错误")
	}
	t.Setenv("SESSION_TTL", "")
	t.Setenv("MAX_UPLOAD_MB", "-1")
	if _, err := Load(); err == nil {
		t.Error("负数的 MAX_UPLOAD_MB 应返回错误")
	}
}

func TestInitConfigPersistsEditorSettings(t *testing.T) {
	defer Reset()
	dir := t.TempDir()
	base := &Config{Port: "9000", DataDir: dir, SessionTTL: time.Hour}

	if err := InitConfig(base); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.json")); err != nil {
		t.Fatalf("配置文件应该已被创建: %v", err)
	}

	if err := UpdateEditorConfig(editor.ButtonConfig{MusicNote: true}); err != nil {
		t.Fatalf("更新编辑器配置失败: %v", err)
	}
	if !EditorButtons().MusicNote {
		t.Error("更新应立即生效")
	}

	Reset()
	if err := InitConfig(base); err != nil {
		t.Fatalf("重新初始化失败: %v", err)
	}
	cfg := GetCurrentConfig()
	if !cfg.Editor.MusicNote || cfg.Port != "9000" {
		t.Errorf("保存的编辑器设置应被恢复: %+v", cfg)
	}

	cfg.Port = "1"
	if GetCurrentConfig().Port != "9000" {
		t.Error("GetCurrentConfig 应返回副本")
	}
}

func TestUpdateBeforeInit(t *testing.T) {
	Reset()
	if err := UpdateEditorConfig(editor.ButtonConfig{}); err == nil {
		t.Error("未初始化时更新应返回错误")
	}
}
