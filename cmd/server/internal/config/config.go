package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 统一配置结构
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Bitbucket BitbucketConfig
	Templates TemplatesConfig
	Security  SecurityConfig
	Audit     AuditConfig
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Env  string // dev, staging, production
	Port string
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // console, json
	File   string // 为空时仅输出到 stdout
}

// BitbucketConfig 远程仓库配置
type BitbucketConfig struct {
	Mode          string // api, memory（memory 模式下删除 PR 通过 /api/dev/pull-requests 评审）
	APIURL        string
	Workspace     string
	RepoSlug      string
	Username      string
	AppPassword   string
	AccessToken   string
	DefaultBranch string
	IndexPath     string
	Timeout       time.Duration
}

// TemplatesConfig 模板存储行为配置
type TemplatesConfig struct {
	RequireApproval bool
	ActingUsername  string
	ListConcurrency int
	HistoryEnabled  bool
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWTSecret string
}

// AuditConfig 审计日志配置
type AuditConfig struct {
	LogPath string // 为空时不记录审计日志
}

// Bitbucket modes
const (
	ModeAPI    = "api"
	ModeMemory = "memory"
)

// LoadConfig 加载配置，优先级：环境变量 > .env > CONFIG_FILE (yaml) > 默认值
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	src := &source{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := src.loadFile(path); err != nil {
			return nil, err
		}
	}

	username := src.get("BITBUCKET_USERNAME", "")
	cfg := &Config{
		Server: ServerConfig{
			Env:  src.get("ENV", "dev"),
			Port: src.get("PORT", "8000"),
		},
		Log: LogConfig{
			Level:  src.get("LOG_LEVEL", "info"),
			Format: src.get("LOG_FORMAT", "console"),
			File:   src.get("LOG_FILE", ""),
		},
		Bitbucket: BitbucketConfig{
			Mode:          src.get("BITBUCKET_MODE", ModeAPI),
			APIURL:        src.get("BITBUCKET_API_URL", "https://api.bitbucket.org/2.0"),
			Workspace:     src.get("BITBUCKET_WORKSPACE", ""),
			RepoSlug:      src.get("BITBUCKET_REPO", ""),
			Username:      username,
			AppPassword:   src.get("BITBUCKET_APP_PASSWORD", ""),
			AccessToken:   src.get("BITBUCKET_ACCESS_TOKEN", ""),
			DefaultBranch: src.get("BITBUCKET_DEFAULT_BRANCH", "main"),
			IndexPath:     src.get("BITBUCKET_INDEX_PATH", "metadata.json"),
			Timeout:       src.getDuration("BITBUCKET_TIMEOUT", 30*time.Second),
		},
		Templates: TemplatesConfig{
			RequireApproval: src.getBool("TEMPLATE_DELETE_REQUIRE_APPROVAL", true),
			ActingUsername:  src.get("ACTING_USERNAME", username),
			ListConcurrency: src.getInt("TEMPLATE_LIST_CONCURRENCY", 8),
			HistoryEnabled:  src.getBool("TEMPLATE_HISTORY_ENABLED", false),
		},
		Security: SecurityConfig{
			JWTSecret: src.get("USER_JWT_SECRET", ""),
		},
		Audit: AuditConfig{
			LogPath: src.get("AUDIT_LOG_PATH", ""),
		},
	}
	if err := src.err(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateConfig 验证配置的有效性，一次性返回全部问题
func ValidateConfig(cfg *Config) error {
	var errors []string

	// 1. 端口验证
	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid PORT value: %s (must be 1-65535)", cfg.Server.Port))
	}

	// 2. 日志级别验证
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Log.Level] {
		errors = append(errors, fmt.Sprintf("invalid LOG_LEVEL: %s (must be: debug, info, warn, error)", cfg.Log.Level))
	}

	// 3. 日志格式验证
	validLogFormats := map[string]bool{"console": true, "json": true}
	if !validLogFormats[cfg.Log.Format] {
		errors = append(errors, fmt.Sprintf("invalid LOG_FORMAT: %s (must be: console, json)", cfg.Log.Format))
	}

	// 4. 环境验证
	validEnvs := map[string]bool{"dev": true, "development": true, "staging": true, "production": true}
	if !validEnvs[cfg.Server.Env] {
		errors = append(errors, fmt.Sprintf("invalid ENV: %s (must be: dev, development, staging, production)", cfg.Server.Env))
	}

	// 5. 仓库配置验证
	switch cfg.Bitbucket.Mode {
	case ModeMemory:
		if cfg.IsProduction() {
			errors = append(errors, "BITBUCKET_MODE=memory is not allowed in production environment")
		}
	case ModeAPI:
		if cfg.Bitbucket.Workspace == "" {
			errors = append(errors, "BITBUCKET_WORKSPACE is required")
		}
		if cfg.Bitbucket.RepoSlug == "" {
			errors = append(errors, "BITBUCKET_REPO is required")
		}
		if cfg.Bitbucket.AccessToken == "" && (cfg.Bitbucket.Username == "" || cfg.Bitbucket.AppPassword == "") {
			errors = append(errors, "BITBUCKET_ACCESS_TOKEN or BITBUCKET_USERNAME with BITBUCKET_APP_PASSWORD is required")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid BITBUCKET_MODE: %s (must be: api, memory)", cfg.Bitbucket.Mode))
	}
	if cfg.Bitbucket.DefaultBranch == "" {
		errors = append(errors, "BITBUCKET_DEFAULT_BRANCH must not be empty")
	}
	if cfg.Bitbucket.IndexPath == "" {
		errors = append(errors, "BITBUCKET_INDEX_PATH must not be empty")
	}
	if cfg.Bitbucket.Timeout <= 0 {
		errors = append(errors, "BITBUCKET_TIMEOUT must be positive")
	}

	// 6. 模板配置验证
	if cfg.Templates.ListConcurrency < 1 || cfg.Templates.ListConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid TEMPLATE_LIST_CONCURRENCY: %d (must be 1-64)", cfg.Templates.ListConcurrency))
	}

	// 7. JWT Secret 验证（可选，设置时须足够长）
	if cfg.Security.JWTSecret != "" && len(cfg.Security.JWTSecret) < 32 {
		errors = append(errors, "USER_JWT_SECRET must be at least 32 characters long")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// IsProduction 判断是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// IsDevelopment 判断是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "dev" || c.Server.Env == "development"
}

// GetServerAddr 获取服务器监听地址
func (c *Config) GetServerAddr() string {
	return ":" + c.Server.Port
}

// PrintConfig 打印配置（脱敏）
func (c *Config) PrintConfig() string {
	return fmt.Sprintf(`Configuration Loaded:
  Environment: %s
  Server Port: %s
  Logging:
    - Level: %s
    - Format: %s
    - File: %s
  Bitbucket:
    - Mode: %s
    - API URL: %s
    - Repository: %s/%s
    - Default Branch: %s
    - Index Path: %s
    - Username: %s
    - App Password: %s
    - Access Token: %s
    - Timeout: %s
  Templates:
    - Delete Requires Approval: %t
    - Acting Username: %s
    - List Concurrency: %d
    - History Enabled: %t
  Security:
    - JWT Secret: %s
  Audit Log: %s`,
		c.Server.Env,
		c.Server.Port,
		c.Log.Level,
		c.Log.Format,
		orUnset(c.Log.File),
		c.Bitbucket.Mode,
		c.Bitbucket.APIURL,
		c.Bitbucket.Workspace, c.Bitbucket.RepoSlug,
		c.Bitbucket.DefaultBranch,
		c.Bitbucket.IndexPath,
		orUnset(c.Bitbucket.Username),
		maskSecret(c.Bitbucket.AppPassword),
		maskSecret(c.Bitbucket.AccessToken),
		c.Bitbucket.Timeout,
		c.Templates.RequireApproval,
		orUnset(c.Templates.ActingUsername),
		c.Templates.ListConcurrency,
		c.Templates.HistoryEnabled,
		maskSecret(c.Security.JWTSecret),
		orUnset(c.Audit.LogPath),
	)
}

// 辅助函数

// source 按 环境变量 > 配置文件 > 默认值 解析配置项，并收集解析错误
type source struct {
	file map[string]string
	errs []string
}

// loadFile 读取 yaml 配置文件，键名与环境变量一致
func (s *source) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	values := map[string]string{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	s.file = values
	return nil
}

func (s *source) get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value := s.file[key]; value != "" {
		return value
	}
	return defaultValue
}

func (s *source) getBool(key string, defaultValue bool) bool {
	raw := s.get(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		s.errs = append(s.errs, fmt.Sprintf("invalid %s: %q (must be a boolean)", key, raw))
		return defaultValue
	}
	return v
}

func (s *source) getInt(key string, defaultValue int) int {
	raw := s.get(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		s.errs = append(s.errs, fmt.Sprintf("invalid %s: %q (must be an integer)", key, raw))
		return defaultValue
	}
	return v
}

func (s *source) getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := s.get(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		s.errs = append(s.errs, fmt.Sprintf("invalid %s: %q (must be a duration such as 30s)", key, raw))
		return defaultValue
	}
	return v
}

func (s *source) err() error {
	if len(s.errs) == 0 {
		return nil
	}
	return fmt.Errorf("configuration parse failed:\n  - %s", strings.Join(s.errs, "\n  - "))
}

// maskSecret 对敏感信息进行脱敏
func maskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}

func orUnset(v string) string {
	if v == "" {
		return "<not set>"
	}
	return v
}
