package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config 保存 CLI 全局配置
type Config struct {
	ServerURL string `yaml:"server_url" json:"server_url"`
	Token     string `yaml:"token" json:"token"`
	User      string `yaml:"user" json:"user"`
	Output    string `yaml:"output" json:"output"`
}

// configPath 配置文件位置，可被 TEMPLATECTL_CONFIG 覆盖
func configPath() string {
	if p := os.Getenv("TEMPLATECTL_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".templatectl", "config.yaml")
}

// LoadConfig 从命令行标志、环境变量、配置文件加载配置（优先级从高到低）
func LoadConfig(cmd *cobra.Command) *Config {
	cfg := &Config{}

	loadConfigFile(cfg, configPath())

	// 环境变量覆盖配置文件
	if v := os.Getenv("TEMPLATECTL_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("TEMPLATECTL_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("TEMPLATECTL_USER"); v != "" {
		cfg.User = v
	}

	// 命令行标志覆盖环境变量
	if v, _ := cmd.Flags().GetString("server-url"); v != "" {
		cfg.ServerURL = v
	}
	if v, _ := cmd.Flags().GetString("token"); v != "" {
		cfg.Token = v
	}
	if v, _ := cmd.Flags().GetString("user"); v != "" {
		cfg.User = v
	}
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		cfg.Output = v
	}

	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://localhost:8000"
	}
	if cfg.Output == "" {
		cfg.Output = "text"
	}
	return cfg
}

func loadConfigFile(cfg *Config, path string) {
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	_ = yaml.Unmarshal(data, cfg)
}

// addGlobalFlags 为 root 命令添加全局标志
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("server-url", "", "服务器地址 (env: TEMPLATECTL_SERVER_URL, 默认: http://localhost:8000)")
	cmd.PersistentFlags().String("token", "", "Bearer 令牌 (env: TEMPLATECTL_TOKEN)")
	cmd.PersistentFlags().StringP("user", "u", "", "操作者用户名，作为 X-User 发送 (env: TEMPLATECTL_USER)")
	cmd.PersistentFlags().StringP("output", "o", "", "输出格式: json / text (默认: text)")
}
