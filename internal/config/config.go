package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"capturehub/internal/logger"
)

// DefaultPath は設定ファイルの既定パス
const DefaultPath = "config/config.json"

// ErrConfigMissing は設定ファイルが存在しない場合のエラー
var ErrConfigMissing = errors.New("設定ファイルが見つかりません")

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Devices   []string        `yaml:"raspberry_pis"` // キャプチャ端末のベースURL（順序がデバイスIDになる）
	Session   SessionConfig   `yaml:"session"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Log       logger.Config   `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// SessionConfig はキャプチャセッションの設定
type SessionConfig struct {
	Cooldown    time.Duration `yaml:"cooldown"`     // モーション受付の最小間隔
	IdleTimeout time.Duration `yaml:"idle_timeout"` // 無操作でセッションを閉じるまでの時間
	StorageDir  string        `yaml:"storage_dir"`  // 受信画像の保存先ルート
}

// DispatchConfig は端末へのキャプチャ指示の設定
type DispatchConfig struct {
	Timeout     time.Duration `yaml:"timeout"`      // 端末1台あたりの上限時間
	CapturePath string        `yaml:"capture_path"` // 端末側のキャプチャエンドポイント
}

// HeartbeatConfig はハートビート判定の設定
type HeartbeatConfig struct {
	StaleAfter time.Duration `yaml:"stale_after"` // これを超えて無通信ならstale
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         5000,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Devices: []string{},
		Session: SessionConfig{
			Cooldown:    1 * time.Second,
			IdleTimeout: 30 * time.Second,
			StorageDir:  "received_images",
		},
		Dispatch: DispatchConfig{
			Timeout:     5 * time.Second,
			CapturePath: "/api/take_photo",
		},
		Heartbeat: HeartbeatConfig{
			StaleAfter: 60 * time.Second,
		},
		Log: logger.Config{
			Level:  "info",
			Output: "stdout",
			File:   "logs/server.log",
		},
	}
}

// Load は設定ファイルを読み込み、環境変数で上書きして検証する
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// LoadFile はYAMLまたはJSON形式の設定ファイルをデフォルト値の上に読み込む
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigMissing, path)
		}
		return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	cfg := Default()
	// JSONはYAMLのサブセットなのでどちらも同じデコーダで読める
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
	}

	return cfg, nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Session.Cooldown = getEnvAsDurationOrDefault("CAPTURE_COOLDOWN", c.Session.Cooldown)
	c.Session.IdleTimeout = getEnvAsDurationOrDefault("SESSION_IDLE_TIMEOUT", c.Session.IdleTimeout)
	c.Session.StorageDir = getEnvOrDefault("STORAGE_DIR", c.Session.StorageDir)
	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// 端末設定の検証
	if len(c.Devices) == 0 {
		return fmt.Errorf("キャプチャ端末が設定されていません")
	}
	for i, endpoint := range c.Devices {
		u, err := url.Parse(endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("端末 %d のURLが無効です: %q", i+1, endpoint)
		}
	}

	if c.Session.Cooldown < 0 {
		return fmt.Errorf("クールダウンが負の値です: %s", c.Session.Cooldown)
	}
	if c.Session.IdleTimeout <= 0 {
		return fmt.Errorf("セッションのアイドルタイムアウトが無効です: %s", c.Session.IdleTimeout)
	}
	if c.Session.StorageDir == "" {
		return fmt.Errorf("画像の保存先が設定されていません")
	}
	if c.Dispatch.Timeout <= 0 {
		return fmt.Errorf("キャプチャ指示のタイムアウトが無効です: %s", c.Dispatch.Timeout)
	}
	if c.Heartbeat.StaleAfter <= 0 {
		return fmt.Errorf("ハートビートの閾値が無効です: %s", c.Heartbeat.StaleAfter)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsDurationOrDefault は環境変数を時間として取得する（"1s" 形式）
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
