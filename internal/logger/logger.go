// Package logger はzerologによる構造化ログ出力を提供する
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config はログ出力の設定
type Config struct {
	Level  string `yaml:"level"`  // debug / info / warn / error
	Output string `yaml:"output"` // stdout または stderr
	File   string `yaml:"file"`   // 追加で書き込むログファイル（空なら無効）
}

var globalLogger zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	globalLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Init はグローバルロガーを初期化する
// 返り値のCloserはログファイルを閉じる（ファイル出力なしでも非nil）
func Init(cfg Config) (io.Closer, error) {
	var output io.Writer = os.Stdout
	if cfg.Output == "stderr" {
		output = os.Stderr
	}

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("無効なログレベル %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("ログディレクトリの作成に失敗: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("ログファイルのオープンに失敗: %w", err)
		}
		output = io.MultiWriter(output, f)
		closer = f
	}

	globalLogger = zerolog.New(output).Level(level).With().Timestamp().Logger()
	log.Logger = globalLogger

	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SetOutput はテスト等で出力先を差し替える
func SetOutput(w io.Writer) {
	globalLogger = globalLogger.Output(w)
	log.Logger = globalLogger
}

// GetLogger はグローバルロガーを返す
func GetLogger() zerolog.Logger {
	return globalLogger
}

// WithComponent はcomponentフィールド付きのロガーを返す
func WithComponent(component string) zerolog.Logger {
	return globalLogger.With().Str("component", component).Logger()
}

func Debug() *zerolog.Event { return globalLogger.Debug() }
func Info() *zerolog.Event  { return globalLogger.Info() }
func Warn() *zerolog.Event  { return globalLogger.Warn() }
func Error() *zerolog.Event { return globalLogger.Error() }
func Fatal() *zerolog.Event { return globalLogger.Fatal() }
