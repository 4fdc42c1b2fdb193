package main

import (
	"context"
	"fmt"

	"capturehub/internal/config"
	"capturehub/internal/logger"
	"capturehub/internal/server"
)

func main() {
	if err := run(context.Background(), config.DefaultPath); err != nil {
		logger.Fatal().Err(err).Str("path", config.DefaultPath).Msg("サーバーを終了します")
	}
}

// run は設定を読み込んでサーバーを起動し、停止するまで待つ
func run(ctx context.Context, path string) error {
	// 設定を読み込む
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}

	// ロガーを初期化する
	closer, err := logger.Init(cfg.Log)
	if err != nil {
		return fmt.Errorf("ロガーの初期化に失敗しました: %w", err)
	}
	defer closer.Close()

	// サーバーを作成
	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("サーバーの作成に失敗しました: %w", err)
	}

	// サーバーを起動
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("サーバーの起動に失敗しました: %w", err)
	}
	return nil
}
