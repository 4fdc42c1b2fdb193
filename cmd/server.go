// Package main はcapturehubサーバーコマンドの実装です
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"capturehub/internal/config"
	"capturehub/internal/logger"
	"capturehub/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	// コマンドラインオプション
	var (
		configPath string
		host       string
		port       int
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           "server",
		Short:         "capturehub",
		Long:          "モーション検知を受けて全カメラ端末へ撮影を指示し、受信した画像をセッションごとに保存するハブサーバー",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// 設定を読み込む
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("設定の読み込みに失敗しました: %w", err)
			}

			// コマンドラインオプションで設定を上書き
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("設定が不正です: %w", err)
			}

			closer, err := logger.Init(cfg.Log)
			if err != nil {
				return fmt.Errorf("ロガーの初期化に失敗しました: %w", err)
			}
			defer closer.Close()

			srv, err := server.New(cfg)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.ServerAddress()).Msg("capturehub サーバーを起動します")
			return srv.Start(context.Background())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "設定ファイルのパス（YAMLまたはJSON）")
	cmd.Flags().StringVar(&host, "host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "サーバーのポート (デフォルト: 5000)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "ログレベル (debug, info, warn, error)")

	return cmd
}
