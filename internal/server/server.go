package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"capturehub/internal/api"
	"capturehub/internal/config"
	"capturehub/internal/device"
	"capturehub/internal/dispatch"
	"capturehub/internal/events"
	"capturehub/internal/heartbeat"
	"capturehub/internal/intake"
	"capturehub/internal/logger"
	"capturehub/internal/metrics"
	"capturehub/internal/session"
	"capturehub/internal/storage"
)

// Server はHTTPサーバーとハブの各コンポーネントを管理する構造体
type Server struct {
	config     *config.Config
	httpServer *http.Server
	engine     *gin.Engine
	handler    *CaptureHubHandler
	sessions   *session.Manager
	hub        *events.Hub
	log        zerolog.Logger
}

// New は設定から各コンポーネントを組み立て、新しいServerインスタンスを作成する
func New(cfg *config.Config) (*Server, error) {
	registry, err := device.NewRegistry(cfg.Devices)
	if err != nil {
		return nil, fmt.Errorf("端末の登録に失敗: %w", err)
	}

	m := metrics.New()
	hub := events.NewHub()
	store := storage.NewFileStore(cfg.Session.StorageDir)
	client := device.NewClient(cfg.Dispatch.Timeout, cfg.Dispatch.CapturePath)

	log := logger.WithComponent("server")

	sessions := session.NewManager(session.Options{
		Cooldown:    cfg.Session.Cooldown,
		IdleTimeout: cfg.Session.IdleTimeout,
		Store:       store,
		Metrics:     m,
		Hooks: session.Hooks{
			OnOpen: func(s session.Session) {
				hub.Publish(events.TypeSessionOpened, toAPISession(s))
			},
			OnClose: func(s session.Session) {
				hub.Publish(events.TypeSessionClosed, toAPISession(s))
			},
		},
	})

	handler := &CaptureHubHandler{
		config:     cfg,
		registry:   registry,
		client:     client,
		dispatcher: dispatch.New(client, m),
		store:      store,
		sessions:   sessions,
		intake:     intake.New(sessions, store, m),
		heartbeats: heartbeat.NewTracker(),
		metrics:    m,
		hub:        hub,
		now:        time.Now,
		log:        log,
	}

	s := &Server{
		config:   cfg,
		handler:  handler,
		sessions: sessions,
		hub:      hub,
		log:      log,
	}

	if err := s.setupRoutes(); err != nil {
		return nil, err
	}

	s.httpServer = &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      s.engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s, nil
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() error {
	gin.SetMode(gin.ReleaseMode)

	doc, err := api.GetSwagger()
	if err != nil {
		return err
	}
	validator, err := api.RequestValidator(doc)
	if err != nil {
		return err
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(s.log), validator)

	// OpenAPI定義に沿ったエンドポイント
	api.RegisterHandlersWithOptions(engine, s.handler, api.GinServerOptions{
		ErrorHandler: func(c *gin.Context, err error, statusCode int) {
			msg := err.Error()
			c.JSON(statusCode, api.ErrorResponse{Error: "invalid_request", Message: &msg})
		},
	})

	// 定義外のエンドポイント
	engine.GET("/metrics", gin.WrapH(s.handler.metrics.Handler()))
	engine.GET("/ws", gin.WrapF(s.hub.ServeWS))
	engine.GET("/api/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", api.RawSpec())
	})
	engine.GET("/", serveDashboard)

	s.engine = engine
	return nil
}

// Handler はルーティング済みのhttp.Handlerを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.log.Info().
			Str("addr", s.config.ServerAddress()).
			Int("devices", len(s.config.Devices)).
			Msg("HTTPサーバーを起動しています")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		s.log.Info().Msg("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.log.Info().Str("signal", sig.String()).Msg("シグナルを受信しました")
	case err := <-shutdownCh:
		s.release()
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	s.log.Info().Msg("サーバーをシャットダウンしています...")

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	defer s.release()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.log.Info().Msg("サーバーが正常にシャットダウンされました")
	return nil
}

// release はタイマーとWebSocket接続を解放する
func (s *Server) release() {
	s.sessions.Stop()
	s.hub.Close()
}
