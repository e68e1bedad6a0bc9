package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/taskman/internal/auth"
	"github.com/hitoshi/taskman/internal/config"
	"github.com/hitoshi/taskman/internal/database"
	"github.com/hitoshi/taskman/internal/handler"
	"github.com/hitoshi/taskman/internal/logger"
	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/hitoshi/taskman/internal/repository"
	"github.com/hitoshi/taskman/internal/security"
	"github.com/hitoshi/taskman/internal/task"
	"github.com/hitoshi/taskman/internal/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	inv, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if inv.Command == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(inv.Command)),
		slog.String("store", cfg.StoreDriver),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch inv.Command {
	case CommandMigrate:
		return runMigrate(cfg, inv.Migrate)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. ストアの初期化
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// 2. ルーターの構築
	router, cleanup, err := buildRouter(cfg, st, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer cleanup()

	// 3. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serve(ctx, server)
}

// serve はctxがキャンセルされるまでHTTPサーバーを実行し、その後グレースフルシャットダウンする。
func serve(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// buildRouter はサービス層とミドルウェアをワイヤリングしたHTTPハンドラーを返す。
// 戻り値のcleanupはレート制限のバックグラウンド処理を停止する。
func buildRouter(cfg *config.Config, st *stores, reg *prometheus.Registry) (http.Handler, func(), error) {
	// 1. メトリクス
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// 2. トークンサービス
	tokens, err := token.NewService(token.Config{
		Secret: cfg.TokenSecret,
		TTL:    cfg.TokenTTL,
		Issuer: cfg.TokenIssuer,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create token service: %w", err)
	}

	// 3. ドメインサービス
	authService := auth.NewService(st.users, auth.NewBcryptHasher(cfg.BcryptCost), tokens, collector)
	taskService := task.NewService(tokens, st.tasks, security.NewTextSanitizer(), collector)

	// 4. レート制限（設定値はreq/min）
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth))

	router := handler.NewRouter(&handler.RouterDeps{
		TokenVerifier:     tokens,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,
		Logger:      slog.Default(),
		EnableHSTS:  cfg.CookieSecure,

		HealthChecker:    st.health,
		MetricsCollector: collector,
		MetricsGatherer:  reg,

		AuthService: handler.NewAuthServiceAdapter(authService),
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
			CookieMaxAge: cfg.TokenCookieMaxAge(),
		},

		TaskService: taskService,
	})

	return router, rateLimiter.Stop, nil
}

// runMigrate はスキーマ移行を実行する。
// actionに応じて適用・取り消し・状態表示を行う。
func runMigrate(cfg *config.Config, action MigrateAction) error {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Info("in-memory store has no schema to migrate", slog.String("action", string(action)))
		return nil
	}

	slog.Info("running schema migration",
		slog.String("action", string(action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if action == MigrateUp {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		return nil
	}

	mg, err := database.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer mg.Close()

	switch action {
	case MigrateDown:
		if err := mg.Down(); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Warn("all schema migrations reverted")
	case MigrateStatus:
		st, err := mg.Status()
		if err != nil {
			return fmt.Errorf("migration status failed: %w", err)
		}
		slog.Info("schema status",
			slog.Bool("applied", st.Applied),
			slog.Uint64("version", uint64(st.Version)),
			slog.Bool("dirty", st.Dirty),
		)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}

// stores はリポジトリと、その後始末・疎通確認をまとめたもの。
type stores struct {
	users  repository.UserRepository
	tasks  repository.TaskRepository
	health handler.HealthChecker
	closer io.Closer
}

// Close はストアが保持する接続を閉じる。
func (s *stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// openStores は設定に応じてPostgreSQLまたはインメモリのストアを開く。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Warn("using in-memory store; data is lost on restart")
		return &stores{
			users: repository.NewMemoryUserRepo(),
			tasks: repository.NewMemoryTaskRepo(),
		}, nil
	}

	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, err
	}
	retry := database.DefaultRetryConfig()
	retry.Attempts = cfg.DBConnectAttempts
	if err := database.WaitForReady(ctx, db, retry); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	return &stores{
		users:  repository.NewPostgresUserRepo(db),
		tasks:  repository.NewPostgresTaskRepo(db),
		health: db,
		closer: db,
	}, nil
}
