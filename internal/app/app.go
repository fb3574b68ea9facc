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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/skygate/internal/account"
	"github.com/hitoshi/skygate/internal/auth"
	"github.com/hitoshi/skygate/internal/checkpoint"
	"github.com/hitoshi/skygate/internal/config"
	"github.com/hitoshi/skygate/internal/database"
	"github.com/hitoshi/skygate/internal/feedgen"
	"github.com/hitoshi/skygate/internal/handler"
	"github.com/hitoshi/skygate/internal/ingest"
	"github.com/hitoshi/skygate/internal/logger"
	"github.com/hitoshi/skygate/internal/mailer"
	"github.com/hitoshi/skygate/internal/metrics"
	"github.com/hitoshi/skygate/internal/middleware"
	"github.com/hitoshi/skygate/internal/repository"
	"github.com/hitoshi/skygate/internal/security"
	"github.com/hitoshi/skygate/internal/tracing"
	"github.com/hitoshi/skygate/internal/visitor"
	"github.com/hitoshi/skygate/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer, opts Options) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(opts.LogLevel))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. フラグで上書き
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.Port != "" {
		cfg.ServerPort = opts.Port
	}
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	opts, err := ParseOptions(args)
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := opts.Port
		if port == "" {
			port = os.Getenv("SERVER_PORT")
		}
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w, opts)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("service_did", cfg.ServiceDID),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// signalContext はSIGINTまたはSIGTERMでキャンセルされるコンテキストを返す。
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// runServe はAPIサーバーモードで起動する。
// 書き込みストアとリードレプリカを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()

	// 1. トレース
	shutdownTracing, err := tracing.Setup(ctx, cfg.OTelEndpoint, "skygate")
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("failed to flush traces", slog.String("error", err.Error()))
		}
	}()

	// 2. DB接続（書き込みストア）
	db, err := database.Open(cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// 3. DB接続（リードレプリカ）
	replica, err := database.OpenReplica(ctx, cfg.ReadReplicaURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("failed to open read replica: %w", err)
	}
	defer replica.Close()

	if err := replica.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to read replica: %w", err)
	}

	slog.Info("database connections established",
		slog.Bool("replica_is_primary", cfg.ReplicaIsPrimary()),
	)

	// 4. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mc := metrics.NewCollector(registry)

	// 5. 認証ゲートウェイ
	gateway, err := newGateway(cfg)
	if err != nil {
		return err
	}

	// 6. メール送信
	mail, err := newMailer(cfg)
	if err != nil {
		return err
	}

	// 7. ドメインサービスの初期化
	algorithms := feedgen.NewRegistry(cfg.PublisherDID)
	feedService := feedgen.NewService(algorithms, repository.NewReplicaPostRepo(replica), mc)
	queue := ingest.NewQueue(repository.NewPostgresPostRepo(db), algorithms, feedgen.DefaultAlgorithm, mc)
	cursors := checkpoint.NewService(
		repository.NewPostgresCursorStateRepo(db),
		repository.NewReplicaCursorStateRepo(replica),
	)
	tracker := visitor.NewTracker(repository.NewPostgresVisitorRepo(db), cfg.ServiceDID, mc)
	accounts := account.NewService(
		repository.NewPostgresAccountRepo(db),
		repository.NewPostgresEmailTokenRepo(db),
		mail, mc,
	)

	// 8. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitFeed, cfg.RateLimitAccountAction),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Gateway:        gateway,
		RateLimiter:    rateLimiter,
		Metrics:        mc,
		Logger:         slog.Default(),
		FeedService:    feedService,
		Visitors:       tracker,
		Ingestor:       queue,
		CursorService:  cursors,
		AccountService: accounts,
		ServiceDID:     cfg.ServiceDID,
		Hostname:       cfg.Hostname,
		HealthChecks: map[string]repository.Pinger{
			"primary": db,
			"replica": repository.NewReplicaPinger(replica),
		},
	})

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.SetupMetricsRoute(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 2)
	go listen(server, "API server", serveErr)
	go listen(metricsServer, "metrics server", serveErr)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		slog.Error("server stopped unexpectedly", slog.String("error", err.Error()))
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = errors.Join(
		server.Shutdown(shutdownCtx),
		metricsServer.Shutdown(shutdownCtx),
	)

	// 書きかけの訪問記録を待ってからDBを閉じる
	tracker.Wait()

	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// listen はサーバーを起動し、異常終了した場合はerrChに通知する。
func listen(server *http.Server, name string, errCh chan<- error) {
	slog.Info(name+" starting", slog.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("%s: %w", name, err)
	}
}

// newGateway はサービスキーとベアラートークンを検証するゲートウェイを構築する。
func newGateway(cfg *config.Config) (*auth.Gateway, error) {
	resolver, err := auth.ParseStaticKeys(cfg.TrustedSigningKeys)
	if err != nil {
		return nil, fmt.Errorf("invalid FEEDGEN_TRUSTED_SIGNING_KEYS: %w", err)
	}
	if resolver.Len() == 0 {
		slog.Warn("no trusted signing keys configured, all bearer tokens will be rejected")
	}

	verifier := auth.NewJWTVerifier(resolver, auth.JWTVerifierConfig{
		ServiceDID:  cfg.ServiceDID,
		AllowedAlgs: cfg.JWTAllowedAlgs,
	})

	return auth.NewGateway(auth.NewServiceKeyVerifier(cfg.APIKey), verifier), nil
}

// newMailer はメール送信の実装を選ぶ。MAILER_API_URLが未設定の場合は送信無効。
// 送信先はMAILER_API_URLのホストのみに制限する。
func newMailer(cfg *config.Config) (mailer.Mailer, error) {
	if cfg.MailerAPIURL == "" {
		slog.Warn("MAILER_API_URL is not set, account action mails are disabled")
		return mailer.Disabled{}, nil
	}

	u, err := url.Parse(cfg.MailerAPIURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MAILER_API_URL: %w", err)
	}

	guard := security.NewOutboundGuard(u.Hostname())
	if err := guard.ValidateURL(cfg.MailerAPIURL); err != nil {
		return nil, fmt.Errorf("MAILER_API_URL is not allowed: %w", err)
	}

	return mailer.NewHTTPMailer(guard.NewSafeClient(cfg.MailerTimeout), mailer.Config{
		APIURL: cfg.MailerAPIURL,
		APIKey: cfg.MailerAPIKey,
		From:   cfg.MailerFrom,
	}), nil
}

// runWorker はワーカーモードで起動する。
// 期限切れのアカウント操作トークンをCLEANUP_INTERVAL間隔で削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()

	db, err := database.Open(cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	cleanupJob := cleanup.NewCleanupJob(
		repository.NewPostgresEmailTokenRepo(db),
		slog.Default(),
		cfg.EmailTokenRetention,
	)

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("email_token_retention", cfg.EmailTokenRetention),
	)

	// ctxがキャンセルされるまでブロックする
	cleanupJob.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
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
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
