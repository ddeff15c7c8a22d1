// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/marketscope/internal/cache"
	"github.com/hitoshi/marketscope/internal/config"
	"github.com/hitoshi/marketscope/internal/connector"
	"github.com/hitoshi/marketscope/internal/database"
	"github.com/hitoshi/marketscope/internal/handler"
	"github.com/hitoshi/marketscope/internal/logger"
	"github.com/hitoshi/marketscope/internal/market"
	"github.com/hitoshi/marketscope/internal/metrics"
	"github.com/hitoshi/marketscope/internal/pipeline"
	"github.com/hitoshi/marketscope/internal/repository"
	"github.com/hitoshi/marketscope/internal/scoring"
	"github.com/hitoshi/marketscope/internal/security"
	"github.com/hitoshi/marketscope/internal/worker/monitor"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
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
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// core はサーブ/ワーカー両モードで共有する依存関係の束。
type core struct {
	db            *sql.DB
	listingRepo   repository.ListingRepository
	ruleRepo      repository.AlertRuleRepository
	eventRepo     repository.AlertEventRepository
	researchCache cache.Cache
	service       *market.Service
	scheduler     *monitor.Scheduler
	collector     *metrics.Collector
	registry      *prometheus.Registry
}

func (c *core) close() {
	if c.researchCache != nil {
		c.researchCache.Close()
	}
	if c.db != nil {
		c.db.Close()
	}
}

// buildCore はDB接続から監視スケジューラまでの全依存関係をワイヤリングする。
func buildCore(cfg *config.Config) (*core, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// リポジトリの初期化
	listingRepo := repository.NewPostgresListingRepo(db)
	snapshotRepo := repository.NewPostgresSnapshotRepo(db)
	ruleRepo := repository.NewPostgresAlertRuleRepo(db)
	eventRepo := repository.NewPostgresAlertEventRepo(db)

	// セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewDescriptionSanitizer()

	// コネクタの初期化
	client := connector.NewClient(
		ssrfGuard, slog.Default(),
		cfg.ConnectorTimeout, cfg.ConnectorMaxSize,
		cfg.ConnectorRate, cfg.ConnectorBurst,
	)
	connectors := []connector.Connector{
		connector.NewMercadoLivre(client, sanitizer, slog.Default(), cfg.MLBaseURL, cfg.MLAccessToken),
		connector.NewMagalu(client, sanitizer, slog.Default(), cfg.MagaluBaseURL),
	}
	if cfg.OfferFeedURL != "" {
		connectors = append(connectors,
			connector.NewOfferFeed(client, sanitizer, slog.Default(), cfg.OfferFeedURL))
	}
	registry := connector.NewRegistry(connectors...)

	// 調査結果キャッシュの初期化（REDIS_URLが設定されていればRedis）
	var researchCache cache.Cache
	if cfg.RedisURL != "" {
		researchCache, err = cache.NewRedisCache(cfg.RedisURL, cfg.ResearchCacheTTL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis cache enabled")
	} else {
		researchCache = cache.NewMemoryCache(cfg.ResearchCacheCapacity, cfg.ResearchCacheTTL)
	}

	// メトリクスの初期化
	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	// 市場調査サービスの初期化
	service := market.NewService(
		registry,
		pipeline.New(slog.Default()),
		scoring.NewAuditor(),
		listingRepo,
		researchCache,
		collector,
		slog.Default(),
	)

	// 監視ワーカーの初期化
	checker := monitor.NewChecker(
		registry, listingRepo, snapshotRepo, ruleRepo, eventRepo,
		collector, slog.Default(),
		cfg.MonitorDedupeWindow, cfg.MonitorMaxListings, cfg.MonitorListingTimeout,
	)
	scheduler := monitor.NewScheduler(checker, monitor.NewHealth(), collector, slog.Default())

	return &core{
		db:            db,
		listingRepo:   listingRepo,
		ruleRepo:      ruleRepo,
		eventRepo:     eventRepo,
		researchCache: researchCache,
		service:       service,
		scheduler:     scheduler,
		collector:     collector,
		registry:      promRegistry,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// MONITOR_ENABLEDがtrueの場合は監視スケジューラも同一プロセスで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	c, err := buildCore(cfg)
	if err != nil {
		return err
	}
	defer c.close()

	router := handler.NewRouter(&handler.RouterDeps{
		ResearchService: c.service,
		MonitorTrigger:  c.scheduler,
		RuleRepo:        c.ruleRepo,
		EventRepo:       c.eventRepo,
		Gatherer:        c.registry,
		Logger:          slog.Default(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	if cfg.MonitorEnabled {
		go c.scheduler.Start(ctx, cfg.MonitorInterval)
	} else {
		slog.Info("monitor scheduler is disabled")
	}

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker は監視ワーカーモードで起動する。
// HTTPサーバーなしで監視スケジューラのみを実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	c, err := buildCore(cfg)
	if err != nil {
		return err
	}
	defer c.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("monitor_interval", cfg.MonitorInterval),
		slog.Int("max_listings", cfg.MonitorMaxListings),
	)

	// 監視スケジューラをメインgoroutineで実行（ブロッキング）
	c.scheduler.Start(ctx, cfg.MonitorInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
