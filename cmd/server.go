package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"audiolib/cache"
	"audiolib/core/auth"
	"audiolib/db"
	"audiolib/logger"
	"audiolib/metrics"
	"audiolib/repository"
	"audiolib/server"
	"audiolib/storage"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var (
	serverMemory bool
	serverDrain  time.Duration
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动音频库HTTP服务",
	Long:  `启动音频库的HTTP服务，提供上传、列表、Range流式播放和管理接口`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServer(ctx)
	},
}

func init() {
	serverCmd.Flags().BoolVar(&serverMemory, "memory", false, "use the in-memory metadata store instead of MySQL")
	serverCmd.Flags().DurationVar(&serverDrain, "drain", 10*time.Second, "how long to wait for in-flight requests on shutdown")
	rootCmd.AddCommand(serverCmd)
}

func runServer(ctx context.Context) error {
	if cfg.JWTSecret == "change-me" {
		logger.Warn("JWT_SECRET 使用默认值，请在生产环境中修改")
	}

	assets, err := storage.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	var (
		tracks repository.TrackRepository
		users  repository.UserRepository
		sqlDB  *sql.DB
	)
	if serverMemory {
		logger.Warn("使用内存存储，重启后数据将丢失")
		mem := repository.NewMemoryStore()
		tracks, users = mem, mem
	} else {
		sqlDB, err = db.ConnectDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer sqlDB.Close()
		tracks = repository.NewMySQLTrackRepository(sqlDB)
		users = repository.NewMySQLUserRepository(sqlDB)
	}

	if err := seedAdmin(ctx, users); err != nil {
		return err
	}

	// the stats cache is optional; without Redis every request hits the store
	var rdb *redis.Client
	if !serverMemory {
		rdb, err = db.ConnectRedis(ctx, cfg)
		if err != nil {
			logger.Warn("Redis不可用，统计缓存已禁用", logger.ErrorField(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}
	stats := cache.NewStatsCache(rdb, tracks, cfg.StatsCacheTTL, 5)

	api := server.NewAPIHandler(tracks, users, assets, auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTokenTTL), stats, cfg)
	if sqlDB != nil {
		api.AddHealthCheck("mysql", sqlDB.PingContext)
	}
	if rdb != nil {
		api.AddHealthCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	logger.Info("音频库服务初始化完成",
		logger.String("storage", cfg.StorageBackend),
		logger.Bool("memory", serverMemory),
		logger.Bool("statsCache", rdb != nil))

	return server.Start(ctx, cfg.HTTPAddr, server.NewRouter(api, reg), serverDrain)
}
