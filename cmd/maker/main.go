package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"standx-maker-go/config"
	"standx-maker-go/gateway"
	"standx-maker-go/infrastructure/alert"
	"standx-maker-go/infrastructure/logger"
	"standx-maker-go/internal/maker"
	"standx-maker-go/internal/store"
	"standx-maker-go/metrics"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	// .env 先加载，环境变量覆盖在配置读取时生效
	_ = godotenv.Load()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	logg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logg.Close()

	logg.Info("StandX 做市启动",
		zap.String("config", *cfgPath),
		zap.String("symbol", cfg.Symbol),
		zap.Float64("order_distance_bps", cfg.OrderDistanceBps),
		zap.Float64("order_size", cfg.OrderSize),
		zap.Float64("max_position", cfg.MaxPosition))

	alerts := buildAlertManager(cfg, logg)

	if cfg.Metrics.Enabled {
		metrics.StartMetricsServer(cfg.Metrics.Addr)
		logg.Info("指标服务已启动", zap.String("addr", cfg.Metrics.Addr))
	}

	client := gateway.NewClient(
		cfg.Gateway.BaseURL,
		cfg.Wallet.BearerToken(),
		cfg.Wallet.APISecret,
		time.Duration(cfg.Gateway.TimeoutSec)*time.Second,
	)

	prices := store.NewPriceHistory(time.Duration(cfg.VolatilityWindowSec) * time.Second)
	book := store.NewOrderBook()

	m, err := maker.New(maker.Config{
		Symbol:      cfg.Symbol,
		MaxPosition: cfg.MaxPosition,
		Quote:       quoteParams(cfg),
	}, maker.Components{
		Gateway: client,
		Alerts:  alerts,
		Prices:  prices,
		Book:    book,
		Logger:  logg,
	})
	if err != nil {
		logg.Fatal("初始化做市引擎失败", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 启动对账失败必须退出，不能在未知状态上做市
	initCtx, cancelInit := context.WithTimeout(ctx, 30*time.Second)
	err = m.Initialize(initCtx)
	cancelInit()
	if err != nil {
		logg.Fatal("初始状态同步失败", zap.Error(err))
	}

	feed := gateway.NewPriceFeed(cfg.Gateway.WSURL, cfg.Symbol, logg.Logger)
	feed.OnPrice(m.OnPrice)
	if err := feed.Start(); err != nil {
		logg.Fatal("启动价格流失败", zap.Error(err))
	}

	watcher, err := config.NewWatcher(*cfgPath, 5*time.Second, logg.Logger)
	if err != nil {
		logg.Warn("创建配置监听失败，参数热更新不可用", zap.Error(err))
		watcher = nil
	} else {
		watcher.OnReload(func(next config.AppConfig) {
			m.ApplyQuoteParams(quoteParams(next))
		})
		if err := watcher.Start(ctx); err != nil {
			logg.Warn("启动配置监听失败", zap.Error(err))
		}
	}

	// systemd 就绪通知与看门狗，非systemd环境下均为空操作
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	go watchdogLoop(ctx)
	metrics.SetReady(true)

	runErr := make(chan error, 1)
	go func() { runErr <- m.Run(ctx) }()

	select {
	case <-ctx.Done():
		logg.Info("收到退出信号")
	case err := <-runErr:
		if err != nil {
			logg.Error("做市循环异常退出", zap.Error(err))
		}
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	metrics.SetReady(false)

	if err := m.Stop(); err != nil {
		logg.Warn("停止做市引擎失败", zap.Error(err))
	}
	feed.Stop()
	if watcher != nil {
		_ = watcher.Stop()
	}
	logg.Info("进程已退出")
}

// buildAlertManager 组装告警通道：结构化日志必开，
// 配置了 NOTIFY_URL 时追加webhook推送。
func buildAlertManager(cfg config.AppConfig, logg *logger.Logger) *alert.Manager {
	channels := []alert.Channel{alert.NewLogChannel("log", logg.Logger)}
	if url := os.Getenv("NOTIFY_URL"); url != "" {
		channels = append(channels, alert.NewWebhookChannel("webhook", url, os.Getenv("NOTIFY_API_KEY")))
		logg.Info("webhook告警已启用")
	}
	return alert.NewManager(channels, time.Duration(cfg.Alert.ThrottleSec)*time.Second, logg.Logger)
}

func quoteParams(cfg config.AppConfig) maker.QuoteParams {
	return maker.QuoteParams{
		OrderDistanceBps:       cfg.OrderDistanceBps,
		CancelDistanceBps:      cfg.CancelDistanceBps,
		RebalanceDistanceBps:   cfg.RebalanceDistanceBps,
		OrderSize:              cfg.OrderSize,
		VolatilityThresholdBps: cfg.VolatilityThresholdBps,
	}
}

// watchdogLoop 按 WatchdogSec 的一半间隔喂狗
func watchdogLoop(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
