package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"standx-maker-go/config"
	"standx-maker-go/gateway"
	"standx-maker-go/infrastructure/alert"
	"standx-maker-go/infrastructure/logger"
	"standx-maker-go/internal/monitor"
)

// configList 可重复的 -c 参数
type configList []string

func (c *configList) String() string { return strings.Join(*c, ",") }

func (c *configList) Set(v string) error {
	*c = append(*c, v)
	return nil
}

func main() {
	var extra configList
	flag.Var(&extra, "c", "额外的配置文件（可重复）")
	pollSec := flag.Int("poll", 300, "轮询间隔（秒）")
	reportSec := flag.Int("report", 7200, "状态报告间隔（秒）")
	statusFile := flag.String("status", monitor.DefaultStatusFile, "状态文件路径")
	flag.Parse()

	// .env 提供 NOTIFY_URL / NOTIFY_API_KEY
	_ = godotenv.Load()

	paths := append([]string{}, flag.Args()...)
	paths = append(paths, extra...)
	if len(paths) == 0 {
		fmt.Println("用法: monitor config1.yaml config2.yaml ...")
		fmt.Println("  或: monitor -c config1.yaml -c config2.yaml")
		os.Exit(1)
	}

	logg, err := logger.New(logger.DefaultConfig())
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logg.Close()

	channels := []alert.Channel{alert.NewLogChannel("log", logg.Logger)}
	if url := os.Getenv("NOTIFY_URL"); url != "" {
		channels = append(channels, alert.NewWebhookChannel("webhook", url, os.Getenv("NOTIFY_API_KEY")))
		logg.Info("webhook告警已启用")
	} else {
		logg.Info("未配置 NOTIFY_URL，告警仅写入本地日志")
	}
	alerts := alert.NewManager(channels, time.Duration(config.DefaultAlertThrottleSec)*time.Second, logg.Logger)

	// 每个账户一份配置文件，钱包凭证各自独立
	accounts := make([]*monitor.Account, 0, len(paths))
	for _, path := range paths {
		cfg, err := config.Load(path)
		if err != nil {
			logg.Error("加载配置失败，跳过该账户",
				zap.String("path", path),
				zap.Error(err))
			continue
		}
		client := gateway.NewClient(
			cfg.Gateway.BaseURL,
			cfg.Wallet.BearerToken(),
			cfg.Wallet.APISecret,
			time.Duration(cfg.Gateway.TimeoutSec)*time.Second,
		)
		accounts = append(accounts, monitor.NewAccount(
			monitor.AccountName(path), cfg.Symbol, cfg.OrderSize, client))
	}
	if len(accounts) == 0 {
		logg.Fatal("没有可监控的账户")
	}

	mon, err := monitor.New(monitor.Config{
		PollInterval:   time.Duration(*pollSec) * time.Second,
		ReportInterval: time.Duration(*reportSec) * time.Second,
		StatusFile:     *statusFile,
	}, accounts, alerts, logg)
	if err != nil {
		logg.Fatal("初始化监控失败", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logg.Info("开始监控", zap.Int("accounts", len(accounts)))
	if err := mon.Run(ctx); err != nil {
		logg.Fatal("监控循环异常", zap.Error(err))
	}
	logg.Info("监控已退出")
}
