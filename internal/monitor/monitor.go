package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"standx-maker-go/gateway"
	"standx-maker-go/infrastructure/alert"
	"standx-maker-go/infrastructure/logger"
)

// 监控默认值
const (
	DefaultPollInterval   = 5 * time.Minute
	DefaultReportInterval = 2 * time.Hour
	DefaultStatusFile     = "status.log"

	// 权益从基准下跌超过该比例触发告警
	defaultEquityDropRatio = 0.10
	// 仓位超过 order_size 的该倍数触发告警
	defaultPositionMultiple = 5
)

// AccountGateway 监控轮询所需的交易所查询能力，生产实现是 gateway.Client。
type AccountGateway interface {
	QueryBalance(ctx context.Context) (*gateway.Balance, error)
	QueryPositions(ctx context.Context, symbol string) ([]gateway.Position, error)
}

// AlertSink 告警出口
type AlertSink interface {
	Notify(title, message, priority string)
}

// Account 被监控账户。运行时状态只由监控循环读写。
type Account struct {
	Name      string
	Symbol    string
	OrderSize float64
	Gateway   AccountGateway

	baseline        float64 // 权益告警基准，首次成功轮询时设定
	equity          float64
	position        float64
	upnl            float64
	polled          bool
	positionAlerted bool
}

// NewAccount 创建被监控账户
func NewAccount(name, symbol string, orderSize float64, gw AccountGateway) *Account {
	return &Account{
		Name:      name,
		Symbol:    symbol,
		OrderSize: orderSize,
		Gateway:   gw,
	}
}

// Config 监控配置
type Config struct {
	PollInterval     time.Duration // 轮询间隔，默认5分钟
	ReportInterval   time.Duration // 状态报告间隔，默认2小时
	StatusFile       string        // 状态文件路径，默认 status.log
	EquityDropRatio  float64       // 权益下跌告警比例，默认0.10
	PositionMultiple float64       // 仓位告警倍数，默认5
}

// Monitor 多账户监控：定期轮询权益和仓位，异常时告警，
// 周期性推送状态报告并落盘状态文件。
type Monitor struct {
	config   Config
	accounts []*Account
	alerts   AlertSink
	log      *logger.Logger
}

// New 创建监控器
func New(cfg Config, accounts []*Account, alerts AlertSink, log *logger.Logger) (*Monitor, error) {
	if len(accounts) == 0 {
		return nil, errors.New("at least one account is required")
	}
	for _, a := range accounts {
		if a.Gateway == nil {
			return nil, fmt.Errorf("account %s: gateway is required", a.Name)
		}
		if a.Symbol == "" {
			return nil, fmt.Errorf("account %s: symbol is required", a.Name)
		}
		if a.OrderSize <= 0 {
			return nil, fmt.Errorf("account %s: order_size must be > 0", a.Name)
		}
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = DefaultReportInterval
	}
	if cfg.StatusFile == "" {
		cfg.StatusFile = DefaultStatusFile
	}
	if cfg.EquityDropRatio <= 0 {
		cfg.EquityDropRatio = defaultEquityDropRatio
	}
	if cfg.PositionMultiple <= 0 {
		cfg.PositionMultiple = defaultPositionMultiple
	}

	return &Monitor{
		config:   cfg,
		accounts: accounts,
		alerts:   alerts,
		log:      log,
	}, nil
}

// Run 运行监控循环，阻塞直到 ctx 取消。
// 启动时立即执行一轮并推送状态报告，之后按轮询间隔执行。
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("监控循环启动",
		zap.Int("accounts", len(m.accounts)),
		zap.Duration("poll_interval", m.config.PollInterval),
		zap.Duration("report_interval", m.config.ReportInterval))

	m.pollAll(ctx)
	m.sendStatusReport()
	m.writeStatusFile(time.Now())
	lastReport := time.Now()

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("监控循环退出")
			return nil
		case <-ticker.C:
		}

		m.pollAll(ctx)
		m.writeStatusFile(time.Now())

		if time.Since(lastReport) >= m.config.ReportInterval {
			m.sendStatusReport()
			lastReport = time.Now()
		}
	}
}

// pollAll 轮询全部账户。单账户失败只记录日志，下一轮重试。
func (m *Monitor) pollAll(ctx context.Context) {
	for _, a := range m.accounts {
		if err := m.pollAccount(ctx, a); err != nil {
			m.log.Error("轮询账户失败",
				zap.String("account", a.Name),
				zap.Error(err))
			continue
		}
		m.checkEquityAlert(a)
		m.checkPositionAlert(a)
	}
}

// pollAccount 拉取单账户的权益和仓位。首次成功设定权益基准。
func (m *Monitor) pollAccount(ctx context.Context, a *Account) error {
	balance, err := a.Gateway.QueryBalance(ctx)
	if err != nil {
		return fmt.Errorf("query balance: %w", err)
	}

	positions, err := a.Gateway.QueryPositions(ctx, a.Symbol)
	if err != nil {
		return fmt.Errorf("query positions: %w", err)
	}

	a.equity = balance.Equity
	a.upnl = balance.UPnL
	if len(positions) > 0 {
		a.position = positions[0].Qty
	} else {
		a.position = 0
	}
	if !a.polled {
		a.baseline = a.equity
		a.polled = true
		m.log.Info("账户基准权益已设定",
			zap.String("account", a.Name),
			zap.Float64("equity", a.equity))
	}
	return nil
}

// checkEquityAlert 权益下跌告警。告警后基准重置为当前权益，
// 再跌一个阈值才会触发下一次告警。
func (m *Monitor) checkEquityAlert(a *Account) {
	if a.baseline <= 0 {
		return
	}
	drop := (a.baseline - a.equity) / a.baseline
	if drop < m.config.EquityDropRatio {
		return
	}

	m.log.Warn("权益下跌超过阈值",
		zap.String("account", a.Name),
		zap.Float64("baseline", a.baseline),
		zap.Float64("equity", a.equity),
		zap.Float64("drop_ratio", drop))
	m.notify("余额告警",
		fmt.Sprintf("%s 余额告警! 基准$%.0f → 当前$%.0f (降%.1f%%)",
			a.Name, a.baseline, a.equity, drop*100),
		alert.PriorityCritical)
	a.baseline = a.equity
}

// checkPositionAlert 仓位超限告警。触发一次后挂起，
// 仓位回落到阈值一半以下时重新武装。
func (m *Monitor) checkPositionAlert(a *Account) {
	threshold := a.OrderSize * m.config.PositionMultiple

	if math.Abs(a.position) > threshold && !a.positionAlerted {
		a.positionAlerted = true
		m.log.Warn("仓位超过阈值",
			zap.String("account", a.Name),
			zap.Float64("position", a.position),
			zap.Float64("threshold", threshold))
		m.notify("仓位告警",
			fmt.Sprintf("%s 仓位告警: %.4f %s (阈值: ±%.4f)",
				a.Name, a.position, assetOf(a.Symbol), threshold),
			alert.PriorityNormal)
	}

	if math.Abs(a.position) < threshold*0.5 {
		a.positionAlerted = false
	}
}

// sendStatusReport 推送各账户一行摘要
func (m *Monitor) sendStatusReport() {
	m.notify("StandX 状态", m.buildReport(), alert.PriorityNormal)
}

func (m *Monitor) buildReport() string {
	lines := make([]string, 0, len(m.accounts))
	for _, a := range m.accounts {
		lines = append(lines, fmt.Sprintf("%s: $%.0f pos:%+.4f uPNL:%+.2f",
			a.Name, a.equity, a.position, a.upnl))
	}
	return strings.Join(lines, "\n")
}

// writeStatusFile 将当前状态整体重写到状态文件
func (m *Monitor) writeStatusFile(now time.Time) {
	var b strings.Builder
	fmt.Fprintf(&b, "=== StandX Monitor Status @ %s ===\n\n", now.Format("2006-01-02 15:04:05"))
	for _, a := range m.accounts {
		fmt.Fprintf(&b, "Account: %s\n", a.Name)
		fmt.Fprintf(&b, "  Equity:   $%.2f\n", a.equity)
		fmt.Fprintf(&b, "  Position: %+.4f %s\n", a.position, assetOf(a.Symbol))
		fmt.Fprintf(&b, "  uPNL:     $%+.2f\n", a.upnl)
		b.WriteString("\n")
	}

	if err := os.WriteFile(m.config.StatusFile, []byte(b.String()), 0o644); err != nil {
		m.log.Warn("写入状态文件失败",
			zap.String("path", m.config.StatusFile),
			zap.Error(err))
	}
}

func (m *Monitor) notify(title, message, priority string) {
	if m.alerts == nil {
		return
	}
	m.alerts.Notify(title, message, priority)
}

// assetOf 从交易对提取资产名，BTC-USD → BTC
func assetOf(symbol string) string {
	if i := strings.Index(symbol, "-"); i > 0 {
		return symbol[:i]
	}
	return symbol
}

// AccountName 从配置文件路径推导账户名：
// config-alpha.yaml → alpha，config.yaml → main。
func AccountName(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".yaml")
	name = strings.TrimSuffix(name, ".yml")
	if name == "config" {
		return "main"
	}
	return strings.TrimPrefix(name, "config-")
}
