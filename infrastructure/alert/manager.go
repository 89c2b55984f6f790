package alert

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"standx-maker-go/metrics"
)

// 告警优先级
const (
	PriorityNormal   = "normal"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Alert 告警信息
type Alert struct {
	Title     string                 // 告警标题
	Message   string                 // 告警消息
	Priority  string                 // normal, high, critical
	Timestamp time.Time              // 告警时间
	Fields    map[string]interface{} // 附加字段
}

// Channel 告警通道接口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Manager 告警管理器。通知失败只记录日志，永远不影响调用方。
type Manager struct {
	channels []Channel
	throttle *Throttler
	log      *zap.Logger
	mu       sync.RWMutex
}

// Throttler 告警限流器
type Throttler struct {
	lastSent map[string]time.Time
	interval time.Duration
	mu       sync.RWMutex
}

// NewThrottler 创建限流器
func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
	}
}

// Allow 检查是否允许发送（限流）
func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	lastTime, exists := t.lastSent[key]

	if !exists || now.Sub(lastTime) >= t.interval {
		t.lastSent[key] = now
		return true
	}

	return false
}

// Reset 重置限流器
func (t *Throttler) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSent, key)
}

// Clear 清空所有限流记录
func (t *Throttler) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = make(map[string]time.Time)
}

// NewManager 创建告警管理器
func NewManager(channels []Channel, throttleInterval time.Duration, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		channels: channels,
		throttle: NewThrottler(throttleInterval),
		log:      log,
	}
}

// Notify 发送告警。尽力而为：通道错误被吞掉，只留日志。
func (m *Manager) Notify(title, message, priority string) {
	m.Send(Alert{
		Title:    title,
		Message:  message,
		Priority: priority,
	})
}

// Send 发送完整告警对象
func (m *Manager) Send(alert Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	if alert.Priority == "" {
		alert.Priority = PriorityNormal
	}

	// 同一条告警在限流窗口内只发一次
	key := fmt.Sprintf("%s:%s", alert.Title, alert.Message)
	if !m.throttle.Allow(key) {
		return
	}

	m.mu.RLock()
	channels := m.channels
	m.mu.RUnlock()

	sent := false
	for _, ch := range channels {
		if err := ch.Send(alert); err != nil {
			m.log.Warn("alert channel failed",
				zap.String("channel", ch.Name()),
				zap.String("title", alert.Title),
				zap.Error(err))
			continue
		}
		sent = true
	}

	if sent {
		metrics.AlertsSent.WithLabelValues(alert.Priority).Inc()
	}
}

// AddChannel 添加告警通道
func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

// RemoveChannel 移除告警通道
func (m *Manager) RemoveChannel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	filtered := make([]Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		if ch.Name() != name {
			filtered = append(filtered, ch)
		}
	}
	m.channels = filtered
}

// GetChannels 获取所有通道名称
func (m *Manager) GetChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

// ResetThrottle 重置限流器
func (m *Manager) ResetThrottle() {
	m.throttle.Clear()
}
