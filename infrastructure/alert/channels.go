package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LogChannel 日志告警通道，写入结构化日志
type LogChannel struct {
	log  *zap.Logger
	name string
}

// NewLogChannel 创建日志告警通道
func NewLogChannel(name string, log *zap.Logger) *LogChannel {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogChannel{
		log:  log,
		name: name,
	}
}

// Send 发送告警到日志
func (c *LogChannel) Send(alert Alert) error {
	fields := []zap.Field{
		zap.String("title", alert.Title),
		zap.String("priority", alert.Priority),
		zap.Time("alert_ts", alert.Timestamp),
	}
	for k, v := range alert.Fields {
		fields = append(fields, zap.Any(k, v))
	}

	switch alert.Priority {
	case PriorityCritical, PriorityHigh:
		c.log.Error(alert.Message, fields...)
	default:
		c.log.Warn(alert.Message, fields...)
	}
	return nil
}

// Name 返回通道名称
func (c *LogChannel) Name() string {
	return c.name
}

// ConsoleChannel 控制台告警通道（彩色输出）
type ConsoleChannel struct {
	name string
}

// NewConsoleChannel 创建控制台告警通道
func NewConsoleChannel(name string) *ConsoleChannel {
	return &ConsoleChannel{
		name: name,
	}
}

// Send 发送告警到控制台（带颜色）
func (c *ConsoleChannel) Send(alert Alert) error {
	colorReset := "\033[0m"
	colorCode := ""

	switch alert.Priority {
	case PriorityNormal:
		colorCode = "\033[32m" // 绿色
	case PriorityHigh:
		colorCode = "\033[33m" // 黄色
	case PriorityCritical:
		colorCode = "\033[31m" // 红色
	default:
		colorCode = colorReset
	}

	msg := fmt.Sprintf("%s[%s]%s %s - %s: %s",
		colorCode,
		alert.Priority,
		colorReset,
		alert.Timestamp.Format("2006-01-02 15:04:05"),
		alert.Title,
		alert.Message,
	)

	fmt.Println(msg)
	return nil
}

// Name 返回通道名称
func (c *ConsoleChannel) Name() string {
	return c.name
}

// webhookPayload 通知服务的请求体
type webhookPayload struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Channel  string `json:"channel"`
	Priority string `json:"priority"`
}

// WebhookChannel 通过HTTP POST推送到通知服务（NOTIFY_URL）
type WebhookChannel struct {
	name   string
	url    string
	apiKey string
	client *http.Client
}

// NewWebhookChannel 创建webhook告警通道。apiKey为空时不带X-API-Key头。
func NewWebhookChannel(name, url, apiKey string) *WebhookChannel {
	return &WebhookChannel{
		name:   name,
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// SetHTTPClient 注入自定义HTTP客户端（测试用）
func (c *WebhookChannel) SetHTTPClient(client *http.Client) {
	c.client = client
}

// Send 推送告警到通知服务
func (c *WebhookChannel) Send(alert Alert) error {
	payload := webhookPayload{
		Title:    alert.Title,
		Message:  alert.Message,
		Channel:  "alert",
		Priority: alert.Priority,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Name 返回通道名称
func (c *WebhookChannel) Name() string {
	return c.name
}

// MockChannel 模拟告警通道（用于测试）
type MockChannel struct {
	name      string
	alerts    []Alert
	shouldErr bool
}

// NewMockChannel 创建模拟告警通道
func NewMockChannel(name string) *MockChannel {
	return &MockChannel{
		name:   name,
		alerts: make([]Alert, 0),
	}
}

// Send 记录告警（用于测试验证）
func (c *MockChannel) Send(alert Alert) error {
	if c.shouldErr {
		return fmt.Errorf("mock error")
	}
	c.alerts = append(c.alerts, alert)
	return nil
}

// Name 返回通道名称
func (c *MockChannel) Name() string {
	return c.name
}

// GetAlerts 获取所有接收到的告警
func (c *MockChannel) GetAlerts() []Alert {
	return c.alerts
}

// SetShouldError 设置是否返回错误
func (c *MockChannel) SetShouldError(shouldErr bool) {
	c.shouldErr = shouldErr
}

// Clear 清空告警记录
func (c *MockChannel) Clear() {
	c.alerts = make([]Alert, 0)
}

// Count 返回接收到的告警数量
func (c *MockChannel) Count() int {
	return len(c.alerts)
}
