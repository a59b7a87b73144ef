package alert

import (
	"fmt"
	"sync"
	"time"
)

// 告警级别。
const (
	LevelInfo     = "INFO"
	LevelWarning  = "WARNING"
	LevelError    = "ERROR"
	LevelCritical = "CRITICAL"
)

// Alert 一条运行告警。Rule 为触发的规则名（logschema 的 alert 事件字段），
// 人工发送时可留空。
type Alert struct {
	Level     string
	Rule      string
	Message   string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Channel 告警出口。
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Manager 汇聚告警并限流后分发到各通道。
type Manager struct {
	channels []Channel
	throttle *Throttler
	mu       sync.RWMutex
}

// NewManager 创建告警管理器。
func NewManager(channels []Channel, throttleInterval time.Duration) *Manager {
	return &Manager{
		channels: channels,
		throttle: NewThrottler(throttleInterval),
	}
}

// SendAlert 发送一条告警。同级别同内容的告警在限流间隔内静默丢弃。
func (m *Manager) SendAlert(alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	if !m.throttle.Allow(alert.Level + ":" + alert.Message) {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var lastErr error
	delivered := 0
	for _, ch := range m.channels {
		if err := ch.Send(alert); err != nil {
			lastErr = fmt.Errorf("channel %s failed: %w", ch.Name(), err)
		} else {
			delivered++
		}
	}
	// 只要有一个通道送达就算成功。
	if delivered == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

func (m *Manager) send(level, message string, fields map[string]interface{}) error {
	return m.SendAlert(Alert{Level: level, Message: message, Fields: fields})
}

// SendInfo 发送 INFO 级别告警。
func (m *Manager) SendInfo(message string, fields map[string]interface{}) error {
	return m.send(LevelInfo, message, fields)
}

// SendWarning 发送 WARNING 级别告警。
func (m *Manager) SendWarning(message string, fields map[string]interface{}) error {
	return m.send(LevelWarning, message, fields)
}

// SendError 发送 ERROR 级别告警。
func (m *Manager) SendError(message string, fields map[string]interface{}) error {
	return m.send(LevelError, message, fields)
}

// SendCritical 发送 CRITICAL 级别告警。
func (m *Manager) SendCritical(message string, fields map[string]interface{}) error {
	return m.send(LevelCritical, message, fields)
}

// AddChannel 添加告警通道。
func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

// RemoveChannel 按名称移除告警通道。
func (m *Manager) RemoveChannel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.channels[:0]
	for _, ch := range m.channels {
		if ch.Name() != name {
			kept = append(kept, ch)
		}
	}
	m.channels = kept
}

// GetChannels 返回当前通道名称列表。
func (m *Manager) GetChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

// ResetThrottle 清空限流状态。
func (m *Manager) ResetThrottle() {
	m.throttle.Clear()
}

// Throttler 按 key 限制发送频率。
type Throttler struct {
	lastSent map[string]time.Time
	interval time.Duration
	mu       sync.Mutex
}

// NewThrottler 创建限流器。
func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
	}
}

// Allow 判断该 key 是否允许发送，允许时记录本次时间。
func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if last, ok := t.lastSent[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastSent[key] = now
	return true
}

// Reset 清除单个 key 的限流记录。
func (t *Throttler) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSent, key)
}

// Clear 清空所有限流记录。
func (t *Throttler) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = make(map[string]time.Time)
}
