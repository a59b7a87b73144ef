package alert

import (
	"fmt"
	"log"
	"os"
	"strings"

	"dealer-market-go/infrastructure/logger"
)

// ZapChannel 将告警写入结构化日志，是守护进程的默认通道。
type ZapChannel struct {
	log  *logger.Logger
	name string
}

// NewZapChannel 创建结构化日志告警通道。
func NewZapChannel(name string, log *logger.Logger) *ZapChannel {
	return &ZapChannel{log: log, name: name}
}

// Send 以 alert_event 形式写入日志，规则名缺省用消息本身。
func (c *ZapChannel) Send(alert Alert) error {
	rule := alert.Rule
	if rule == "" {
		rule = alert.Message
	}
	fields := map[string]interface{}{
		"level":   alert.Level,
		"message": alert.Message,
	}
	for k, v := range alert.Fields {
		fields[k] = v
	}
	c.log.LogAlert(rule, fields)
	return nil
}

// Name 返回通道名称。
func (c *ZapChannel) Name() string { return c.name }

// LogChannel 纯文本日志告警通道，cmd 工具在没有结构化日志器时使用。
type LogChannel struct {
	logger *log.Logger
	name   string
}

// NewLogChannel 创建文本日志告警通道，output 为空时写到标准输出。
func NewLogChannel(name string, output *os.File) *LogChannel {
	if output == nil {
		output = os.Stdout
	}
	return &LogChannel{
		logger: log.New(output, "[alert] ", log.LstdFlags),
		name:   name,
	}
}

// Send 格式化后写入日志。
func (c *LogChannel) Send(alert Alert) error {
	c.logger.Println(formatAlert(alert, false))
	return nil
}

// Name 返回通道名称。
func (c *LogChannel) Name() string { return c.name }

// ConsoleChannel 控制台告警通道，按级别着色。
type ConsoleChannel struct {
	name string
}

// NewConsoleChannel 创建控制台告警通道。
func NewConsoleChannel(name string) *ConsoleChannel {
	return &ConsoleChannel{name: name}
}

// Send 带颜色输出到标准输出。
func (c *ConsoleChannel) Send(alert Alert) error {
	const reset = "\033[0m"
	color := reset
	switch alert.Level {
	case LevelInfo:
		color = "\033[32m"
	case LevelWarning:
		color = "\033[33m"
	case LevelError:
		color = "\033[31m"
	case LevelCritical:
		color = "\033[35m"
	}
	fmt.Printf("%s[%s]%s %s %s\n",
		color, alert.Level, reset,
		alert.Timestamp.Format("2006-01-02 15:04:05"),
		formatAlert(alert, true))
	return nil
}

// Name 返回通道名称。
func (c *ConsoleChannel) Name() string { return c.name }

func formatAlert(a Alert, bare bool) string {
	var b strings.Builder
	if !bare {
		fmt.Fprintf(&b, "[%s] ", a.Level)
	}
	b.WriteString(a.Message)
	if a.Rule != "" {
		fmt.Fprintf(&b, " rule=%s", a.Rule)
	}
	for k, v := range a.Fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	return b.String()
}

// MockChannel 测试用告警通道。
type MockChannel struct {
	name      string
	alerts    []Alert
	shouldErr bool
}

// NewMockChannel 创建测试通道。
func NewMockChannel(name string) *MockChannel {
	return &MockChannel{name: name}
}

// Send 记录告警，错误模式下返回失败。
func (c *MockChannel) Send(alert Alert) error {
	if c.shouldErr {
		return fmt.Errorf("mock error")
	}
	c.alerts = append(c.alerts, alert)
	return nil
}

// Name 返回通道名称。
func (c *MockChannel) Name() string { return c.name }

// GetAlerts 返回已接收的告警。
func (c *MockChannel) GetAlerts() []Alert { return c.alerts }

// SetShouldError 设置错误模式。
func (c *MockChannel) SetShouldError(shouldErr bool) { c.shouldErr = shouldErr }

// Clear 清空记录。
func (c *MockChannel) Clear() { c.alerts = nil }

// Count 返回已接收的告警数。
func (c *MockChannel) Count() int { return len(c.alerts) }
