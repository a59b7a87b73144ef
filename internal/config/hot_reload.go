package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// HotReloadConfig 热更新配置
type HotReloadConfig struct {
	Enabled       bool          // 是否启用热更新
	WatchInterval time.Duration // 监听间隔
	CooldownTime  time.Duration // 冷却时间，避免频繁更新
}

// DefaultHotReloadConfig 默认热更新配置
func DefaultHotReloadConfig() HotReloadConfig {
	return HotReloadConfig{
		Enabled:       true,
		WatchInterval: 1 * time.Second,
		CooldownTime:  5 * time.Second,
	}
}

// ParameterValidator 参数验证器接口
type ParameterValidator interface {
	Validate(params map[string]interface{}) error
}

// ParameterApplier 参数应用器接口
type ParameterApplier interface {
	ApplyParameters(params map[string]interface{}) error
}

// HotReloader 配置热更新器
type HotReloader struct {
	config        HotReloadConfig
	configPath    string
	watcher       *fsnotify.Watcher
	validators    map[string]ParameterValidator
	appliers      map[string]ParameterApplier
	lastReload    time.Time
	mu            sync.RWMutex
	stopChan      chan struct{}
	doneChan      chan struct{}
	reloadHandler func(newConfig interface{}) error
}

// NewHotReloader 创建热更新器
func NewHotReloader(configPath string, cfg HotReloadConfig) (*HotReloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &HotReloader{
		config:     cfg,
		configPath: configPath,
		watcher:    watcher,
		validators: make(map[string]ParameterValidator),
		appliers:   make(map[string]ParameterApplier),
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}, nil
}

// RegisterValidator 注册参数验证器
func (h *HotReloader) RegisterValidator(name string, validator ParameterValidator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.validators[name] = validator
}

// RegisterApplier 注册参数应用器
func (h *HotReloader) RegisterApplier(name string, applier ParameterApplier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appliers[name] = applier
}

// SetReloadHandler 设置重载处理函数
func (h *HotReloader) SetReloadHandler(handler func(newConfig interface{}) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reloadHandler = handler
}

// Start 启动热更新监听
func (h *HotReloader) Start(ctx context.Context) error {
	if !h.config.Enabled {
		return nil
	}

	// 添加配置文件到监听
	if err := h.watcher.Add(h.configPath); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	go h.watch(ctx)

	return nil
}

// Stop 停止热更新
func (h *HotReloader) Stop() error {
	if !h.config.Enabled {
		// 如果没有启用，直接关闭 watcher
		if h.watcher != nil {
			return h.watcher.Close()
		}
		return nil
	}

	// 发送停止信号
	select {
	case <-h.stopChan:
		// 已经停止
	default:
		close(h.stopChan)
	}

	// 等待 goroutine 结束（带超时）
	select {
	case <-h.doneChan:
		// 正常结束
	case <-time.After(1 * time.Second):
		// 超时，可能 watch goroutine 没有启动
	}

	if h.watcher != nil {
		return h.watcher.Close()
	}

	return nil
}

// watch 监听文件变化
func (h *HotReloader) watch(ctx context.Context) {
	defer close(h.doneChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopChan:
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}

			// 只处理写入和创建事件
			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create {
				h.handleConfigChange()
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			// 记录错误但继续监听
			fmt.Printf("Watcher error: %v\n", err)
		}
	}
}

// handleConfigChange 处理配置变化
func (h *HotReloader) handleConfigChange() {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 检查冷却时间
	if time.Since(h.lastReload) < h.config.CooldownTime {
		return
	}

	// 重新加载配置
	if h.reloadHandler != nil {
		if err := h.reloadHandler(nil); err != nil {
			fmt.Printf("Failed to reload config: %v\n", err)
			return
		}
	}

	h.lastReload = time.Now()
}

// ValidateParameters 验证参数
func (h *HotReloader) ValidateParameters(category string, params map[string]interface{}) error {
	h.mu.RLock()
	validator, ok := h.validators[category]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no validator registered for category: %s", category)
	}

	return validator.Validate(params)
}

// ApplyParameters 应用参数
func (h *HotReloader) ApplyParameters(category string, params map[string]interface{}) error {
	// 先验证
	if err := h.ValidateParameters(category, params); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	// 再应用
	h.mu.RLock()
	applier, ok := h.appliers[category]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no applier registered for category: %s", category)
	}

	return applier.ApplyParameters(params)
}

// GetLastReloadTime 获取最后重载时间
func (h *HotReloader) GetLastReloadTime() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastReload
}

// MakerParameterValidator 做市商参数验证器
type MakerParameterValidator struct{}

func (v *MakerParameterValidator) Validate(params map[string]interface{}) error {
	// 验证 alpha
	if alpha, ok := params["alpha"].(float64); ok {
		if alpha <= 0 {
			return fmt.Errorf("alpha must be positive, got %f", alpha)
		}
	}

	// 验证 gamma
	if gamma, ok := params["gamma"].(float64); ok {
		if gamma < 0 {
			return fmt.Errorf("gamma must be non-negative, got %f", gamma)
		}
	}

	// 验证 n_max
	if nMax, ok := params["n_max"].(int); ok {
		if nMax <= 0 || nMax > 1000 {
			return fmt.Errorf("n_max must be between 1 and 1000, got %d", nMax)
		}
	}

	// 验证 delta_tier
	if deltaTier, ok := params["delta_tier"].(float64); ok {
		if deltaTier < 0 {
			return fmt.Errorf("delta_tier must be non-negative, got %f", deltaTier)
		}
	}

	// 验证 yield_beta
	if beta, ok := params["yield_beta"].(float64); ok {
		if beta < 0 || beta >= 1.0 {
			return fmt.Errorf("yield_beta must be in [0,1), got %f", beta)
		}
	}

	return nil
}

// MarketParameterValidator 市场参数验证器
type MarketParameterValidator struct{}

func (v *MarketParameterValidator) Validate(params map[string]interface{}) error {
	// 验证 sigma
	if sigma, ok := params["sigma"].(float64); ok {
		if sigma < 0 {
			return fmt.Errorf("sigma must be non-negative, got %f", sigma)
		}
	}

	// 验证 mid_start
	if mid, ok := params["mid_start"].(float64); ok {
		if mid <= 0 {
			return fmt.Errorf("mid_start must be positive, got %f", mid)
		}
	}

	// 验证 v_max
	if vMax, ok := params["v_max"].(float64); ok {
		if vMax <= 0 {
			return fmt.Errorf("v_max must be positive, got %f", vMax)
		}
	}

	// 验证 lambda
	if lambda, ok := params["lambda"].(float64); ok {
		if lambda <= 1.0 {
			return fmt.Errorf("lambda must be greater than 1, got %f", lambda)
		}
	}

	return nil
}

// AlertParameterValidator 告警参数验证器
type AlertParameterValidator struct{}

func (v *AlertParameterValidator) Validate(params map[string]interface{}) error {
	// 验证 throttle_interval
	if interval, ok := params["throttle_interval"].(string); ok {
		if _, err := time.ParseDuration(interval); err != nil {
			return fmt.Errorf("invalid throttle_interval: %w", err)
		}
	}

	// 验证 max_abs_position
	if limit, ok := params["max_abs_position"].(float64); ok {
		if limit < 0 {
			return fmt.Errorf("max_abs_position must be non-negative, got %f", limit)
		}
	}

	return nil
}
