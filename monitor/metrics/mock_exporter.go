package metrics

import (
	"fmt"
	"sort"
	"sync"
)

// Counter 模拟 Prometheus Counter 接口。
type Counter interface {
	Inc()
	Add(v float64)
}

// Gauge 模拟 Prometheus Gauge。
type Gauge interface {
	Set(v float64)
}

// Histogram 模拟 Prometheus Histogram。
type Histogram interface {
	Observe(v float64)
}

// MockCounter 是一个线程不安全但简单的计数器，适合单测。
type MockCounter struct {
	Value float64
}

func (c *MockCounter) Inc() {
	c.Value++
}

func (c *MockCounter) Add(v float64) {
	c.Value += v
}

// MockGauge 记录最后一次 Set 的值。
type MockGauge struct {
	Value float64
}

func (g *MockGauge) Set(v float64) {
	g.Value = v
}

// MockHistogram 记录全部 observe 值，便于断言。
type MockHistogram struct {
	Values []float64
}

func (h *MockHistogram) Observe(v float64) {
	h.Values = append(h.Values, v)
}

// MockRecorder 实现 monitor.Recorder，按指标名与标签计数。
type MockRecorder struct {
	mu     sync.Mutex
	counts map[string]float64
}

// Inc 累加一次计数。
func (r *MockRecorder) Inc(name string, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]float64)
	}
	r.counts[mockKey(name, labels)]++
}

// Count 返回指定指标与标签的计数。
func (r *MockRecorder) Count(name string, labels map[string]string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[mockKey(name, labels)]
}

func mockKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	key := name
	for _, k := range keys {
		key += fmt.Sprintf("{%s=%s}", k, labels[k])
	}
	return key
}
