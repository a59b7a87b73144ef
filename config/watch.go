package config

import (
	"context"
	"os"
	"time"
)

// Watcher 轮询场景文件的修改时间，变更时重新加载并回调。
// 守护进程里更细粒度的热更新走 internal/config 的 fsnotify 实现。
type Watcher struct {
	Path     string
	Interval time.Duration
}

// Start 开始轮询；文件变更且验证通过时回调最新场景。
func (w Watcher) Start(ctx context.Context, onUpdate func(Scenario)) error {
	if w.Interval <= 0 {
		w.Interval = 2 * time.Second
	}
	var lastMod time.Time
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			info, err := readFileInfo(w.Path)
			if err != nil {
				continue
			}
			if info.ModTime().After(lastMod) {
				lastMod = info.ModTime()
				if cfg, err := LoadWithEnvOverrides(w.Path); err == nil && onUpdate != nil {
					onUpdate(cfg)
				}
			}
		}
	}
}

// readFileInfo 提出来便于测试替换。
var readFileInfo = func(path string) (info interface{ ModTime() time.Time }, err error) {
	return os.Stat(path)
}
