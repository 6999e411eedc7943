package config

import (
	"context"
	"os"
	"time"
)

// WatchOptions loads options.yaml, hands it to onUpdate, then keeps polling
// the file and calls onUpdate again each time a changed file parses cleanly.
// A file that fails to parse is skipped and the previous options stay live.
func WatchOptions(ctx context.Context, path string, interval time.Duration, onUpdate func(*Options)) error {
	if path == "" {
		path = "configs/options.yaml"
	}
	opts, err := LoadOptions(path)
	if err != nil {
		return err
	}
	onUpdate(opts)

	return pollFile(ctx, path, interval, func() bool {
		opts, err := LoadOptions(path)
		if err != nil {
			return false
		}
		onUpdate(opts)
		return true
	})
}

type fileStamp struct {
	mod  time.Time
	size int64
}

func stampOf(path string) (fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{mod: info.ModTime(), size: info.Size()}, nil
}

// pollFile calls reload whenever the file's mtime or size changes. The new
// stamp is only remembered when reload reports success.
func pollFile(ctx context.Context, path string, interval time.Duration, reload func() bool) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	last, err := stampOf(path)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cur, err := stampOf(path)
				if err != nil || cur == last {
					continue
				}
				if reload() {
					last = cur
				}
			}
		}
	}()
	return nil
}
