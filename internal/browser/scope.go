package browser

import (
	"context"
	"errors"
	"fmt"
	"os"

	"ncjourney/internal/logging"
)

// WithSession launches a session, runs fn with it and releases it. Close is
// called exactly once whether fn returns, fails, panics or ctx is cancelled;
// a panic is re-raised after release.
//
// The download directory is created first when cfg accepts downloads.
func WithSession(ctx context.Context, l Launcher, cfg Config, fn func(context.Context, Session) error) (err error) {
	logger := logging.New("browser")

	if cfg.AcceptDownloads && cfg.DownloadDir != "" {
		if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
			return fmt.Errorf("create download dir: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	logger.Info("launch browser", "engine", cfg.Kind, "headless", cfg.Headless, "downloads", cfg.AcceptDownloads)
	sess, err := l.Launch(ctx, cfg)
	if err != nil {
		return fmt.Errorf("launch %s: %w", cfg.Kind, err)
	}

	defer func() {
		cerr := sess.Close()
		logger.Info("close browser", "engine", cfg.Kind)
		if cerr != nil && !errors.Is(cerr, ErrSessionClosed) {
			logger.Warn("close browser failed", "engine", cfg.Kind, "error", cerr)
			if err == nil {
				err = fmt.Errorf("close %s: %w", cfg.Kind, cerr)
			}
		}
	}()

	return fn(ctx, sess)
}
