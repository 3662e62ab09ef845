// Package cleanup provides background resource cleanup for Cabinet.
package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cabinetrun/cabinet/internal/logger"
)

// Cleaner performs periodic resource cleanup, on a cron schedule rather
// than a fixed interval, so an operator can pin the janitor to off-peak
// hours ("0 3 * * *") instead of a plain ticker.
type Cleaner struct {
	sessionsDir   string
	schedule      cron.Schedule
	retention     time.Duration
	diskWarn      float64
	diskError     float64
	isSessionLive func(sessionID string) bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Config holds cleanup configuration.
type Config struct {
	SessionsDir string // same directory agentsession.Deps.WorkspacesDir points at
	CronExpr    string // standard 5-field cron expression, e.g. "*/5 * * * *"

	SessionRetention time.Duration // how long an orphaned session directory survives
	DiskWarnPercent  float64       // warn at this disk usage percentage
	DiskErrorPercent float64       // error at this disk usage percentage

	// IsSessionLive reports whether sessionID is currently tracked by the
	// session manager. A directory for a live session is never removed
	// regardless of its age. Nil means every directory is eligible.
	IsSessionLive func(sessionID string) bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(sessionsDir string) Config {
	return Config{
		SessionsDir:      sessionsDir,
		CronExpr:         "*/5 * * * *",
		SessionRetention: 1 * time.Hour,
		DiskWarnPercent:  80.0,
		DiskErrorPercent: 90.0,
	}
}

// New creates a new Cleaner with the given configuration.
func New(cfg Config) (*Cleaner, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(cfg.CronExpr)
	if err != nil {
		return nil, err
	}

	return &Cleaner{
		sessionsDir:   cfg.SessionsDir,
		schedule:      sched,
		retention:     cfg.SessionRetention,
		diskWarn:      cfg.DiskWarnPercent,
		diskError:     cfg.DiskErrorPercent,
		isSessionLive: cfg.IsSessionLive,
	}, nil
}

// Start begins the cron-scheduled cleanup loop.
func (c *Cleaner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		for {
			next := c.schedule.Next(time.Now())
			timer := time.NewTimer(time.Until(next))

			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				c.runCleanup()
			}
		}
	}()

	logger.Printf("🧹 Cleanup scheduled (retention=%v)", c.retention)
}

// Stop halts the cleanup loop.
func (c *Cleaner) Stop() {
	if c.cancel != nil {
		c.cancel()
		c.wg.Wait()
		logger.Println("🧹 Cleanup stopped")
	}
}

// runCleanup performs all cleanup tasks.
func (c *Cleaner) runCleanup() {
	c.cleanupTmpFiles()
	c.cleanupOrphanedSessionDirs()
	c.checkDiskUsage()
}

// cleanupTmpFiles removes orphaned .tmp files older than retention.
func (c *Cleaner) cleanupTmpFiles() {
	cutoff := time.Now().Add(-c.retention)
	var removed int

	err := filepath.Walk(c.sessionsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}

		if !info.IsDir() && strings.HasSuffix(info.Name(), ".tmp") {
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(path); err == nil {
					removed++
				}
			}
		}
		return nil
	})

	if err != nil {
		logger.Printf("⚠️  Cleanup walk error: %v", err)
	}
	if removed > 0 {
		logger.Printf("🧹 Removed %d orphaned .tmp files", removed)
	}
}

// cleanupOrphanedSessionDirs removes host session directories
// (sessionsDir/<session_id>/) that are no longer tracked by the session
// manager and whose agent-storage subdirectory has not been touched
// since before retention. A directory belonging to a still-live session
// is always left alone.
func (c *Cleaner) cleanupOrphanedSessionDirs() {
	cutoff := time.Now().Add(-c.retention)
	var removed int

	entries, err := os.ReadDir(c.sessionsDir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		sessionID := entry.Name()
		if c.isSessionLive != nil && c.isSessionLive(sessionID) {
			continue
		}

		agentStorage := filepath.Join(c.sessionsDir, sessionID, "agent-storage")
		info, err := os.Stat(agentStorage)
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			if err := os.RemoveAll(filepath.Join(c.sessionsDir, sessionID)); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		logger.Printf("🧹 Removed %d orphaned session directories", removed)
	}
}

// checkDiskUsage monitors disk usage and logs warnings.
func (c *Cleaner) checkDiskUsage() {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(c.sessionsDir, &stat); err != nil {
		return
	}

	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	used := total - free
	usedPercent := float64(used) / float64(total) * 100

	if usedPercent >= c.diskError {
		logger.Printf("🔴 CRITICAL: Disk usage at %.1f%% (sessions dir)", usedPercent)
	} else if usedPercent >= c.diskWarn {
		logger.Printf("🟠 WARNING: Disk usage at %.1f%% (sessions dir)", usedPercent)
	}
}

// DiskUsage returns current disk usage stats.
func (c *Cleaner) DiskUsage() (usedBytes, totalBytes uint64, usedPercent float64, err error) {
	var stat syscall.Statfs_t
	if err = syscall.Statfs(c.sessionsDir, &stat); err != nil {
		return
	}

	totalBytes = stat.Blocks * uint64(stat.Bsize)
	freeBytes := stat.Bfree * uint64(stat.Bsize)
	usedBytes = totalBytes - freeBytes
	usedPercent = float64(usedBytes) / float64(totalBytes) * 100
	return
}
