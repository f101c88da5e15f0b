package jobs

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper deletes run directories that failed runs left behind once they
// are older than maxAge.
type Sweeper struct {
	dir    string
	maxAge time.Duration
	cron   *cron.Cron
	log    *slog.Logger
	now    func() time.Time
}

func NewSweeper(dir string, maxAge time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		dir:    dir,
		maxAge: maxAge,
		cron:   cron.New(),
		log:    logger.With("component", "sweeper"),
		now:    time.Now,
	}
}

func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.Sweep() }); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.cron.Start()
	s.log.Info("temp sweep scheduled", "schedule", schedule, "max_age", s.maxAge)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep removes expired run directories and returns how many it removed.
func (s *Sweeper) Sweep() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("could not list temp dir", "dir", s.dir, "error", err)
		}
		return 0
	}

	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			s.log.Warn("could not remove run dir", "dir", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info("swept retained run dirs", "removed", removed)
	}
	return removed
}
