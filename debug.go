package tasktree

import (
	"time"

	"go.uber.org/zap"
)

// pumpStats holds per-pump timing and counts.
// Only populated when Config.Debug is true.
type pumpStats struct {
	deliverTime  time.Duration
	stepTime     time.Duration
	maintainTime time.Duration
	delivered    int
	stepped      int
	inserted     int
	reaped       int
}

// debugLog writes one pump's stats at debug level.
func (s *Scheduler) debugLog(stats pumpStats) {
	if !s.cfg.Debug {
		return
	}
	total := stats.deliverTime + stats.stepTime + stats.maintainTime
	s.log.Debug("pump",
		zap.Uint64("frame", s.frame),
		zap.Duration("deliver", stats.deliverTime),
		zap.Duration("step", stats.stepTime),
		zap.Duration("maintain", stats.maintainTime),
		zap.Duration("total", total),
		zap.Int("delivered", stats.delivered),
		zap.Int("stepped", stats.stepped),
		zap.Int("inserted", stats.inserted),
		zap.Int("reaped", stats.reaped),
	)
}

// debugCheckTreeDepth warns if a task sits deeper than Config.MaxDepthWarn.
func (s *Scheduler) debugCheckTreeDepth(id NodeID) {
	if depth := s.tree.Depth(id); depth > s.cfg.MaxDepthWarn {
		s.log.Warn("task tree depth exceeds threshold",
			zap.String("tag", s.tree.Value(id).tag),
			zap.Int("depth", depth),
			zap.Int("threshold", s.cfg.MaxDepthWarn))
	}
}

// debugCheckChildCount warns if a task has more than Config.MaxChildWarn
// children.
func (s *Scheduler) debugCheckChildCount(parent NodeID) {
	if parent.IsZero() {
		return
	}
	if n := s.tree.NumChildren(parent); n > s.cfg.MaxChildWarn {
		tag := "root"
		if parent != s.tree.Root() {
			tag = s.tree.Value(parent).tag
		}
		s.log.Warn("task has too many children",
			zap.String("tag", tag),
			zap.Int("children", n),
			zap.Int("threshold", s.cfg.MaxChildWarn))
	}
}
