package tasktree

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/petermattis/goid"
	"go.uber.org/zap"
)

// Scheduler is a cooperative task tree driven by Pump. It is not safe for
// concurrent use: exactly one goroutine may call into it, and Pump must not
// be called from inside a hook.
//
// Structural changes requested while tasks run (Spawn, Reserve, scene
// pushes) are applied at the end of the pump and become visible to the next
// one. Killed tasks are unlinked after every hook of the pump has returned.
type Scheduler struct {
	cfg  Config
	log  *zap.Logger
	tree *Tree[taskState]

	messages       []Message
	messageSpare   []Message
	broadcasts     []Message
	broadcastSpare []Message

	paused  bool
	pumping bool
	frame   uint64
	owner   int64
}

// NewScheduler creates an empty scheduler.
func NewScheduler(cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		cfg:            cfg,
		log:            cfg.Logger,
		tree:           NewTree(lessTask),
		messages:       make([]Message, 0, cfg.QueueCap),
		messageSpare:   make([]Message, 0, cfg.QueueCap),
		broadcasts:     make([]Message, 0, cfg.QueueCap),
		broadcastSpare: make([]Message, 0, cfg.QueueCap),
	}
	s.tree.SetReserveCap(cfg.ReserveCap)
	s.tree.OnInsert = s.onInsert
	s.tree.OnRemove = s.onRemove
	return s
}

// Logger returns the scheduler's logger.
func (s *Scheduler) Logger() *zap.Logger {
	return s.log
}

// --- Task creation ---

// NewTask allocates a task in the initialize phase. It does not run until it
// is linked with Insert or Reserve. A nil b behaves like NopBehavior.
func (s *Scheduler) NewTask(tag string, priority int32, b Behavior) Task {
	if b == nil {
		b = NopBehavior{}
	}
	id := s.tree.Alloc(taskState{
		tag:      truncateTag(tag),
		priority: priority,
		phase:    PhaseInitialize,
		behavior: b,
	})
	return Task{s: s, id: id}
}

// Insert links t under parent immediately. A zero parent means the top
// level. Insert panics when called from inside a pump, including message
// hooks; use Reserve there.
func (s *Scheduler) Insert(t, parent Task) {
	s.checkOwn(t, "Insert")
	s.mustNotPump("Insert")
	s.tree.Insert(t.id, s.parentID(parent))
}

// Reserve links t under parent at the end of the current (or next) pump.
func (s *Scheduler) Reserve(t, parent Task) {
	s.checkOwn(t, "Reserve")
	s.tree.Reserve(t.id, s.parentID(parent))
}

// Spawn is NewTask followed by Reserve.
func (s *Scheduler) Spawn(tag string, priority int32, b Behavior, parent Task) Task {
	t := s.NewTask(tag, priority, b)
	s.Reserve(t, parent)
	return t
}

// FlushReserved links every reserved task now. Pump does this itself and
// FlushReserved panics when called from inside one.
func (s *Scheduler) FlushReserved() int {
	s.mustNotPump("FlushReserved")
	return s.tree.FlushReserved()
}

// Discard frees a task that was created but never linked.
func (s *Scheduler) Discard(t Task) {
	s.checkOwn(t, "Discard")
	s.tree.Free(t.id)
}

func (s *Scheduler) parentID(parent Task) NodeID {
	if parent.IsZero() {
		return s.tree.Root()
	}
	if parent.s != s {
		panic("tasktree: parent belongs to another scheduler")
	}
	return parent.id
}

func (s *Scheduler) mustNotPump(op string) {
	if s.pumping {
		panic("tasktree: " + op + " during a pump; use Reserve")
	}
}

func (s *Scheduler) checkOwn(t Task, op string) {
	if t.s != s {
		panic("tasktree: " + op + " of a task owned by another scheduler")
	}
}

// --- Queries ---

// Len returns the number of linked tasks.
func (s *Scheduler) Len() int { return s.tree.Len() }

// Empty reports whether no task is linked.
func (s *Scheduler) Empty() bool { return s.tree.Empty() }

// Exists reports whether t is linked into this scheduler.
func (s *Scheduler) Exists(t Task) bool {
	return t.s == s && s.tree.Exists(t.id)
}

// Reserved returns the number of tasks waiting to be linked.
func (s *Scheduler) Reserved() int { return s.tree.Reserved() }

// Frame returns the number of completed pumps.
func (s *Scheduler) Frame() uint64 { return s.frame }

// Tasks returns the top-level tasks in priority order.
func (s *Scheduler) Tasks() []Task {
	var out []Task
	for id := range s.tree.Children(s.tree.Root()) {
		out = append(out, Task{s: s, id: id})
	}
	return out
}

// Walk visits every linked task below top (inclusive) in pre-order. A zero
// top visits the whole scheduler.
func (s *Scheduler) Walk(top Task, fn func(t Task, depth int)) {
	root := s.tree.Root()
	start := s.topOf(top)
	offset := 0
	if start == root {
		offset = 1
	}
	s.tree.WalkDepth(start, func(id NodeID, depth int) {
		if id != root {
			fn(Task{s: s, id: id}, depth-offset)
		}
	})
}

// --- Pause ---

// PauseGlobal stops Pump entirely: no delivery, no stepping, no maintenance.
func (s *Scheduler) PauseGlobal(paused bool) { s.paused = paused }

// IsPauseGlobal reports the global pause flag.
func (s *Scheduler) IsPauseGlobal() bool { return s.paused }

// PauseAll sets the pause flag on every linked task.
func (s *Scheduler) PauseAll(paused, includeChildren bool) {
	s.Walk(Task{}, func(t Task, _ int) {
		t.Pause(paused, includeChildren)
	})
}

// --- Pump ---

// Pump advances the scheduler by one tick. delta is passed through to
// OnExecute untouched. The order is fixed:
//
//  1. deliver queued broadcast messages, then queued targeted messages
//  2. step every task in pre-order
//  3. link reserved tasks
//  4. unlink killed tasks, splicing their children into their place
//
// Pump does nothing while the scheduler is globally paused.
func (s *Scheduler) Pump(delta float64) {
	if s.paused {
		return
	}
	s.enterPump()
	defer func() { s.pumping = false }()

	var stats pumpStats
	var t0 time.Time
	if s.cfg.Debug {
		t0 = time.Now()
	}

	stats.delivered = s.deliver()
	if s.cfg.Debug {
		stats.deliverTime = time.Since(t0)
		t0 = time.Now()
	}

	root := s.tree.Root()
	s.tree.Walk(root, func(id NodeID) {
		if id != root {
			s.step(id, delta)
			stats.stepped++
		}
	})
	if s.cfg.Debug {
		stats.stepTime = time.Since(t0)
		t0 = time.Now()
	}

	stats.inserted = s.tree.FlushReserved()
	stats.reaped = s.tree.RemoveIf(s.killed)
	if s.cfg.Debug {
		stats.maintainTime = time.Since(t0)
		s.debugLog(stats)
	}
	s.frame++
}

func (s *Scheduler) enterPump() {
	if s.pumping {
		panic("tasktree: Pump called re-entrantly from a hook")
	}
	if s.cfg.Debug {
		gid := goid.Get()
		if s.owner == 0 {
			s.owner = gid
		} else if s.owner != gid {
			panic(fmt.Sprintf("tasktree: Pump called from goroutine %d, scheduler is driven by goroutine %d", gid, s.owner))
		}
	}
	s.pumping = true
}

// step runs one state-machine step for a task. Hooks may change the task's
// own phase; a transition is only applied if the phase is still the one the
// hook ran for, so a task that kills or releases itself from OnInitialize
// stays that way.
func (s *Scheduler) step(id NodeID, delta float64) {
	st := s.tree.Value(id)
	if st == nil {
		return
	}
	t := Task{s: s, id: id}
	b := st.behavior

	switch st.phase {
	case PhaseKilled:
		return
	case PhaseExecute:
		if !st.paused {
			b.OnExecute(t, delta)
		}
	case PhaseRestart:
		if !b.OnRelease(t) || !s.advance(id, PhaseRestart, PhaseInitialize) {
			return
		}
		// A restarting task initializes in the same pump.
		fallthrough
	case PhaseInitialize:
		if b.OnInitialize(t) {
			s.advance(id, PhaseInitialize, PhaseExecute)
		}
	case PhaseRelease:
		if b.OnRelease(t) && s.advance(id, PhaseRelease, PhaseKilled) {
			s.tree.Value(id).paused = false
		}
	}
}

func (s *Scheduler) advance(id NodeID, from, to Phase) bool {
	st := s.tree.Value(id)
	if st == nil || st.phase != from {
		return false
	}
	st.phase = to
	return true
}

func (s *Scheduler) killed(id NodeID) bool {
	st := s.tree.Value(id)
	return st != nil && st.phase == PhaseKilled
}

func (s *Scheduler) onInsert(id NodeID) {
	if ce := s.log.Check(zap.DebugLevel, "task linked"); ce != nil {
		st := s.tree.Value(id)
		ce.Write(zap.String("tag", st.tag), zap.Int32("priority", st.priority), zap.Int("depth", s.tree.Depth(id)))
	}
	if s.cfg.Debug {
		s.debugCheckTreeDepth(id)
		s.debugCheckChildCount(s.tree.Parent(id))
	}
}

// onRemove frees reaped tasks. Tasks unlinked for any other reason keep
// their slot.
func (s *Scheduler) onRemove(id NodeID) {
	st := s.tree.Value(id)
	if st == nil || st.phase != PhaseKilled {
		return
	}
	s.log.Debug("task reaped", zap.String("tag", st.tag), zap.Uint64("frame", s.frame))
	s.tree.Free(id)
}

// --- Diagnostics ---

// Print writes the pause flag, the task count and one line per task,
// indented by depth.
func (s *Scheduler) Print(w io.Writer) {
	_, _ = fmt.Fprintf(w, "tasktree pause:%t size:%d\n", s.paused, s.Len())
	s.Walk(Task{}, func(t Task, depth int) {
		st := t.state()
		status := st.phase.String()
		if st.paused {
			status += "|pause"
		}
		_, _ = fmt.Fprintf(w, "%*s[%15s]:%-16s,%-5d\n", depth*4, "", st.tag, status, st.priority)
	})
}

// String returns the output of Print.
func (s *Scheduler) String() string {
	var sb strings.Builder
	s.Print(&sb)
	return sb.String()
}
