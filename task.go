package tasktree

// Phase is the mutually exclusive lifecycle state of a task.
type Phase uint8

const (
	PhaseInitialize Phase = iota // OnInitialize is retried every pump until it returns true
	PhaseExecute                 // OnExecute runs every pump unless paused
	PhaseRelease                 // OnRelease is retried every pump until it returns true
	PhaseRestart                 // release, then initialize again
	PhaseKilled                  // terminal; unlinked at the end of the pump
)

var phaseNames = [...]string{"initialize", "execute", "release", "restart", "killed"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// DefaultPriority is the priority used when a task is created without one.
const DefaultPriority int32 = 128

// maxTagLen bounds task tags; they are for diagnostics only.
const maxTagLen = 15

// Behavior supplies the hooks a task runs from Pump. OnInitialize and
// OnRelease return false to be called again on the next pump, which is how
// setup and teardown are spread over several frames.
type Behavior interface {
	OnInitialize(t Task) bool
	OnRelease(t Task) bool
	OnExecute(t Task, delta float64)
	OnReceive(t Task, msg Message)
}

// NopBehavior completes initialization and release immediately and ignores
// execution and messages. Embed it to override only the hooks you need.
type NopBehavior struct{}

func (NopBehavior) OnInitialize(Task) bool { return true }
func (NopBehavior) OnRelease(Task) bool { return true }
func (NopBehavior) OnExecute(Task, float64) {}
func (NopBehavior) OnReceive(Task, Message) {}

// BehaviorFuncs implements Behavior with optional function fields. A nil
// field behaves like NopBehavior.
type BehaviorFuncs struct {
	Initialize func(t Task) bool
	Release    func(t Task) bool
	Execute    func(t Task, delta float64)
	Receive    func(t Task, msg Message)
}

func (f *BehaviorFuncs) OnInitialize(t Task) bool {
	if f.Initialize == nil {
		return true
	}
	return f.Initialize(t)
}

func (f *BehaviorFuncs) OnRelease(t Task) bool {
	if f.Release == nil {
		return true
	}
	return f.Release(t)
}

func (f *BehaviorFuncs) OnExecute(t Task, delta float64) {
	if f.Execute != nil {
		f.Execute(t, delta)
	}
}

func (f *BehaviorFuncs) OnReceive(t Task, msg Message) {
	if f.Receive != nil {
		f.Receive(t, msg)
	}
}

// taskState is the tree payload for a task.
type taskState struct {
	tag      string
	priority int32
	phase    Phase
	paused   bool
	behavior Behavior
}

func lessTask(a, b *taskState) bool {
	return a.priority < b.priority
}

func truncateTag(tag string) string {
	if len(tag) > maxTagLen {
		return tag[:maxTagLen]
	}
	return tag
}

// Task is a handle to a task owned by a Scheduler. Handles are small values
// and may be copied freely. Once the task has been reaped the handle is
// stale: queries report PhaseKilled and operations do nothing.
type Task struct {
	s  *Scheduler
	id NodeID
}

// ID returns the task's node ID.
func (t Task) ID() NodeID { return t.id }

// Scheduler returns the owning scheduler, or nil for the zero Task.
func (t Task) Scheduler() *Scheduler { return t.s }

// IsZero reports whether t is the zero Task.
func (t Task) IsZero() bool { return t.s == nil }

// Valid reports whether the task still exists in its scheduler's arena.
func (t Task) Valid() bool {
	return t.s != nil && t.s.tree.Valid(t.id)
}

func (t Task) state() *taskState {
	if t.s == nil {
		return nil
	}
	return t.s.tree.Value(t.id)
}

// Tag returns the diagnostic label.
func (t Task) Tag() string {
	if st := t.state(); st != nil {
		return st.tag
	}
	return ""
}

// Priority returns the sibling ordering key; lower runs first.
func (t Task) Priority() int32 {
	if st := t.state(); st != nil {
		return st.priority
	}
	return 0
}

// Behavior returns the hooks the task was created with.
func (t Task) Behavior() Behavior {
	if st := t.state(); st != nil {
		return st.behavior
	}
	return nil
}

// Phase returns the current lifecycle phase.
func (t Task) Phase() Phase {
	if st := t.state(); st != nil {
		return st.phase
	}
	return PhaseKilled
}

func (t Task) IsInitialize() bool { return t.Phase() == PhaseInitialize }
func (t Task) IsExecute() bool { return t.Phase() == PhaseExecute }
func (t Task) IsRelease() bool { return t.Phase() == PhaseRelease }
func (t Task) IsRestart() bool { return t.Phase() == PhaseRestart }
func (t Task) IsKill() bool { return t.Phase() == PhaseKilled }

// IsPause reports the pause flag.
func (t Task) IsPause() bool {
	if st := t.state(); st != nil {
		return st.paused
	}
	return false
}

// Less orders tasks by priority only.
func (t Task) Less(o Task) bool {
	return t.Priority() < o.Priority()
}

// Parent returns the task's parent, or the zero Task for top-level and
// unlinked tasks.
func (t Task) Parent() Task {
	if t.s == nil {
		return Task{}
	}
	p := t.s.tree.Parent(t.id)
	if p.IsZero() || p == t.s.tree.Root() {
		return Task{}
	}
	return Task{s: t.s, id: p}
}

// Children returns the direct children in priority order.
func (t Task) Children() []Task {
	if t.s == nil {
		return nil
	}
	var out []Task
	for c := range t.s.tree.Children(t.id) {
		out = append(out, Task{s: t.s, id: c})
	}
	return out
}

// --- Operations ---

// Initialize puts the task back into the initialize phase and clears its
// flags.
func (t Task) Initialize() {
	if st := t.state(); st != nil {
		st.phase = PhaseInitialize
		st.paused = false
	}
}

// Release starts teardown. A killed task stays killed.
func (t Task) Release(includeChildren bool) {
	t.apply(includeChildren, func(st *taskState) {
		if st.phase != PhaseKilled {
			st.phase = PhaseRelease
			st.paused = false
		}
	})
}

// Restart releases and then initializes the task again. The pause flag is
// kept; a killed task stays killed.
func (t Task) Restart(includeChildren bool) {
	t.apply(includeChildren, func(st *taskState) {
		if st.phase != PhaseKilled {
			st.phase = PhaseRestart
		}
	})
}

// Kill marks the task for removal at the end of the next pump without
// running OnRelease. Hooks already running are not interrupted.
func (t Task) Kill(includeChildren bool) {
	t.apply(includeChildren, func(st *taskState) {
		st.phase = PhaseKilled
	})
}

// Pause sets or clears the pause flag. A paused task in the execute phase
// skips OnExecute; other phases still progress.
func (t Task) Pause(paused, includeChildren bool) {
	t.apply(includeChildren, func(st *taskState) {
		st.paused = paused
	})
}

// Resume is Pause(false, includeChildren).
func (t Task) Resume(includeChildren bool) {
	t.Pause(false, includeChildren)
}

// apply runs fn on the task and, if includeChildren is set, on every task in
// its subtree. Reserved children that are not linked yet are not reached.
func (t Task) apply(includeChildren bool, fn func(*taskState)) {
	if !t.Valid() {
		return
	}
	if !includeChildren || !t.s.tree.Exists(t.id) {
		fn(t.s.tree.Value(t.id))
		return
	}
	t.s.tree.Walk(t.id, func(id NodeID) {
		fn(t.s.tree.Value(id))
	})
}

// --- Messages ---

// Send delivers msg to target immediately.
func (t Task) Send(msg Message, target Task) { t.mustScheduler("Send").Send(msg, target) }

// Post queues msg for target until the next pump.
func (t Task) Post(msg Message, target Task) { t.mustScheduler("Post").Post(msg, target) }

func (t Task) mustScheduler(op string) *Scheduler {
	if t.s == nil {
		panic("tasktree: " + op + " from the zero Task")
	}
	return t.s
}
