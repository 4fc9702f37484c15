package tasktree

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

// SceneID identifies a scene. Zero is reserved and never a valid ID.
type SceneID uint32

// SceneEnterer is implemented by scene behaviors that want to know when
// their scene becomes current. prev is the previously current scene (0 if
// none); resume is true when the scene comes back after the scene above it
// was popped.
type SceneEnterer interface {
	OnEnterScene(sc *Scene, prev SceneID, resume bool)
}

// SceneLeaver is implemented by scene behaviors that want to know when their
// scene stops being current. next is the scene that becomes current, or 0.
type SceneLeaver interface {
	OnLeaveScene(sc *Scene, next SceneID)
}

// Scene is a mutually exclusive application state (title, menu, level...)
// managed by a SceneManager. Its task is created when the scene is pushed,
// so a scene that was popped and reaped can be pushed again.
type Scene struct {
	id       SceneID
	tag      string
	priority int32
	behavior Behavior
	task     Task
	manager  *SceneManager
}

// NewScene creates an unowned scene. Panics if id is zero. A nil b behaves
// like NopBehavior.
func NewScene(id SceneID, tag string, priority int32, b Behavior) *Scene {
	if id == 0 {
		panic("tasktree: scene id must not be zero")
	}
	if b == nil {
		b = NopBehavior{}
	}
	return &Scene{id: id, tag: tag, priority: priority, behavior: b}
}

// ID returns the scene identifier.
func (sc *Scene) ID() SceneID { return sc.id }

// Tag returns the scene's diagnostic label.
func (sc *Scene) Tag() string { return sc.tag }

// Task returns the scene's task. It is the zero Task before the first push.
func (sc *Scene) Task() Task { return sc.task }

// Manager returns the owning manager, or nil while the scene is not stacked.
func (sc *Scene) Manager() *SceneManager { return sc.manager }

// Behavior returns the hooks the scene was created with.
func (sc *Scene) Behavior() Behavior { return sc.behavior }

// PushScene pushes next onto this scene's manager.
func (sc *Scene) PushScene(next *Scene) {
	if sc.manager == nil {
		panic("tasktree: PushScene on a scene without a manager")
	}
	sc.manager.Push(next)
}

// PopScene pops the current scene of this scene's manager.
func (sc *Scene) PopScene() {
	if sc.manager == nil {
		panic("tasktree: PopScene on a scene without a manager")
	}
	sc.manager.Pop()
}

func (sc *Scene) enter(prev SceneID, resume bool) {
	if e, ok := sc.behavior.(SceneEnterer); ok {
		e.OnEnterScene(sc, prev, resume)
	}
}

func (sc *Scene) leave(next SceneID) {
	if l, ok := sc.behavior.(SceneLeaver); ok {
		l.OnLeaveScene(sc, next)
	}
}

// sceneBehavior is the behavior installed on a scene's task. It forwards
// every hook to the user's behavior and lets SceneOf find the scene.
type sceneBehavior struct {
	Behavior
	scene *Scene
}

// SceneOf returns the scene whose task is t, or nil.
func SceneOf(t Task) *Scene {
	if sb, ok := t.Behavior().(*sceneBehavior); ok {
		return sb.scene
	}
	return nil
}

// SceneManager keeps a stack of scenes as children of its own task. Only the
// top of the stack is current; the others are paused with their subtrees.
type SceneManager struct {
	sched *Scheduler
	task  Task
	stack []*Scene // last is current

	// OnChange is called after every push and pop with the new current
	// scene and the previous one (0 for none).
	OnChange func(to, from SceneID)
}

// NewSceneManager creates a manager and reserves its task under parent
// (zero means top level).
func NewSceneManager(s *Scheduler, priority int32, parent Task) *SceneManager {
	m := &SceneManager{
		sched: s,
		stack: make([]*Scene, 0, 16),
	}
	m.task = s.Spawn("scene manager", priority, managerBehavior{m: m}, parent)
	return m
}

// Task returns the manager's own task.
func (m *SceneManager) Task() Task { return m.task }

// Len returns the depth of the scene stack.
func (m *SceneManager) Len() int { return len(m.stack) }

// Scenes returns the stack from bottom to top. The returned slice MUST NOT
// be mutated.
func (m *SceneManager) Scenes() []*Scene { return m.stack }

// Current returns the top of the stack, or nil.
func (m *SceneManager) Current() *Scene {
	if len(m.stack) == 0 {
		return nil
	}
	return m.stack[len(m.stack)-1]
}

// Push makes sc the current scene. The previous current scene is paused
// with its children and told it is leaving. sc's task is reserved as a child
// of the manager, so it starts initializing on the next pump. Panics if sc
// is nil or already owned by a manager, or if the manager's task has been
// killed.
func (m *SceneManager) Push(sc *Scene) {
	if sc == nil {
		panic("tasktree: push of a nil scene")
	}
	if m.task.IsKill() {
		panic("tasktree: push onto a scene manager that was torn down")
	}
	if sc.manager != nil {
		panic(fmt.Sprintf("tasktree: scene %d is already owned by a manager", sc.id))
	}

	var prev SceneID
	if cur := m.Current(); cur != nil {
		prev = cur.id
		cur.task.Pause(true, true)
		cur.leave(sc.id)
	}

	sc.task = m.sched.Spawn(sc.tag, sc.priority, &sceneBehavior{Behavior: sc.behavior, scene: sc}, m.task)
	m.stack = append(m.stack, sc)
	sc.manager = m

	m.sched.log.Debug("scene pushed", zap.Uint32("scene", uint32(sc.id)), zap.Uint32("prev", uint32(prev)), zap.Int("depth", len(m.stack)))
	sc.enter(prev, false)
	m.changed(sc.id, prev)
}

// Pop releases the current scene with its children and resumes the scene
// beneath it. Does nothing on an empty stack.
func (m *SceneManager) Pop() {
	if len(m.stack) == 0 {
		return
	}
	popped := m.stack[len(m.stack)-1]
	m.stack[len(m.stack)-1] = nil
	m.stack = m.stack[:len(m.stack)-1]

	cur := m.Current()
	var next SceneID
	if cur != nil {
		next = cur.id
	}

	popped.leave(next)
	popped.task.Release(true)
	popped.manager = nil

	m.sched.log.Debug("scene popped", zap.Uint32("scene", uint32(popped.id)), zap.Uint32("next", uint32(next)), zap.Int("depth", len(m.stack)))
	if cur != nil {
		cur.task.Resume(true)
		cur.enter(popped.id, true)
	}
	m.changed(next, popped.id)
}

func (m *SceneManager) changed(to, from SceneID) {
	if m.OnChange != nil {
		m.OnChange(to, from)
	}
}

// Print writes the stack from top to bottom, marking the current scene.
func (m *SceneManager) Print(w io.Writer) {
	_, _ = fmt.Fprintf(w, "scenes:%d\n", len(m.stack))
	for i := len(m.stack) - 1; i >= 0; i-- {
		sc := m.stack[i]
		mark := ' '
		if i == len(m.stack)-1 {
			mark = 'C'
		}
		_, _ = fmt.Fprintf(w, "%c:[%16s]:%d\n", mark, sc.tag, sc.id)
	}
}

// managerBehavior drives the manager's task. Teardown releases every scene
// and completes only once all stacked scenes have been killed, which takes
// several pumps.
type managerBehavior struct {
	NopBehavior
	m *SceneManager
}

func (b managerBehavior) OnRelease(t Task) bool {
	t.Release(true)
	for _, sc := range b.m.stack {
		if !sc.task.IsKill() {
			return false
		}
	}
	return true
}
