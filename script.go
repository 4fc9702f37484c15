package tasktree

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNoSteps is returned by LoadScript for a script without steps.
	ErrNoSteps = errors.New("script has no steps")
	// ErrUnknownTask is returned by LoadScript when a step names a task or
	// scene the script does not declare.
	ErrUnknownTask = errors.New("unknown task")
)

// scriptTask declares a task the script can spawn. The task's initialize
// and release hooks complete after InitFrames and ReleaseFrames calls.
type scriptTask struct {
	Name          string `yaml:"name"`
	Priority      int32  `yaml:"priority"`
	Parent        string `yaml:"parent,omitempty"`
	InitFrames    int    `yaml:"init_frames,omitempty"`
	ReleaseFrames int    `yaml:"release_frames,omitempty"`
}

type scriptScene struct {
	Name          string  `yaml:"name"`
	ID            SceneID `yaml:"id"`
	Priority      int32   `yaml:"priority"`
	InitFrames    int     `yaml:"init_frames,omitempty"`
	ReleaseFrames int     `yaml:"release_frames,omitempty"`
}

// scriptStep is one action. Target names a declared task or scene.
type scriptStep struct {
	Action   string `yaml:"action"`
	Target   string `yaml:"target,omitempty"`
	Msg      uint32 `yaml:"msg,omitempty"`
	Arg      string `yaml:"arg,omitempty"`
	Children bool   `yaml:"children,omitempty"`
	Frames   int    `yaml:"frames,omitempty"`
}

// Script is a parsed scheduler script. See LoadScript.
type Script struct {
	Priority        int32         `yaml:"priority"`
	ManagerPriority int32         `yaml:"manager_priority"`
	Tasks           []scriptTask  `yaml:"tasks"`
	Scenes          []scriptScene `yaml:"scenes"`
	Steps           []scriptStep  `yaml:"steps"`
}

var scriptActions = map[string]bool{
	"spawn": true, "push": true, "pop": true,
	"send": true, "post": true, "broadcast": true, "post_broadcast": true,
	"release": true, "restart": true, "kill": true, "pause": true, "resume": true,
	"wait": true, "print": true, "print_scenes": true,
}

// LoadScript parses a YAML script:
//
//	tasks:
//	  - {name: hud, priority: 10, init_frames: 2}
//	scenes:
//	  - {name: title, id: 1}
//	steps:
//	  - {action: spawn, target: hud}
//	  - {action: push, target: title}
//	  - {action: wait, frames: 3}
//	  - {action: post, target: hud, msg: 7, arg: hello}
//	  - {action: print}
//
// Every step reference is checked against the declarations.
func LoadScript(data []byte) (*Script, error) {
	var sc Script
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("parse script: %w", ErrNoSteps)
	}

	tasks := make(map[string]bool, len(sc.Tasks))
	scenes := make(map[string]bool, len(sc.Scenes))
	for _, t := range sc.Tasks {
		if t.Name == "" {
			return nil, fmt.Errorf("parse script: task without a name")
		}
		tasks[t.Name] = true
	}
	for _, s := range sc.Scenes {
		if s.ID == 0 {
			return nil, fmt.Errorf("parse script: scene %q has id 0", s.Name)
		}
		scenes[s.Name] = true
	}
	for _, t := range sc.Tasks {
		if t.Parent != "" && !tasks[t.Parent] && !scenes[t.Parent] {
			return nil, fmt.Errorf("parse script: parent of %q: %w %q", t.Name, ErrUnknownTask, t.Parent)
		}
	}

	for i, st := range sc.Steps {
		if !scriptActions[st.Action] {
			return nil, fmt.Errorf("parse script: step %d: unknown action %q", i, st.Action)
		}
		switch st.Action {
		case "spawn":
			if !tasks[st.Target] {
				return nil, fmt.Errorf("parse script: step %d: %w %q", i, ErrUnknownTask, st.Target)
			}
		case "push":
			if !scenes[st.Target] {
				return nil, fmt.Errorf("parse script: step %d: %w scene %q", i, ErrUnknownTask, st.Target)
			}
		case "send", "post", "release", "restart", "kill", "pause", "resume":
			if !tasks[st.Target] && !scenes[st.Target] {
				return nil, fmt.Errorf("parse script: step %d: %w %q", i, ErrUnknownTask, st.Target)
			}
		case "broadcast", "post_broadcast":
			if st.Target != "" && !tasks[st.Target] && !scenes[st.Target] {
				return nil, fmt.Errorf("parse script: step %d: %w %q", i, ErrUnknownTask, st.Target)
			}
		}
	}
	return &sc, nil
}

// ScriptRunner plays a Script against a scheduler. The runner is itself a
// task: it executes one step per pump, so every step's effects follow the
// normal pump ordering. Scripted tasks and scenes trace their lifecycle and
// received messages to the output writer.
type ScriptRunner struct {
	NopBehavior

	script  *Script
	sched   *Scheduler
	out     io.Writer
	task    Task
	manager *SceneManager

	tasks  map[string]Task
	scenes map[string]*Scene

	cursor    int
	waitCount int
	done      bool
}

// NewScriptRunner spawns a runner for sc on s. Output goes to out.
func NewScriptRunner(s *Scheduler, sc *Script, out io.Writer) *ScriptRunner {
	r := &ScriptRunner{
		script: sc,
		sched:  s,
		out:    out,
		tasks:  make(map[string]Task, len(sc.Tasks)),
		scenes: make(map[string]*Scene, len(sc.Scenes)),
	}
	for _, d := range sc.Scenes {
		r.scenes[d.Name] = NewScene(d.ID, d.Name, d.Priority, &scriptedBehavior{
			name: d.Name, initFrames: d.InitFrames, releaseFrames: d.ReleaseFrames, out: out,
		})
	}
	if len(sc.Scenes) > 0 {
		r.manager = NewSceneManager(s, sc.ManagerPriority, Task{})
	}
	r.task = s.Spawn("script", sc.Priority, r, Task{})
	return r
}

// Task returns the runner's task.
func (r *ScriptRunner) Task() Task { return r.task }

// Manager returns the scene manager, or nil when the script declares no
// scenes.
func (r *ScriptRunner) Manager() *SceneManager { return r.manager }

// Lookup returns the task spawned for a declared task or scene name.
func (r *ScriptRunner) Lookup(name string) (Task, bool) {
	if t, ok := r.tasks[name]; ok {
		return t, true
	}
	if sc, ok := r.scenes[name]; ok && !sc.Task().IsZero() {
		return sc.Task(), true
	}
	return Task{}, false
}

// Done reports whether every step has been executed.
func (r *ScriptRunner) Done() bool {
	return r.done
}

// OnExecute runs the next step.
func (r *ScriptRunner) OnExecute(t Task, _ float64) {
	if r.done {
		return
	}
	if r.waitCount > 0 {
		r.waitCount--
		return
	}
	if r.cursor >= len(r.script.Steps) {
		r.done = true
		return
	}

	st := r.script.Steps[r.cursor]
	r.cursor++
	r.run(st)

	if r.cursor >= len(r.script.Steps) && r.waitCount == 0 {
		r.done = true
	}
}

func (r *ScriptRunner) run(st scriptStep) {
	msg := NewMessage(st.Msg, st.Arg)
	switch st.Action {
	case "spawn":
		r.spawn(st.Target)
	case "push":
		r.manager.Push(r.scenes[st.Target])
	case "pop":
		if r.manager != nil {
			r.manager.Pop()
		}
	case "send":
		if t, ok := r.Lookup(st.Target); ok {
			r.sched.Send(msg, t)
		}
	case "post":
		if t, ok := r.Lookup(st.Target); ok {
			r.sched.Post(msg, t)
		}
	case "broadcast", "post_broadcast":
		var top Task
		if st.Target != "" {
			var ok bool
			if top, ok = r.Lookup(st.Target); !ok {
				return
			}
		}
		if st.Action == "broadcast" {
			r.sched.SendBroadcast(msg, top)
		} else {
			r.sched.PostBroadcast(msg, top)
		}
	case "release":
		r.with(st.Target, func(t Task) { t.Release(st.Children) })
	case "restart":
		r.with(st.Target, func(t Task) { t.Restart(st.Children) })
	case "kill":
		r.with(st.Target, func(t Task) { t.Kill(st.Children) })
	case "pause":
		r.with(st.Target, func(t Task) { t.Pause(true, st.Children) })
	case "resume":
		r.with(st.Target, func(t Task) { t.Resume(st.Children) })
	case "wait":
		if st.Frames > 0 {
			r.waitCount = st.Frames - 1 // this frame counts as one
		}
	case "print":
		r.sched.Print(r.out)
	case "print_scenes":
		if r.manager != nil {
			r.manager.Print(r.out)
		}
	}
}

func (r *ScriptRunner) with(name string, fn func(Task)) {
	if t, ok := r.Lookup(name); ok {
		fn(t)
	}
}

// spawn creates a declared task. Spawning a name again replaces the
// handle; the earlier task keeps running.
func (r *ScriptRunner) spawn(name string) {
	for _, d := range r.script.Tasks {
		if d.Name != name {
			continue
		}
		var parent Task
		if d.Parent != "" {
			p, ok := r.Lookup(d.Parent)
			if !ok {
				_, _ = fmt.Fprintf(r.out, "[%d] %s: parent %q not spawned\n", r.sched.Frame(), name, d.Parent)
				return
			}
			parent = p
		}
		r.tasks[name] = r.sched.Spawn(name, d.Priority, &scriptedBehavior{
			name: name, initFrames: d.InitFrames, releaseFrames: d.ReleaseFrames, out: r.out,
		}, parent)
		return
	}
}

// scriptedBehavior traces its lifecycle. Initialize and release complete
// after the configured number of calls.
type scriptedBehavior struct {
	name          string
	initFrames    int
	releaseFrames int
	inits         int
	releases      int
	out           io.Writer
}

func (b *scriptedBehavior) tracef(t Task, format string, args ...any) {
	_, _ = fmt.Fprintf(b.out, "[%d] %s: ", t.Scheduler().Frame(), b.name)
	_, _ = fmt.Fprintf(b.out, format+"\n", args...)
}

func (b *scriptedBehavior) OnInitialize(t Task) bool {
	b.inits++
	if b.inits < b.initFrames {
		return false
	}
	b.inits = 0
	b.tracef(t, "initialized")
	return true
}

func (b *scriptedBehavior) OnRelease(t Task) bool {
	b.releases++
	if b.releases < b.releaseFrames {
		return false
	}
	b.releases = 0
	b.tracef(t, "released")
	return true
}

func (b *scriptedBehavior) OnExecute(Task, float64) {}

func (b *scriptedBehavior) OnReceive(t Task, msg Message) {
	b.tracef(t, "received %d %v", msg.ID, msg.Arg)
}

func (b *scriptedBehavior) OnEnterScene(sc *Scene, prev SceneID, resume bool) {
	_, _ = fmt.Fprintf(b.out, "[%d] %s: enter prev=%d resume=%t\n", sc.Task().Scheduler().Frame(), b.name, prev, resume)
}

func (b *scriptedBehavior) OnLeaveScene(sc *Scene, next SceneID) {
	_, _ = fmt.Fprintf(b.out, "[%d] %s: leave next=%d\n", sc.Task().Scheduler().Frame(), b.name, next)
}
