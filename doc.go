// Package tasktree is a cooperative, single-threaded task scheduler for
// games and other frame-driven programs, built around a priority-ordered
// task tree and a scene stack. It runs on [Ebitengine] when a window is
// wanted and headless otherwise.
//
// # Quick start
//
// The simplest way to get started is [Run], which creates a window and
// pumps the scheduler once per tick:
//
//	s := tasktree.NewScheduler(tasktree.Config{})
//	s.Spawn("player", 10, &Player{}, tasktree.Task{})
//	tasktree.Run(s, tasktree.RunConfig{
//		Title: "My Game", Width: 640, Height: 480,
//	})
//
// Without a window, call [Scheduler.Pump] yourself:
//
//	for !s.Empty() {
//		s.Pump(1)
//	}
//
// # Tasks
//
// A task is a [Behavior] plus a lifecycle [Phase]. Every pump steps every
// linked task in pre-order: a parent first, then its children in ascending
// priority. Tasks with equal priority run in the order they were linked.
//
// A new task starts in [PhaseInitialize] and calls OnInitialize each pump
// until it returns true. It then calls OnExecute every pump until
// [Task.Release] moves it to [PhaseRelease], where OnRelease is retried the
// same way. A released task is killed and unlinked at the end of the pump.
// [Task.Restart] runs the release hook and then the initialize hook again;
// [Task.Kill] skips OnRelease entirely.
//
// Pausing a task only stops OnExecute. [Scheduler.PauseGlobal] stops the
// whole pump.
//
// # Structural changes during a pump
//
// Tasks must not be linked while the tree is being walked. Use
// [Scheduler.Spawn] or [Scheduler.Reserve] from hooks: reserved tasks are
// linked at the end of the pump and run from the next one. Killed tasks are
// unlinked after every hook has returned, and their children take their
// place under the former parent.
//
// # Messages
//
// [Scheduler.Send] calls a task's OnReceive immediately. [Scheduler.Post]
// queues the message; queued broadcasts and then queued messages are
// delivered at the start of the next pump, before any task executes.
// Broadcasts reach a task and its whole subtree.
//
// # Scenes
//
// A [SceneManager] keeps a stack of [Scene] values as children of its own
// task. Pushing a scene pauses the current one with its subtree; popping
// releases the top and resumes the one beneath. Scene behaviors may
// implement [SceneEnterer] and [SceneLeaver] to observe the transitions.
//
// # Extras
//
// [TweenBehavior] animates float64 fields with [gween]. [LoadScript] and
// [ScriptRunner] drive a scheduler from a YAML script, which is how
// cmd/taskrun exercises it from the command line. The ecs subpackage
// forwards task messages into a [Donburi] world.
//
// [Ebitengine]: https://ebitengine.org
// [gween]: https://github.com/tanema/gween
// [Donburi]: https://github.com/yohamta/donburi
package tasktree
