// Package ecs bridges tasktree messages into a [Donburi] world.
//
// [MessageBridge] is a task behavior that republishes every message it
// receives as a typed Donburi event. Spawn it anywhere in the tree and send
// or broadcast to it; subscribe to [MessageEventType] in your ECS systems.
//
// Usage:
//
//	bridge := &ecs.MessageBridge{World: world, Process: true}
//	sched.Spawn("ecs", 0, bridge, tasktree.Task{})
//
// [Donburi]: https://github.com/yohamta/donburi
package ecs
