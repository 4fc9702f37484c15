package ecs

import (
	"github.com/phanxgames/tasktree"

	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/features/events"
)

// MessageEvent is the Donburi payload for a delivered tasktree message.
type MessageEvent struct {
	// Receiver is the tag of the bridge task that received the message.
	Receiver string
	Frame    uint64
	Message  tasktree.Message
}

// MessageEventType is the Donburi event type for bridged messages.
var MessageEventType = events.NewEventType[MessageEvent]()

// MessageBridge publishes received messages to World. With Process set, the
// bridge also flushes queued events on every execute, so subscribers see a
// message in the same pump it was delivered.
type MessageBridge struct {
	tasktree.NopBehavior

	World   donburi.World
	Process bool
}

// NewMessageBridge creates a bridge that only publishes. Call
// MessageEventType.ProcessEvents(world) from your own systems.
func NewMessageBridge(world donburi.World) *MessageBridge {
	return &MessageBridge{World: world}
}

func (b *MessageBridge) OnReceive(t tasktree.Task, msg tasktree.Message) {
	MessageEventType.Publish(b.World, MessageEvent{
		Receiver: t.Tag(),
		Frame:    t.Scheduler().Frame(),
		Message:  msg,
	})
}

func (b *MessageBridge) OnExecute(tasktree.Task, float64) {
	if b.Process {
		MessageEventType.ProcessEvents(b.World)
	}
}

// OnRelease flushes pending events so nothing published by this bridge is
// left queued after it is gone.
func (b *MessageBridge) OnRelease(tasktree.Task) bool {
	MessageEventType.ProcessEvents(b.World)
	return true
}
