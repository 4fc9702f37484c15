package tasktree

import "go.uber.org/zap"

// Message is delivered to a task's OnReceive hook. ID is an application
// opcode and Arg an opaque payload.
type Message struct {
	ID  uint32
	Arg any

	// target is only set on queued messages.
	target NodeID
}

// NewMessage returns a Message with the given opcode and payload.
func NewMessage(id uint32, arg any) Message {
	return Message{ID: id, Arg: arg}
}

// Send calls target's OnReceive and returns once it has finished.
// Panics if target is the zero Task.
func (s *Scheduler) Send(msg Message, target Task) {
	s.checkTarget(target, "Send")
	if !target.Valid() {
		s.log.Warn("send to reaped task dropped", zap.Uint32("msg", msg.ID))
		return
	}
	s.receive(target.id, msg)
}

// Post queues msg for target. Queued messages are delivered at the start of
// the next Pump, before any task executes. Panics if target is the zero Task.
func (s *Scheduler) Post(msg Message, target Task) {
	s.checkTarget(target, "Post")
	msg.target = target.id
	s.messages = append(s.messages, msg)
}

// SendBroadcast delivers msg to top and every task below it, in pre-order,
// before returning. A zero top means every task in the scheduler.
func (s *Scheduler) SendBroadcast(msg Message, top Task) {
	s.broadcast(msg, s.topOf(top))
}

// PostBroadcast queues msg for top and its subtree until the next Pump.
// A zero top means every task in the scheduler.
func (s *Scheduler) PostBroadcast(msg Message, top Task) {
	msg.target = s.topOf(top)
	s.broadcasts = append(s.broadcasts, msg)
}

// Undelivered returns the number of queued targeted messages.
func (s *Scheduler) Undelivered() int {
	return len(s.messages)
}

// UndeliveredBroadcast returns the number of queued broadcast messages.
func (s *Scheduler) UndeliveredBroadcast() int {
	return len(s.broadcasts)
}

// deliver drains both queues: broadcasts first, then targeted messages, each
// in the order they were posted. Messages posted by OnReceive hooks during
// delivery are kept for the next pump.
func (s *Scheduler) deliver() int {
	n := 0

	broadcasts := s.broadcasts
	s.broadcasts = s.broadcastSpare[:0]
	for _, msg := range broadcasts {
		s.broadcast(msg, msg.target)
		n++
	}
	clear(broadcasts)
	s.broadcastSpare = broadcasts[:0]

	messages := s.messages
	s.messages = s.messageSpare[:0]
	for _, msg := range messages {
		if !s.tree.Valid(msg.target) {
			s.log.Warn("queued message for reaped task dropped",
				zap.Uint32("msg", msg.ID), zap.Uint64("frame", s.frame))
			continue
		}
		s.receive(msg.target, msg)
		n++
	}
	clear(messages)
	s.messageSpare = messages[:0]
	return n
}

func (s *Scheduler) broadcast(msg Message, top NodeID) {
	if top != s.tree.Root() && !s.tree.Exists(top) {
		if s.tree.Valid(top) {
			s.receive(top, msg)
			return
		}
		s.log.Warn("broadcast to reaped task dropped", zap.Uint32("msg", msg.ID))
		return
	}
	root := s.tree.Root()
	s.tree.Walk(top, func(id NodeID) {
		if id != root {
			s.receive(id, msg)
		}
	})
}

func (s *Scheduler) receive(id NodeID, msg Message) {
	st := s.tree.Value(id)
	if st == nil {
		return
	}
	msg.target = NodeID{}
	st.behavior.OnReceive(Task{s: s, id: id}, msg)
}

func (s *Scheduler) topOf(top Task) NodeID {
	if top.IsZero() {
		return s.tree.Root()
	}
	if top.s != s {
		panic("tasktree: broadcast root belongs to another scheduler")
	}
	return top.id
}

func (s *Scheduler) checkTarget(target Task, op string) {
	if target.IsZero() {
		panic("tasktree: " + op + " to a zero task")
	}
	if target.s != s {
		panic("tasktree: " + op + " to a task of another scheduler")
	}
}
