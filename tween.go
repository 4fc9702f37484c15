package tasktree

import (
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// maxTweenFields is the number of float64 fields one TweenBehavior drives.
const maxTweenFields = 4

// TweenBehavior is a task behavior that animates up to 4 float64 fields.
// Each OnExecute advances the tweens by delta, so durations are in the same
// unit as the delta given to Pump. When every tween has finished the task
// releases itself and, if set, posts its completion message.
//
// Restarting the task rewinds the tweens to their start values.
type TweenBehavior struct {
	NopBehavior

	tweens [maxTweenFields]*gween.Tween
	fields [maxTweenFields]*float64
	count  int

	notify    Task
	notifyMsg Message

	// Done is set once all tweens have finished.
	Done bool
}

// TweenValue creates a TweenBehavior that animates *field to to over
// duration.
func TweenValue(field *float64, to float64, duration float32, fn ease.TweenFunc) *TweenBehavior {
	return TweenValues([]*float64{field}, []float64{to}, duration, fn)
}

// TweenValues creates a TweenBehavior animating each fields[i] to to[i] with
// a shared duration and easing. Panics if the slices differ in length, are
// empty, or hold more than 4 fields.
func TweenValues(fields []*float64, to []float64, duration float32, fn ease.TweenFunc) *TweenBehavior {
	if len(fields) != len(to) || len(fields) == 0 || len(fields) > maxTweenFields {
		panic("tasktree: TweenValues needs 1 to 4 fields with matching targets")
	}
	tw := &TweenBehavior{count: len(fields)}
	for i, f := range fields {
		if f == nil {
			panic("tasktree: TweenValues with a nil field")
		}
		tw.tweens[i] = gween.New(float32(*f), float32(to[i]), duration, fn)
		tw.fields[i] = f
	}
	return tw
}

// NotifyOnDone posts msg to target when the tweens finish.
func (tw *TweenBehavior) NotifyOnDone(target Task, msg Message) *TweenBehavior {
	tw.notify = target
	tw.notifyMsg = msg
	return tw
}

// OnInitialize rewinds the tweens and writes their start values.
func (tw *TweenBehavior) OnInitialize(Task) bool {
	for i := 0; i < tw.count; i++ {
		tw.tweens[i].Reset()
		val, _ := tw.tweens[i].Update(0)
		*tw.fields[i] = float64(val)
	}
	tw.Done = false
	return true
}

// OnExecute advances every tween by delta.
func (tw *TweenBehavior) OnExecute(t Task, delta float64) {
	if tw.Done {
		return
	}
	allDone := true
	for i := 0; i < tw.count; i++ {
		val, finished := tw.tweens[i].Update(float32(delta))
		*tw.fields[i] = float64(val)
		if !finished {
			allDone = false
		}
	}
	if !allDone {
		return
	}
	tw.Done = true
	t.Release(false)
	if !tw.notify.IsZero() {
		t.Post(tw.notifyMsg, tw.notify)
	}
}
