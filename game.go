package tasktree

import (
	"fmt"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

const (
	minDelta = 1.0
	maxDelta = 4.0
)

// Game adapts a Scheduler to ebiten.Game: every Update pumps the scheduler
// once with the elapsed time since the previous Update.
//
// For full control over the window, pass a Game to ebiten.RunGame yourself;
// otherwise use Run.
type Game struct {
	sched  *Scheduler
	cfg    RunConfig
	draw   func(screen *ebiten.Image)
	now    func() time.Time
	last   time.Time
	pumped bool
}

// NewGame creates a Game for s.
func NewGame(s *Scheduler, cfg RunConfig) *Game {
	return &Game{sched: s, cfg: cfg.withDefaults(), now: time.Now}
}

// Scheduler returns the driven scheduler.
func (g *Game) Scheduler() *Scheduler { return g.sched }

// SetDrawFunc sets the function called from Draw before the optional tree
// overlay.
func (g *Game) SetDrawFunc(fn func(screen *ebiten.Image)) {
	g.draw = fn
}

// Update pumps the scheduler once. With ExitWhenEmpty it ends the game loop
// after the scheduler has run and emptied.
func (g *Game) Update() error {
	g.sched.Pump(g.delta())
	g.pumped = true
	if g.cfg.ExitWhenEmpty && g.sched.Empty() && g.sched.Reserved() == 0 {
		return ebiten.Termination
	}
	return nil
}

// Draw calls the draw function, then the overlays enabled in RunConfig.
func (g *Game) Draw(screen *ebiten.Image) {
	if g.draw != nil {
		g.draw(screen)
	}
	if g.cfg.ShowTree {
		ebitenutil.DebugPrint(screen, g.sched.String())
	}
	if g.cfg.ShowFPS {
		msg := fmt.Sprintf("FPS: %.1f TPS: %.1f", ebiten.ActualFPS(), ebiten.ActualTPS())
		ebitenutil.DebugPrintAt(screen, msg, 4, g.cfg.Height-16)
	}
}

// Layout returns the configured logical screen size.
func (g *Game) Layout(_, _ int) (int, int) {
	return g.cfg.Width, g.cfg.Height
}

// delta returns the time since the previous Update in frames at TPS,
// clamped to [minDelta, maxDelta], converted to seconds in DeltaSeconds
// mode. The first Update gets one frame.
func (g *Game) delta() float64 {
	now := g.now()
	frames := minDelta
	if g.pumped {
		frames = now.Sub(g.last).Seconds() * float64(g.cfg.TPS)
		frames = max(minDelta, min(frames, maxDelta))
	}
	g.last = now
	if g.cfg.Delta == DeltaSeconds {
		return frames / float64(g.cfg.TPS)
	}
	return frames
}

// Run opens a window and pumps s at cfg.TPS until the window is closed or,
// with ExitWhenEmpty, the scheduler runs out of tasks.
func Run(s *Scheduler, cfg RunConfig) error {
	return RunGame(NewGame(s, cfg))
}

// RunGame opens a window for an already configured Game.
func RunGame(g *Game) error {
	ebiten.SetWindowTitle(g.cfg.Title)
	ebiten.SetWindowSize(g.cfg.Width, g.cfg.Height)
	ebiten.SetTPS(g.cfg.TPS)
	return ebiten.RunGame(g)
}
