// Package carousel rotates through the preview images of one tile.
//
// The engine is an explicit two-state machine (Idle, Advancing). Every
// input that can change whether it should advance (hover, the manual pause
// window, the image list, the current slide's load error) ends in a call
// to evaluate, which is the only place the advance timer is started or
// stopped.
//
// An Engine is not safe for concurrent use. Timer callbacks are handed to
// Options.Post, which must run them on the goroutine that owns the engine.
package carousel

import (
	"fmt"
	"time"

	"printshelf/internal/api"
	"printshelf/internal/clock"
)

const (
	// AdvanceInterval is the time each slide is shown while advancing.
	AdvanceInterval = 4 * time.Second
	// PauseWindow is how long manual navigation suspends auto-advance.
	PauseWindow = 10 * time.Second
)

type State int

const (
	Idle State = iota
	Advancing
)

func (s State) String() string {
	if s == Advancing {
		return "advancing"
	}
	return "idle"
}

type Options struct {
	AutoAdvance bool
	// Label names the tile in accessibility text.
	Label string
	Clock clock.Clock
	// Post runs a timer callback on the engine's owning goroutine. Nil
	// runs it inline, which is only correct with a fake clock.
	Post func(func())
	// OnChange, if set, is called after any timer-driven change.
	OnChange func()
}

// Slide is the image currently shown. Seq changes whenever the index or the
// image list changes, so load results for an older slide can be ignored.
type Slide struct {
	Index int
	Image api.ImagePreview
	Seq   uint64
}

type Engine struct {
	opts   Options
	images []api.ImagePreview

	index   int
	seq     uint64
	hovered bool
	paused  bool
	loaded  bool
	failed  bool
	closed  bool

	state      State
	advance    *clock.Timer
	advanceGen uint64
	pause      *clock.Timer
	pauseGen   uint64
}

// New returns an engine showing the first image. The engine starts
// advancing immediately if the guard allows it.
func New(images []api.ImagePreview, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Post == nil {
		opts.Post = func(f func()) { f() }
	}
	e := &Engine{opts: opts}
	e.images = append([]api.ImagePreview(nil), images...)
	e.evaluate()
	return e
}

func (e *Engine) Len() int { return len(e.images) }

// Empty reports whether the tile should render its placeholder.
func (e *Engine) Empty() bool { return len(e.images) == 0 }

// ShowControls reports whether navigation controls are rendered.
func (e *Engine) ShowControls() bool { return len(e.images) > 1 }

// Slide returns the current slide, or false when there are no images.
func (e *Engine) Slide() (Slide, bool) {
	if len(e.images) == 0 {
		return Slide{}, false
	}
	return Slide{Index: e.index, Image: e.images[e.index], Seq: e.seq}, true
}

func (e *Engine) Images() []api.ImagePreview { return e.images }
func (e *Engine) State() State               { return e.state }
func (e *Engine) Hovered() bool              { return e.hovered }
func (e *Engine) Paused() bool               { return e.paused }
func (e *Engine) Loaded() bool               { return e.loaded }
func (e *Engine) Failed() bool               { return e.failed }
func (e *Engine) AutoAdvance() bool          { return e.opts.AutoAdvance }

// AltText describes the current slide, e.g. "Dragon - Image 2".
func (e *Engine) AltText() string {
	if len(e.images) == 0 {
		return e.opts.Label
	}
	return fmt.Sprintf("%s - Image %d", e.opts.Label, e.index+1)
}

// Counter renders "i / N".
func (e *Engine) Counter() string {
	if len(e.images) == 0 {
		return ""
	}
	return fmt.Sprintf("%d / %d", e.index+1, len(e.images))
}

// Next moves to the following image, wrapping to the first, and opens the
// manual pause window.
func (e *Engine) Next() {
	if e.closed || len(e.images) == 0 {
		return
	}
	e.show((e.index + 1) % len(e.images))
	e.startPause()
	e.evaluate()
}

// Prev moves to the preceding image, wrapping to the last, and opens the
// manual pause window.
func (e *Engine) Prev() {
	if e.closed || len(e.images) == 0 {
		return
	}
	e.show((e.index - 1 + len(e.images)) % len(e.images))
	e.startPause()
	e.evaluate()
}

// GoTo jumps to index and opens the manual pause window. index must be in
// [0, Len()); anything else is a programming error.
func (e *Engine) GoTo(index int) {
	if e.closed {
		return
	}
	if index < 0 || index >= len(e.images) {
		panic(fmt.Sprintf("carousel: index %d out of range [0,%d)", index, len(e.images)))
	}
	e.show(index)
	e.startPause()
	e.evaluate()
}

func (e *Engine) SetHovered(hovered bool) {
	if e.closed || e.hovered == hovered {
		return
	}
	e.hovered = hovered
	e.evaluate()
}

// SetAutoAdvance turns automatic rotation on or off.
func (e *Engine) SetAutoAdvance(on bool) {
	if e.closed || e.opts.AutoAdvance == on {
		return
	}
	e.opts.AutoAdvance = on
	e.evaluate()
}

// SetImages replaces the image list and returns to the first image.
func (e *Engine) SetImages(images []api.ImagePreview) {
	if e.closed {
		return
	}
	e.images = append([]api.ImagePreview(nil), images...)
	e.show(0)
	// A new list must start a fresh interval even if the guard was
	// already satisfied.
	e.stopAdvance()
	e.evaluate()
}

// MarkLoaded records a successful load of the slide with the given seq.
func (e *Engine) MarkLoaded(seq uint64) {
	if e.closed || seq != e.seq || len(e.images) == 0 {
		return
	}
	e.loaded = true
	e.failed = false
	e.evaluate()
}

// MarkFailed records a failed load. The tile shows its fallback and
// auto-advance stops until the user moves to another slide.
func (e *Engine) MarkFailed(seq uint64) {
	if e.closed || seq != e.seq || len(e.images) == 0 {
		return
	}
	e.failed = true
	e.loaded = false
	e.evaluate()
}

// Close stops both timers. No callback has any effect afterwards.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.stopAdvance()
	e.stopPause()
}

func (e *Engine) show(index int) {
	if len(e.images) == 0 {
		e.index = 0
	} else {
		e.index = index
	}
	e.seq++
	e.loaded = false
	e.failed = false
}

// shouldAdvance is the guard for the Advancing state.
func (e *Engine) shouldAdvance() bool {
	return e.opts.AutoAdvance &&
		!e.closed &&
		len(e.images) > 1 &&
		!e.hovered &&
		!e.paused &&
		!e.failed
}

func (e *Engine) evaluate() {
	switch want := e.shouldAdvance(); {
	case want && e.state == Idle:
		e.state = Advancing
		e.scheduleAdvance()
	case !want && e.state == Advancing:
		e.stopAdvance()
	}
}

func (e *Engine) scheduleAdvance() {
	e.advanceGen++
	gen := e.advanceGen
	e.advance = e.opts.Clock.AfterFunc(AdvanceInterval, func() {
		e.opts.Post(func() { e.onAdvance(gen) })
	})
}

func (e *Engine) stopAdvance() {
	e.advanceGen++
	e.advance.Stop()
	e.advance = nil
	e.state = Idle
}

// onAdvance is the automatic step. It does not open the pause window.
func (e *Engine) onAdvance(gen uint64) {
	if gen != e.advanceGen || e.state != Advancing {
		return
	}
	e.show((e.index + 1) % len(e.images))
	e.scheduleAdvance()
	e.evaluate()
	e.changed()
}

// startPause opens the pause window, replacing any window already open.
func (e *Engine) startPause() {
	e.pause.Stop()
	e.paused = true
	e.pauseGen++
	gen := e.pauseGen
	e.pause = e.opts.Clock.AfterFunc(PauseWindow, func() {
		e.opts.Post(func() { e.onPauseEnd(gen) })
	})
}

func (e *Engine) stopPause() {
	e.pauseGen++
	e.pause.Stop()
	e.pause = nil
}

func (e *Engine) onPauseEnd(gen uint64) {
	if gen != e.pauseGen || e.closed {
		return
	}
	e.pause = nil
	e.paused = false
	e.evaluate()
	e.changed()
}

func (e *Engine) changed() {
	if e.opts.OnChange != nil {
		e.opts.OnChange()
	}
}
