package main

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"printshelf/internal/clock"
)

const (
	searchDebounce = 300 * time.Millisecond
	tagDebounce    = 200 * time.Millisecond
)

type debounceKind int

const (
	debounceSearch debounceKind = iota
	debounceSearchTags
	debounceProjectTags
)

type debounceMsg struct {
	kind debounceKind
	gen  uint64
}

// debouncer delivers a debounceMsg once input has been quiet for delay.
// A newer Trigger supersedes the pending one. It is used only from the
// event loop.
type debouncer struct {
	clock clock.Clock
	delay time.Duration
	kind  debounceKind
	send  func(tea.Msg)

	timer *clock.Timer
	gen   uint64
}

func (d *debouncer) Trigger() {
	d.timer.Stop()
	d.gen++
	gen, kind, send := d.gen, d.kind, d.send
	d.timer = d.clock.AfterFunc(d.delay, func() {
		send(debounceMsg{kind: kind, gen: gen})
	})
}

// Current reports whether msg came from the latest Trigger.
func (d *debouncer) Current(msg debounceMsg) bool {
	return d != nil && msg.kind == d.kind && msg.gen == d.gen
}

func (d *debouncer) Stop() {
	d.timer.Stop()
	d.gen++
}
