package progress

import (
	"context"
	"time"
)

// Tick is one periodic progress observation.
type Tick struct {
	Report Report
	Active bool
}

// Ticker polls a snapshot source at a fixed interval and delivers
// progress observations. A slow consumer never blocks the loop; stale
// observations are dropped in favor of the newest one.
type Ticker struct {
	interval time.Duration
	source   func() (Report, bool)
	ticks    chan Tick
}

// NewTicker builds a Ticker around a source that returns the current
// report and whether a run is active.
func NewTicker(interval time.Duration, source func() (Report, bool)) *Ticker {
	return &Ticker{
		interval: interval,
		source:   source,
		ticks:    make(chan Tick, 1),
	}
}

// Ticks is the observation channel. It is closed when Run returns.
func (t *Ticker) Ticks() <-chan Tick {
	return t.ticks
}

// Run polls until the context is canceled.
func (t *Ticker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	defer close(t.ticks)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rep, active := t.source()
			select {
			case t.ticks <- Tick{Report: rep, Active: active}:
			default:
				// Drop the queued observation and replace it.
				select {
				case <-t.ticks:
				default:
				}
				select {
				case t.ticks <- Tick{Report: rep, Active: active}:
				default:
				}
			}
		}
	}
}
