// Package ui runs the system tray: a live progress readout and a few
// quick actions. The tray is skipped entirely in headless mode.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/storyforge/storyforge-agent/internal/generate"
	"github.com/storyforge/storyforge-agent/internal/progress"
	"github.com/storyforge/storyforge-agent/internal/providerconf"
	"github.com/storyforge/storyforge-agent/internal/status"
)

type Tray struct {
	orchestrator *generate.Orchestrator
	reconciler   *providerconf.Reconciler
	logger       *slog.Logger

	statusItem  *systray.MenuItem
	backendItem *systray.MenuItem

	mu sync.Mutex

	onQuit func()
}

type TrayConfig struct {
	Orchestrator *generate.Orchestrator
	Reconciler   *providerconf.Reconciler
	Logger       *slog.Logger
	OnQuit       func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		orchestrator: cfg.Orchestrator,
		reconciler:   cfg.Reconciler,
		logger:       cfg.Logger,
		onQuit:       cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Storyforge")
	systray.SetTooltip("Storyforge Agent")

	t.statusItem = systray.AddMenuItem("Idle", "Current generation status")
	t.statusItem.Disable()

	t.backendItem = systray.AddMenuItem("Backend: local", "Active provider backend")
	t.backendItem.Disable()

	systray.AddSeparator()

	resetItem := systray.AddMenuItem("Discard Session", "Discard the current generation session")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Storyforge Agent")

	ctx, cancel := context.WithCancel(context.Background())
	ticker := progress.NewTicker(time.Second, t.observe)
	go ticker.Run(ctx)

	go func() {
		defer cancel()
		for {
			select {
			case tick, ok := <-ticker.Ticks():
				if ok {
					t.apply(tick)
				}
			case <-resetItem.ClickedCh:
				t.logger.Info("session reset requested from tray")
				t.orchestrator.Reset()
				t.apply(progress.Tick{Report: progress.Report{Label: "Idle"}})
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

// observe feeds the progress ticker from the orchestrator snapshot.
func (t *Tray) observe() (progress.Report, bool) {
	snap := t.orchestrator.Snapshot()

	if snap.SessionID == "" {
		return progress.Report{Label: "Idle"}, false
	}

	statuses := make([]status.Status, len(snap.Segments))
	for i, seg := range snap.Segments {
		statuses[i] = seg.Status
	}
	return progress.Estimate(statuses, snap.GeneratingIndex, snap.GeneratingFor), snap.Generating
}

func (t *Tray) apply(tick progress.Tick) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tick.Active {
		t.statusItem.SetTitle(fmt.Sprintf("%s (%d%%)", tick.Report.Label, tick.Report.Percent))
	} else {
		t.statusItem.SetTitle(tick.Report.Label)
	}

	t.backendItem.SetTitle("Backend: " + string(t.reconciler.Active()))
}

func (t *Tray) Quit() {
	systray.Quit()
}
