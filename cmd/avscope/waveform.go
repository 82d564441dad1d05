package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/linuxmatters/avscope/internal/cache"
	"github.com/linuxmatters/avscope/internal/cli"
	"github.com/linuxmatters/avscope/internal/logging"
	"github.com/linuxmatters/avscope/internal/media"
	"github.com/linuxmatters/avscope/internal/ui"
)

// WaveformCmd computes, or fetches from cache, the waveform of one asset.
type WaveformCmd struct {
	Source   string `arg:"" help:"Media URL, YouTube or Drive link, or local file."`
	ID       string `placeholder:"id" help:"Asset ID to cache under. Derived from the source when omitted."`
	Buckets  int    `help:"Number of waveform buckets. Overrides the config file."`
	NoRemote bool   `help:"Skip the shared remote cache."`
	Plain    bool   `help:"Print the result without the interactive view."`
	Report   string `type:"path" placeholder:"path" help:"Also write the waveform summary to this file."`
}

func (c *WaveformCmd) Run(e *env, ctx context.Context) error {
	if c.Buckets != 0 {
		e.cfg.Waveform.Buckets = c.Buckets
		if err := e.cfg.Validate(); err != nil {
			return err
		}
	}
	id := c.ID
	if id == "" {
		var err error
		if id, err = media.ResolveAssetID(c.Source); err != nil {
			return err
		}
	}

	log, err := e.logger(!c.Plain)
	if err != nil {
		return err
	}
	store, err := e.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	svc, err := e.openService(store, !c.NoRemote, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	start := time.Now()
	var peaks []float64
	if c.Plain {
		peaks, err = svc.Load(ctx, id, c.Source, nil)
	} else {
		peaks, err = runWaveformUI(ctx, svc, id, c.Source)
	}
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	logging.DisplayWaveform(os.Stdout, id, peaks, elapsed)
	if c.Report != "" {
		f, err := os.Create(c.Report)
		if err != nil {
			return fmt.Errorf("failed to create report: %w", err)
		}
		logging.DisplayWaveform(f, id, peaks, elapsed)
		if err := f.Close(); err != nil {
			return err
		}
		cli.PrintSuccess(os.Stdout, "Summary written to "+c.Report)
	}
	return nil
}

// runWaveformUI drives a selection from the interactive view until the
// waveform is ready or the user quits.
func runWaveformUI(ctx context.Context, svc *cache.Service, id, ref string) ([]float64, error) {
	states := ui.NewMailbox[cache.State]()
	sel := cache.NewSelection(svc, states.Post)
	defer sel.Close()

	model := ui.NewWaveformModel(id, states, func() { sel.Select(id, ref) })
	p := tea.NewProgram(model, tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	m := final.(ui.WaveformModel)
	switch {
	case m.Done:
		return m.Peaks, nil
	case m.Err != nil:
		return nil, m.Err
	}
	return nil, errors.New("cancelled")
}
