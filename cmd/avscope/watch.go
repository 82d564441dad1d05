package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gopxl/beep/v2"
	"github.com/linuxmatters/avscope/internal/analysis"
	"github.com/linuxmatters/avscope/internal/audio"
	"github.com/linuxmatters/avscope/internal/cache"
	"github.com/linuxmatters/avscope/internal/cli"
	"github.com/linuxmatters/avscope/internal/logging"
	"github.com/linuxmatters/avscope/internal/mains"
	"github.com/linuxmatters/avscope/internal/media"
	"github.com/linuxmatters/avscope/internal/scope"
	"github.com/linuxmatters/avscope/internal/ui"
)

const playbackRate = beep.SampleRate(44100)

// WatchCmd plays a local file with live scopes and an optional review report.
type WatchCmd struct {
	File     string `arg:"" type:"existingfile" help:"Media file to review."`
	NoRemote bool   `help:"Skip the shared remote cache for the timeline waveform."`
	Silent   bool   `help:"Run the playback clock without an audio device."`
	Report   string `type:"path" placeholder:"path" help:"Write a review report to this file on exit."`
}

func (c *WatchCmd) Run(e *env, ctx context.Context) error {
	log, err := e.logger(true)
	if err != nil {
		return err
	}
	cfg := e.cfg

	mainsHz, mainsSource, err := mains.Resolve(cfg.Analysis.MainsHz)
	if err != nil {
		return err
	}
	log.Info("mains frequency", "hz", mainsHz, "source", mainsSource)

	sink, closeSink := openSink(c.Silent, log)
	defer closeSink()
	player := media.NewPlayer(media.PlayerOptions{
		Sink:       sink,
		FFmpegBin:  cfg.Analysis.FFmpeg,
		FFprobeBin: cfg.Analysis.FFprobe,
		Logger:     log,
	})
	defer player.Close()
	if err := player.Load(ctx, c.File); err != nil {
		return err
	}

	snapshots := ui.NewMailbox[analysis.Snapshot]()
	loop := analysis.NewLoop(audio.NewSystem(cfg.Analysis.MaxContexts), analysis.Options{
		Rate:   float64(cfg.Analysis.RateHz),
		Width:  cfg.Analysis.Width,
		Settle: cfg.Analysis.Settle,
		Analyser: audio.AnalyserOptions{
			FFTSize:   cfg.Analysis.FFTSize,
			Smoothing: cfg.Analysis.Smoothing,
		},
		Logger:     log,
		OnSnapshot: snapshots.Post,
	})
	defer loop.Close()
	loop.SetSource(player)

	// The timeline waveform is a nice-to-have; watching works without it.
	var states *ui.Mailbox[cache.State]
	assetID, err := media.FileContentID(c.File)
	if err != nil {
		log.Warn("no asset id, timeline disabled", "error", err)
	} else if store, err := e.openStore(); err != nil {
		log.Warn("cache unavailable, timeline disabled", "error", err)
	} else {
		defer store.Close()
		svc, err := e.openService(store, !c.NoRemote, log)
		if err != nil {
			return err
		}
		defer svc.Close()
		states = ui.NewMailbox[cache.State]()
		sel := cache.NewSelection(svc, states.Post)
		defer sel.Close()
		sel.Select(assetID, c.File)
	}

	model := ui.NewWatchModel(ui.WatchOptions{
		Title:     filepath.Base(c.File),
		AssetID:   assetID,
		Transport: player,
		Snapshots: snapshots,
		States:    states,
		HumBin:    scope.HumBin(int(playbackRate), cfg.Analysis.FFTSize, mainsHz),
		MainsHz:   mainsHz,
		Logger:    log,
	})

	started := time.Now()
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	if err := player.Pause(); err != nil {
		log.Debug("pause on exit", "error", err)
	}

	if c.Report == "" {
		return nil
	}
	m, ok := final.(ui.WatchModel)
	if !ok {
		return nil
	}
	channels := 0
	if player.HasAudio() {
		channels = 2
	}
	if err := logging.GenerateReport(c.Report, logging.ReportData{
		Source:     c.File,
		AssetID:    assetID,
		Started:    started,
		Ended:      time.Now(),
		Duration:   player.Duration(),
		SampleRate: int(playbackRate),
		Channels:   channels,
		MainsHz:    mainsHz,
		Stats:      m.Stats,
	}); err != nil {
		return err
	}
	cli.PrintSuccess(os.Stdout, "Report written to "+c.Report)
	return nil
}

// openSink returns the speaker, or a wall-clock sink when silent or when no
// audio device is available.
func openSink(silent bool, log *slog.Logger) (media.Sink, func()) {
	if !silent {
		sink, err := media.NewSpeakerSink(playbackRate)
		if err == nil {
			return sink, sink.Close
		}
		log.Warn("audio device unavailable, playing silently", "error", err)
	}
	sink := media.NewClockSink(playbackRate, 20*time.Millisecond)
	return sink, sink.Close
}
