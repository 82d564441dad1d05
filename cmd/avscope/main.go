package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/linuxmatters/avscope/internal/audio"
	"github.com/linuxmatters/avscope/internal/cache"
	"github.com/linuxmatters/avscope/internal/cli"
	"github.com/linuxmatters/avscope/internal/config"
	"github.com/linuxmatters/avscope/internal/kv"
	"github.com/linuxmatters/avscope/internal/logging"
	"github.com/linuxmatters/avscope/internal/source"
	"github.com/linuxmatters/avscope/internal/waveform"
)

var (
	version = "0.1.0"
)

// CLI defines the command-line interface
type CLI struct {
	Version  versionFlag `short:"v" help:"Show version information"`
	Config   string      `short:"c" type:"path" placeholder:"path" help:"Path to YAML config file (optional)"`
	LogLevel string      `placeholder:"level" help:"Log level: debug, info, warn or error. Overrides the config file."`
	LogFile  string      `type:"path" placeholder:"path" help:"Write logs to this file. Overrides the config file."`

	Waveform WaveformCmd `cmd:"" help:"Compute or fetch the cached waveform of a media asset."`
	Watch    WatchCmd    `cmd:"" help:"Play a media file with live scopes."`
	Serve    ServeCmd    `cmd:"" help:"Run the shared waveform cache server."`
	Cache    CacheCmd    `cmd:"" help:"Inspect and maintain the local waveform cache."`
}

// versionFlag prints the styled version banner and exits.
type versionFlag bool

func (v versionFlag) BeforeReset(app *kong.Kong, vars kong.Vars) error {
	cli.PrintVersion(vars["version"])
	app.Exit(0)
	return nil
}

// env is what every command runs with: the loaded configuration and a
// logger writing where the command wants it.
type env struct {
	cli *CLI
	cfg *config.Config

	logFile io.Closer
}

func main() {
	cliArgs := &CLI{}
	ctx := kong.Parse(cliArgs,
		kong.Name("avscope"),
		kong.Description("Audio and video quality review"),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
		},
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	cfg, err := config.Load(cliArgs.Config)
	if err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
	if cliArgs.LogLevel != "" {
		cfg.Log.Level = cliArgs.LogLevel
	}
	if cliArgs.LogFile != "" {
		cfg.Log.File = cliArgs.LogFile
	}

	e := &env{cli: cliArgs, cfg: cfg}
	defer e.close()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx.BindTo(sigCtx, (*context.Context)(nil))
	if err := ctx.Run(e); err != nil {
		cli.PrintError(err.Error())
		e.close()
		os.Exit(1)
	}
}

// logger builds the process logger. Interactive commands own the terminal,
// so without a log file they log nothing.
func (e *env) logger(interactive bool) (*slog.Logger, error) {
	level, err := logging.ParseLevel(e.cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	var w io.Writer = os.Stderr
	switch {
	case e.cfg.Log.File != "":
		f, err := logging.OpenDebugLog(e.cfg.Log.File)
		if err != nil {
			return nil, err
		}
		e.logFile = f
		w = f
	case interactive:
		return logging.Discard(), nil
	}
	log := logging.New(w, level, e.cfg.Log.Format)
	slog.SetDefault(log)
	return log, nil
}

func (e *env) close() {
	if e.logFile != nil {
		e.logFile.Close()
		e.logFile = nil
	}
}

// openStore opens the local cache database.
func (e *env) openStore() (*kv.SQLite, error) {
	c := e.cfg.Cache
	store, err := kv.OpenSQLite(c.DBPath, kv.WithMkdirAll(), kv.WithQuota(c.QuotaBytes))
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", c.DBPath, err)
	}
	return store, nil
}

// openService wires the three-tier waveform cache over store.
func (e *env) openService(store kv.Store, remote bool, log *slog.Logger) (*cache.Service, error) {
	c := e.cfg
	local := cache.NewLocalTier(store, cache.LocalOptions{
		Prefix:     c.Cache.Prefix,
		MaxEntries: c.Cache.MaxEntries,
		Logger:     log,
	})

	opts := cache.Options{
		Local: local,
		Fetcher: source.New(source.Config{
			Timeout:   c.Fetch.Timeout,
			MaxBytes:  c.Fetch.MaxBytes,
			UserAgent: c.Fetch.UserAgent,
		}),
		Decoder: &audio.Decoder{FFmpegBin: c.Analysis.FFmpeg},
		Builder: &waveform.Builder{ProgressInterval: c.Waveform.ProgressInterval},
		Buckets: c.Waveform.Buckets,
		Logger:  log,
	}
	if remote && c.Cache.RemoteURL != "" {
		opts.Remote = cache.NewHTTPRemote(c.Cache.RemoteURL, c.Cache.RemoteTimeout, log)
	}
	return cache.New(opts)
}
