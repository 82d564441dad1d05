package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/linuxmatters/avscope/internal/kv"
	"github.com/linuxmatters/avscope/internal/remote"
)

// ServeCmd runs the shared waveform cache server.
type ServeCmd struct {
	Addr string `placeholder:"addr" help:"Listen address. Overrides the config file."`
	DB   string `type:"path" placeholder:"path" help:"Server database path. Overrides the config file."`
}

func (c *ServeCmd) Run(e *env, ctx context.Context) error {
	log, err := e.logger(false)
	if err != nil {
		return err
	}
	s := e.cfg.Server
	if c.Addr != "" {
		s.Addr = c.Addr
	}
	if c.DB != "" {
		s.DBPath = c.DB
	}

	var opts []kv.Option
	opts = append(opts, kv.WithMkdirAll())
	if s.QuotaBytes > 0 {
		opts = append(opts, kv.WithQuota(s.QuotaBytes))
	}
	store, err := kv.OpenSQLite(s.DBPath, opts...)
	if err != nil {
		return fmt.Errorf("open server database %s: %w", s.DBPath, err)
	}
	defer store.Close()

	quota := "unlimited"
	if s.QuotaBytes > 0 {
		quota = humanize.IBytes(uint64(s.QuotaBytes))
	}
	log.Info("waveform server starting", "addr", s.Addr, "db", s.DBPath, "quota", quota)
	return remote.NewServer(store, log).ListenAndServe(ctx, s.Addr)
}
