package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/linuxmatters/avscope/internal/cache"
	"github.com/linuxmatters/avscope/internal/cli"
	"github.com/linuxmatters/avscope/internal/kv"
	"github.com/linuxmatters/avscope/internal/logging"
)

// CacheCmd groups the local cache maintenance commands.
type CacheCmd struct {
	List  CacheListCmd  `cmd:"" help:"List cached waveforms, newest first."`
	Has   CacheHasCmd   `cmd:"" help:"Report whether an asset is cached. Exits 1 when it is not."`
	Prune CachePruneCmd `cmd:"" help:"Evict the oldest waveforms."`
}

// openLocal opens the local tier and its membership registry.
func (e *env) openLocal() (*kv.SQLite, *cache.LocalTier, *cache.Registry, error) {
	log, err := e.logger(false)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := e.openStore()
	if err != nil {
		return nil, nil, nil, err
	}
	local := cache.NewLocalTier(store, cache.LocalOptions{
		Prefix:     e.cfg.Cache.Prefix,
		MaxEntries: e.cfg.Cache.MaxEntries,
		Logger:     log,
	})
	reg := cache.NewRegistry(store, local.Prefix(), log)
	reg.Initialize()
	return store, local, reg, nil
}

// CacheListCmd prints the cached waveforms.
type CacheListCmd struct{}

func (c *CacheListCmd) Run(e *env) error {
	store, local, _, err := e.openLocal()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := local.Entries()
	if err != nil {
		return err
	}
	t := &logging.Table{LabelHeader: "Asset", Headers: []string{"Buckets", "Stored"}}
	for _, en := range entries {
		t.AddRow(en.ID, []string{fmt.Sprint(en.Buckets), humanize.Time(en.Stored)}, "", "")
	}
	fmt.Print(t.String())

	used, err := store.Used()
	if err != nil {
		return err
	}
	cli.PrintField(os.Stdout, "Entries", fmt.Sprintf("%d of %d", len(entries), local.MaxEntries()))
	cli.PrintField(os.Stdout, "Size", humanize.IBytes(uint64(used)))
	cli.PrintField(os.Stdout, "Database", e.cfg.Cache.DBPath)
	return nil
}

// CacheHasCmd checks registry membership for one asset.
type CacheHasCmd struct {
	ID string `arg:"" help:"Asset ID."`
}

func (c *CacheHasCmd) Run(e *env) error {
	store, _, reg, err := e.openLocal()
	if err != nil {
		return err
	}
	defer store.Close()

	if !reg.Has(c.ID) {
		return fmt.Errorf("%s is not cached", c.ID)
	}
	cli.PrintSuccess(os.Stdout, c.ID+" is cached")
	return nil
}

// CachePruneCmd evicts down to a target entry count.
type CachePruneCmd struct {
	Keep int `default:"-1" help:"Entries to keep. Defaults to half the cache capacity."`
}

func (c *CachePruneCmd) Run(e *env) error {
	store, local, _, err := e.openLocal()
	if err != nil {
		return err
	}
	defer store.Close()

	keep := c.Keep
	if keep < 0 {
		keep = local.MaxEntries() / 2
	}
	removed, err := local.Prune(keep)
	if err != nil {
		return err
	}
	cli.PrintSuccess(os.Stdout, fmt.Sprintf("Removed %s, kept at most %d", pluralEntries(removed), keep))
	return nil
}

func pluralEntries(n int) string {
	if n == 1 {
		return "1 entry"
	}
	return humanize.Comma(int64(n)) + " entries"
}
