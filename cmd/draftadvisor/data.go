package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"go.uber.org/zap"

	"github.com/brensch/brawldraft/config"
	"github.com/brensch/brawldraft/matchlog"
	"github.com/brensch/brawldraft/roster"
	"github.com/brensch/brawldraft/stats"
	"github.com/brensch/brawldraft/store"
)

// loadStats prefers the stats cache and falls back to a rebuild from the
// battle log, which also rewrites the cache.
func loadStats(ctx context.Context, c *config.Config, rosterSource string, log *zap.SugaredLogger) (*stats.Aggregator, error) {
	cache, err := store.ReadCache(c.Paths.Cache)
	if err == nil {
		log.Infow("loaded stats cache",
			"path", c.Paths.Cache,
			"created_at", cache.CreatedAt,
			"buckets", len(cache.Table.Buckets),
			"brawlers", len(cache.Table.Brawlers),
		)
		return stats.FromTable(cache.Table, c.StatsParams()), nil
	}
	log.Warnw("stats cache unusable, rebuilding", "path", c.Paths.Cache, "error", err)
	return rebuild(ctx, c, rosterSource, log)
}

// rebuild ingests new battles into the match archive, aggregates the whole
// archive and writes a fresh cache.
func rebuild(ctx context.Context, c *config.Config, rosterSource string, log *zap.SugaredLogger) (*stats.Aggregator, error) {
	res, err := matchlog.LoadFile(c.Paths.MatchLog, log)
	switch {
	case err == nil:
		added, err := store.AppendMatches(c.Paths.Matches, res.Keys, res.Matches)
		if err != nil {
			return nil, fmt.Errorf("archive matches: %w", err)
		}
		log.Infow("archived battles", "new", added, "parsed", len(res.Matches), "dir", c.Paths.Matches)
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, matchlog.ErrNoUsableData):
		log.Warnw("no new battles", "path", c.Paths.MatchLog, "error", err)
	default:
		return nil, err
	}

	matches, err := store.ReadMatches(c.Paths.Matches)
	if err != nil {
		return nil, fmt.Errorf("read match archive: %w", err)
	}
	params := c.StatsParams()
	table := stats.Build(matches, params).Export()

	if rosterSource == "" {
		rosterSource = c.Paths.Roster
	}
	if rosterSource != "" {
		names, err := roster.Load(ctx, rosterSource, roster.DefaultSelector)
		if err != nil {
			return nil, err
		}
		before := len(table.Brawlers)
		table.Brawlers = roster.Merge(table.Brawlers, names)
		log.Infow("merged roster", "source", rosterSource, "listed", len(names), "added", len(table.Brawlers)-before)
	}

	if len(table.Buckets) == 0 || len(table.Brawlers) == 0 {
		return nil, matchlog.ErrNoUsableData
	}
	if err := store.WriteCache(c.Paths.Cache, table, time.Now().UTC()); err != nil {
		return nil, err
	}
	log.Infow("stats cache written",
		"path", c.Paths.Cache,
		"matches", len(matches),
		"buckets", len(table.Buckets),
		"brawlers", len(table.Brawlers),
	)
	return stats.FromTable(table, params), nil
}
