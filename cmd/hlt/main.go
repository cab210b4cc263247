// Command hlt is a general purpose CLI interface to hash-linked trees and the stores that hold them.
//
// Usage:
//
//	hlt [-config FILE] [-v] SUBCOMMAND [ARGS]
//
// The config file is JSON describing a store,
// as understood by store.Create,
// plus these optional top-level settings for trees:
//
//	"degree":   maximum number of children per node (3 to 10, default 5)
//	"kind":     "set" (the default) or "map"
//	"identity": this host's peer ID
//	"peers":    object mapping peer IDs to the base URLs of their servers
//
// A tree is named by an anchor in the store whose latest ref is the tree's root.
// The zero ref (or no anchor at all) means an empty tree.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/bobg/subcmd"
	"github.com/pkg/errors"

	"github.com/bobg/hlt"
	"github.com/bobg/hlt/anchor"
	_ "github.com/bobg/hlt/store/bt"
	_ "github.com/bobg/hlt/store/file"
	_ "github.com/bobg/hlt/store/gcs"
	_ "github.com/bobg/hlt/store/logging"
	_ "github.com/bobg/hlt/store/lru"
	_ "github.com/bobg/hlt/store/mem"
	_ "github.com/bobg/hlt/store/pg"
	_ "github.com/bobg/hlt/store/replica"
	_ "github.com/bobg/hlt/store/sqlite3"
	_ "github.com/bobg/hlt/store/transform"
)

type maincmd struct {
	s      anchor.Store
	conf   *config
	logger *slog.Logger
}

func main() {
	var (
		configFile = flag.String("config", "hltconf.json", "path to config file")
		verbose    = flag.Bool("v", false, "log debug messages")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *configFile == "" {
		fatal(logger, "config value not set")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	conf, err := readConfig(*configFile)
	if err != nil {
		fatal(logger, "reading config", "file", *configFile, "err", err)
	}
	s, err := conf.store(ctx)
	if err != nil {
		fatal(logger, "creating store", "file", *configFile, "err", err)
	}
	as, ok := s.(anchor.Store)
	if !ok {
		fatal(logger, "not an anchor store", "type", conf.typ)
	}

	err = subcmd.Run(ctx, maincmd{s: as, conf: conf, logger: logger}, flag.Args())
	if err != nil {
		fatal(logger, "running command", "err", err)
	}
}

func fatal(logger *slog.Logger, msg string, args ...any) {
	logger.Error(msg, args...)
	os.Exit(1)
}

func (c maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"add":        c.add,
		"dump":       c.dump,
		"get":        c.get,
		"get-anchor": c.getAnchor,
		"has":        c.has,
		"list-refs":  c.listRefs,
		"ls":         c.ls,
		"mirror":     c.mirror,
		"put":        c.put,
		"remove":     c.remove,
		"serve":      c.serve,
		"state":      c.state,
		"sync":       c.sync,
		"verify":     c.verify,
	}
}

var layouts = []string{
	time.RFC3339Nano, time.RFC3339, time.ANSIC, time.UnixDate,
}

func parsetime(s string) (time.Time, error) {
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil { // sic
			return t, nil
		}
	}
	return time.Time{}, errors.New("could not parse time")
}

// parseRef accepts a chunk identifier or a hex ref.
func parseRef(s string) (hlt.Ref, error) {
	if hlt.ValidIdentifier(s) {
		return hlt.ParseIdentifier(s)
	}
	return hlt.RefFromHex(s)
}

func atFlag(fs *flag.FlagSet) func() (time.Time, error) {
	atstr := fs.String("at", "", "timestamp for anchor (default: now)")
	return func() (time.Time, error) {
		if *atstr == "" {
			return time.Now(), nil
		}
		at, err := parsetime(*atstr)
		return at, errors.Wrap(err, "parsing -at")
	}
}
