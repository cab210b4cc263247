package main

import (
	"context"
	"flag"

	"github.com/pkg/errors"

	"github.com/bobg/hlt"
	"github.com/bobg/hlt/anchor"
	"github.com/bobg/hlt/store"
)

// sync copies blobs and anchors among this store and the ones described by the config files given as arguments.
func (c maincmd) sync(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	var (
		stores  = []hlt.Store{c.s}
		anchors = []anchor.Store{c.s}
	)
	for _, arg := range fs.Args() {
		conf, err := readConfig(arg)
		if err != nil {
			return errors.Wrapf(err, "reading %s", arg)
		}
		s, err := conf.store(ctx)
		if err != nil {
			return errors.Wrapf(err, "creating store from %s", arg)
		}
		stores = append(stores, s)
		if a, ok := s.(anchor.Store); ok {
			anchors = append(anchors, a)
		} else {
			c.logger.Warn("store keeps no anchors", "config", arg)
		}
	}

	if err := store.Sync(ctx, stores); err != nil {
		return errors.Wrap(err, "syncing blobs")
	}
	return errors.Wrap(store.SyncAnchors(ctx, anchors), "syncing anchors")
}
