package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/hlt"
)

func (c maincmd) put(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		anchor = fs.String("anchor", "", "anchor to assign to added ref")
		at     = atFlag(fs)
	)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	blob, err := io.ReadAll(os.Stdin)
	if err != nil {
		return errors.Wrap(err, "reading stdin")
	}
	ref, added, err := c.s.Put(ctx, blob)
	if err != nil {
		return errors.Wrap(err, "storing blob")
	}

	if *anchor != "" {
		t, err := at()
		if err != nil {
			return err
		}
		if err = c.s.PutAnchor(ctx, *anchor, ref, t); err != nil {
			return errors.Wrapf(err, "associating anchor %s with blob %s at time %s", *anchor, ref, t)
		}
	}

	c.logger.Info("stored blob", "ref", ref, "added", added)
	fmt.Println(ref.Identifier())
	return nil
}

func (c maincmd) get(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		anchor = fs.String("anchor", "", "anchor of blob to get")
		refstr = fs.String("ref", "", "ref of blob to get (identifier or hex)")
		at     = atFlag(fs)
	)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	if (*anchor == "" && *refstr == "") || (*anchor != "" && *refstr != "") {
		return errors.New("must supply one of -anchor or -ref")
	}

	var (
		ref hlt.Ref
		err error
	)
	if *anchor != "" {
		t, err := at()
		if err != nil {
			return err
		}
		ref, err = c.s.GetAnchor(ctx, *anchor, t)
		if err != nil {
			return errors.Wrapf(err, "getting anchor %s at time %s", *anchor, t)
		}
	} else {
		ref, err = parseRef(*refstr)
		if err != nil {
			return errors.Wrapf(err, "decoding ref %s", *refstr)
		}
	}

	blob, err := c.s.Get(ctx, ref)
	if err != nil {
		return errors.Wrapf(err, "getting blob %s", ref)
	}
	_, err = os.Stdout.Write(blob)
	return errors.Wrap(err, "writing blob to stdout")
}

func (c maincmd) getAnchor(ctx context.Context, fs *flag.FlagSet, args []string) error {
	at := atFlag(fs)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	args = fs.Args()
	if len(args) == 0 {
		return errors.New("missing anchor")
	}
	name := args[0]

	t, err := at()
	if err != nil {
		return err
	}
	ref, err := c.s.GetAnchor(ctx, name, t)
	if err != nil {
		return errors.Wrapf(err, "getting anchor %s at time %s", name, t)
	}

	fmt.Println(ref.Identifier())
	return nil
}

func (c maincmd) listRefs(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		start   = fs.String("start", "", "start after this ref")
		anchors = fs.Bool("anchors", false, "list anchors instead of refs")
	)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	if *anchors {
		return c.s.ListAnchors(ctx, *start, func(name string, ref hlt.Ref, at time.Time) error {
			fmt.Printf("%s %s %s\n", name, at.Format(time.RFC3339Nano), ref.Identifier())
			return nil
		})
	}

	var startRef hlt.Ref
	if *start != "" {
		var err error
		startRef, err = parseRef(*start)
		if err != nil {
			return errors.Wrap(err, "parsing start ref")
		}
	}

	return c.s.ListRefs(ctx, startRef, func(ref hlt.Ref) error {
		fmt.Println(ref.Identifier())
		return nil
	})
}
