package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/hlt"
	"github.com/bobg/hlt/peer"
	"github.com/bobg/hlt/tree"
)

// treeArgs are the flags shared by the subcommands that operate on a tree.
type treeArgs struct {
	name   *string
	state  *string
	owner  *string
	kind   *string
	degree *int
	at     func() (time.Time, error)
}

func (c maincmd) treeFlags(fs *flag.FlagSet) *treeArgs {
	return &treeArgs{
		name:   fs.String("tree", "", "anchor naming the tree"),
		state:  fs.String("state", "", "root identifier, overriding the anchor"),
		owner:  fs.String("owner", "", "peer that owns the tree (default: this host)"),
		kind:   fs.String("kind", "", "set or map (default: from config)"),
		degree: fs.Int("degree", 0, "tree degree (default: from config)"),
		at:     atFlag(fs),
	}
}

// open produces the tree named by ta,
// positioned at its latest root or the one given by -state.
func (c maincmd) open(ctx context.Context, ta *treeArgs) (*tree.Tree, error) {
	if *ta.name == "" && *ta.state == "" {
		return nil, errors.New("must supply -tree or -state")
	}

	opts := tree.Options{
		Degree: c.conf.degree,
		Kind:   c.conf.kind,
		Owner:  hlt.PeerID(*ta.owner),
		Local:  c.conf.identity,
		Logger: c.logger,
	}
	if *ta.degree != 0 {
		opts.Degree = *ta.degree
	}
	if *ta.kind != "" {
		kind, err := parseKind(*ta.kind)
		if err != nil {
			return nil, err
		}
		opts.Kind = kind
	}

	r := &hlt.Resolver{
		Local:  c.s,
		Remote: peer.NewClient(c.conf.peers, peer.WithLogger(c.logger)),
		Cache:  c.s,
	}
	t, err := tree.New(c.s, r, opts)
	if err != nil {
		return nil, err
	}

	if *ta.state != "" {
		return t, t.SetState(*ta.state)
	}

	at, err := ta.at()
	if err != nil {
		return nil, err
	}
	root, err := c.s.GetAnchor(ctx, *ta.name, at)
	if errors.Is(err, hlt.ErrNotFound) {
		return t, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "getting anchor %s", *ta.name)
	}
	t.SetRoot(root)
	return t, nil
}

// save records t's root under its anchor.
func (c maincmd) save(ctx context.Context, ta *treeArgs, t *tree.Tree) error {
	root, _ := t.Root()
	if *ta.name != "" {
		if err := c.s.PutAnchor(ctx, *ta.name, root, time.Now()); err != nil {
			return errors.Wrapf(err, "updating anchor %s", *ta.name)
		}
	}
	fmt.Println(t.State())
	return nil
}

// add adds its arguments to a set,
// or KEY=VALUE arguments to a map.
func (c maincmd) add(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		ta      = c.treeFlags(fs)
		replace = fs.Bool("replace", false, "in a map, replace existing values")
	)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	t, err := c.open(ctx, ta)
	if err != nil {
		return err
	}

	for _, arg := range fs.Args() {
		if t.Kind() == tree.SetKind {
			err = t.Add(ctx, []byte(arg))
		} else {
			k, v, ok := strings.Cut(arg, "=")
			if !ok {
				return fmt.Errorf("map entry %q is not KEY=VALUE", arg)
			}
			if *replace {
				err = t.Put(ctx, []byte(k), []byte(v))
			} else {
				err = t.Insert(ctx, []byte(k), []byte(v))
			}
		}
		if err != nil {
			return errors.Wrapf(err, "adding %s", arg)
		}
	}
	return c.save(ctx, ta, t)
}

func (c maincmd) remove(ctx context.Context, fs *flag.FlagSet, args []string) error {
	ta := c.treeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	t, err := c.open(ctx, ta)
	if err != nil {
		return err
	}
	for _, arg := range fs.Args() {
		if _, err = t.Remove(ctx, []byte(arg)); err != nil {
			return errors.Wrapf(err, "removing %s", arg)
		}
	}
	return c.save(ctx, ta, t)
}

func (c maincmd) has(ctx context.Context, fs *flag.FlagSet, args []string) error {
	ta := c.treeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	t, err := c.open(ctx, ta)
	if err != nil {
		return err
	}
	for _, arg := range fs.Args() {
		ok, err := t.Has(ctx, []byte(arg))
		if err != nil {
			return errors.Wrapf(err, "looking up %s", arg)
		}
		fmt.Printf("%s %v\n", arg, ok)
	}
	return nil
}

func (c maincmd) ls(ctx context.Context, fs *flag.FlagSet, args []string) error {
	ta := c.treeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	t, err := c.open(ctx, ta)
	if err != nil {
		return err
	}
	return t.Each(ctx, func(k, v []byte) error {
		if t.Kind() == tree.MapKind {
			fmt.Printf("%s=%s\n", k, v)
		} else {
			fmt.Printf("%s\n", k)
		}
		return nil
	})
}

func (c maincmd) state(ctx context.Context, fs *flag.FlagSet, args []string) error {
	ta := c.treeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	t, err := c.open(ctx, ta)
	if err != nil {
		return err
	}
	n, err := t.Len(ctx)
	if err != nil {
		return err
	}
	depth, err := t.Depth(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("tree", "kind", t.Kind(), "degree", t.Degree(), "len", n, "depth", depth, "readonly", t.ReadOnly())
	fmt.Println(t.State())
	return nil
}

func (c maincmd) verify(ctx context.Context, fs *flag.FlagSet, args []string) error {
	ta := c.treeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	t, err := c.open(ctx, ta)
	if err != nil {
		return err
	}
	if err = t.Verify(ctx); err != nil {
		return err
	}
	c.logger.Info("tree ok", "state", t.State())
	return nil
}

// mirror copies every node of a tree owned by another peer into the local store.
func (c maincmd) mirror(ctx context.Context, fs *flag.FlagSet, args []string) error {
	ta := c.treeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if *ta.owner == "" {
		return errors.New("must supply -owner")
	}
	t, err := c.open(ctx, ta)
	if err != nil {
		return err
	}
	n, err := t.Mirror(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("mirrored tree", "state", t.State(), "owner", *ta.owner, "added", n)
	return nil
}

// dump prints the node structure of a tree from the local store.
func (c maincmd) dump(ctx context.Context, fs *flag.FlagSet, args []string) error {
	ta := c.treeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	t, err := c.open(ctx, ta)
	if err != nil {
		return err
	}
	root, ok := t.Root()
	if !ok {
		fmt.Println("empty")
		return nil
	}
	return doDump(ctx, c.s, root, 0)
}

func doDump(ctx context.Context, g hlt.Getter, ref hlt.Ref, depth int) error {
	blob, err := g.Get(ctx, ref)
	if err != nil {
		return errors.Wrapf(err, "getting node %s", ref)
	}
	n, err := tree.Decode(blob)
	if err != nil {
		return errors.Wrapf(err, "decoding node %s", ref)
	}

	indent := strings.Repeat("  ", depth)
	fmt.Printf("%s%s (%s, %d keys)\n", indent, ref.Identifier(), n.Kind, n.NumElements())
	for i, k := range n.Keys {
		if !n.IsLeaf() {
			if err = doDump(ctx, g, n.Children[i], depth+1); err != nil {
				return err
			}
		}
		if n.Kind == tree.MapKind {
			fmt.Printf("%s  %q=%q\n", indent, k, n.Values[i])
		} else {
			fmt.Printf("%s  %q\n", indent, k)
		}
	}
	if !n.IsLeaf() {
		return doDump(ctx, g, n.Children[len(n.Children)-1], depth+1)
	}
	return nil
}
