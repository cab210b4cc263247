// Package bt implements a blob store on Google Cloud Bigtable.
package bt

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/bigtable"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/bobg/hlt"
	"github.com/bobg/hlt/anchor"
	"github.com/bobg/hlt/store"
	"github.com/bobg/hlt/store/internal/stamp"
)

var _ anchor.Store = &Store{}

// Store is a Google Cloud Bigtable-backed implementation of anchor.Store.
//
// Each blob is the row "b:<hex ref>".
// Each anchor update is the row "a:<hex name>:<stamp>",
// where the stamp sorts in reverse chronological order.
type Store struct {
	t *bigtable.Table
}

const (
	anchorcol = "anchor"
	anchorfam = "anchor"
	blobcol   = "blob"
	blobfam   = "blob"
)

// New produces a new Store.
// The client library connects to an emulator instead of Cloud Bigtable
// when BIGTABLE_EMULATOR_HOST is set.
// The table must have the column families created by CreateTable.
func New(t *bigtable.Table) *Store {
	return &Store{t: t}
}

// CreateTable creates a table suitable for New.
func CreateTable(ctx context.Context, ac *bigtable.AdminClient, table string) error {
	if err := ac.CreateTable(ctx, table); err != nil {
		return errors.Wrapf(err, "creating table %s", table)
	}
	for _, fam := range []string{blobfam, anchorfam} {
		if err := ac.CreateColumnFamily(ctx, table, fam); err != nil {
			return errors.Wrapf(err, "creating column family %s", fam)
		}
	}
	return nil
}

// Get gets the blob with hash ref.
func (s *Store) Get(ctx context.Context, ref hlt.Ref) (hlt.Blob, error) {
	row, err := s.t.ReadRow(ctx, blobKey(ref), bigtable.RowFilter(bigtable.LatestNFilter(1)))
	if err != nil {
		return nil, errors.Wrapf(err, "reading row %s", ref)
	}
	items := row[blobfam]
	if len(items) == 0 {
		return nil, hlt.ErrNotFound
	}
	return hlt.Blob(items[0].Value), nil
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, blob hlt.Blob) (hlt.Ref, bool, error) {
	mut := bigtable.NewMutation()
	mut.Set(blobfam, blobcol, bigtable.Now(), blob)

	// Apply mut only if the row has no cells yet.
	cmut := bigtable.NewCondMutation(bigtable.LatestNFilter(1), nil, mut)

	var alreadyPresent bool
	ref := blob.Ref()
	err := s.t.Apply(ctx, blobKey(ref), cmut, bigtable.GetCondMutationResult(&alreadyPresent))
	if err != nil {
		return hlt.Zero, false, errors.Wrapf(err, "writing row %s", ref)
	}
	return ref, !alreadyPresent, nil
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start hlt.Ref, f func(hlt.Ref) error) error {
	var innerErr error
	rowFn := func(row bigtable.Row) bool {
		key := row.Key()
		ref, err := refFromKey(key)
		if err != nil {
			innerErr = errors.Wrapf(err, "extracting ref from key %s", key)
			return false
		}
		if innerErr = f(ref); innerErr != nil {
			return false
		}
		return true
	}

	// Keys after start's, up to the end of the blob rows.
	rng := bigtable.NewRange(blobKey(start)+"\x00", "b;")
	err := s.t.ReadRows(ctx, rng, rowFn, bigtable.RowFilter(bigtable.StripValueFilter()))
	if err != nil {
		return errors.Wrap(err, "reading blob rows")
	}
	return innerErr
}

// GetAnchor gets the latest blob ref for a given anchor as of a given time.
func (s *Store) GetAnchor(ctx context.Context, name string, at time.Time) (hlt.Ref, error) {
	var (
		found    *hlt.Ref
		innerErr error
	)

	// Anchor rows come back in reverse chronological order.
	// Find the first one whose timestamp is at or before the requested time.
	rowFn := func(row bigtable.Row) bool {
		key := row.Key()
		_, when, err := anchorFromKey(key)
		if err != nil {
			innerErr = errors.Wrapf(err, "parsing anchor key %s", key)
			return false
		}
		if when.After(at) {
			return true
		}
		ref, err := anchorRef(row)
		if err != nil {
			innerErr = errors.Wrapf(err, "reading anchor row %s", key)
			return false
		}
		found = &ref
		return false
	}

	err := s.t.ReadRows(ctx, bigtable.PrefixRange(anchorPrefix(name)), rowFn, bigtable.RowFilter(bigtable.LatestNFilter(1)))
	if err != nil {
		return hlt.Zero, errors.Wrap(err, "reading anchor rows")
	}
	if innerErr != nil {
		return hlt.Zero, innerErr
	}
	if found == nil {
		return hlt.Zero, hlt.ErrNotFound
	}
	return *found, nil
}

// PutAnchor adds a new ref for a given anchor as of a given time.
// A second ref for the same anchor and time replaces the first.
func (s *Store) PutAnchor(ctx context.Context, name string, ref hlt.Ref, at time.Time) error {
	mut := bigtable.NewMutation()
	mut.DeleteCellsInColumn(anchorfam, anchorcol)
	mut.Set(anchorfam, anchorcol, bigtable.Now(), ref[:])
	return errors.Wrapf(s.t.Apply(ctx, anchorKey(name, at), mut), "writing anchor %s", name)
}

// ListAnchors lists all anchors in the store, in lexical order,
// each anchor's refs in chronological order.
func (s *Store) ListAnchors(ctx context.Context, start string, f func(string, hlt.Ref, time.Time) error) error {
	type entry struct {
		name string
		ref  hlt.Ref
		at   time.Time
	}
	var (
		entries  []entry
		innerErr error
	)

	rowFn := func(row bigtable.Row) bool {
		key := row.Key()
		name, at, err := anchorFromKey(key)
		if err != nil {
			innerErr = errors.Wrapf(err, "parsing anchor key %s", key)
			return false
		}
		if name <= start {
			return true
		}
		ref, err := anchorRef(row)
		if err != nil {
			innerErr = errors.Wrapf(err, "reading anchor row %s", key)
			return false
		}
		entries = append(entries, entry{name: name, ref: ref, at: at})
		return true
	}

	err := s.t.ReadRows(ctx, bigtable.PrefixRange("a:"), rowFn, bigtable.RowFilter(bigtable.LatestNFilter(1)))
	if err != nil {
		return errors.Wrap(err, "reading anchor rows")
	}
	if innerErr != nil {
		return innerErr
	}

	// Hex-encoded names do not sort like the names themselves once the ":" separator follows them.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].name != entries[j].name {
			return entries[i].name < entries[j].name
		}
		return entries[i].at.Before(entries[j].at)
	})

	for _, e := range entries {
		if err = f(e.name, e.ref, e.at); err != nil {
			return err
		}
	}
	return nil
}

func anchorRef(row bigtable.Row) (hlt.Ref, error) {
	items := row[anchorfam]
	if len(items) == 0 {
		return hlt.Zero, errors.New("empty anchor row")
	}
	if len(items[0].Value) != len(hlt.Zero) {
		return hlt.Zero, fmt.Errorf("anchor value has %d bytes", len(items[0].Value))
	}
	return hlt.RefFromBytes(items[0].Value), nil
}

func blobKey(ref hlt.Ref) string {
	return "b:" + ref.String()
}

func refFromKey(key string) (hlt.Ref, error) {
	if !strings.HasPrefix(key, "b:") {
		return hlt.Zero, errors.New("not a blob key")
	}
	return hlt.RefFromHex(key[2:])
}

func anchorPrefix(name string) string {
	return "a:" + hex.EncodeToString([]byte(name)) + ":"
}

func anchorKey(name string, at time.Time) string {
	return anchorPrefix(name) + stamp.FromTime(at)
}

func anchorFromKey(key string) (string, time.Time, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "a" || len(parts[2]) != stamp.Width {
		return "", time.Time{}, errors.New("malformed key")
	}
	name, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "hex-decoding anchor")
	}
	at, err := stamp.ToTime(parts[2])
	return string(name), at, err
}

func init() {
	store.Register("bt", func(ctx context.Context, conf map[string]interface{}) (hlt.Store, error) {
		project, ok := conf["project"].(string)
		if !ok {
			return nil, errors.New(`missing "project" parameter`)
		}
		instance, ok := conf["instance"].(string)
		if !ok {
			return nil, errors.New(`missing "instance" parameter`)
		}
		table, ok := conf["table"].(string)
		if !ok {
			return nil, errors.New(`missing "table" parameter`)
		}

		var options []option.ClientOption
		if creds, ok := conf["creds"].(string); ok {
			options = append(options, option.WithCredentialsFile(creds))
		}

		if create, _ := conf["create"].(bool); create {
			ac, err := bigtable.NewAdminClient(ctx, project, instance, options...)
			if err != nil {
				return nil, errors.Wrap(err, "creating bigtable admin client")
			}
			defer ac.Close()
			if err = CreateTable(ctx, ac, table); err != nil {
				return nil, err
			}
		}

		c, err := bigtable.NewClient(ctx, project, instance, options...)
		if err != nil {
			return nil, errors.Wrap(err, "creating bigtable client")
		}
		return New(c.Open(table)), nil
	})
}
