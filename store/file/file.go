// Package file implements a blob store as a file hierarchy.
package file

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bobg/flock"
	"github.com/pkg/errors"

	"github.com/bobg/hlt"
	"github.com/bobg/hlt/anchor"
	"github.com/bobg/hlt/store"
)

var _ anchor.Store = &Store{}

// Store is a file-based implementation of a blob store.
//
// Blobs live at blobs/XX/XXXX/<hex ref>.
// Each anchor is a file under anchors/,
// named by the hex encoding of the anchor name,
// holding one "time ref" line per update.
// Anchor files are guarded by flock,
// so several processes may share a Store.
type Store struct {
	root    string
	flocker flock.Locker
}

// New produces a new Store storing data beneath root.
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) blobroot() string {
	return filepath.Join(s.root, "blobs")
}

func (s *Store) blobpath(ref hlt.Ref) string {
	h := ref.String()
	return filepath.Join(s.blobroot(), h[:2], h[:4], h)
}

// Get gets the blob with hash ref.
func (s *Store) Get(_ context.Context, ref hlt.Ref) (hlt.Blob, error) {
	path := s.blobpath(ref)
	blob, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, hlt.ErrNotFound
	}
	return blob, errors.Wrapf(err, "reading %s", path)
}

// Put adds a blob to the store if it wasn't already present.
// The blob is written to a temporary file and renamed into place,
// so a reader never sees a partial blob.
func (s *Store) Put(_ context.Context, b hlt.Blob) (hlt.Ref, bool, error) {
	var (
		ref  = b.Ref()
		path = s.blobpath(ref)
		dir  = filepath.Dir(path)
	)

	if _, err := os.Stat(path); err == nil {
		return ref, false, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return hlt.Zero, false, errors.Wrapf(err, "ensuring path %s exists", dir)
	}

	f, err := os.CreateTemp(dir, "tmp")
	if err != nil {
		return hlt.Zero, false, errors.Wrapf(err, "creating temp file in %s", dir)
	}
	tmpname := f.Name()
	defer os.Remove(tmpname)

	if _, err = f.Write(b); err != nil {
		f.Close()
		return hlt.Zero, false, errors.Wrapf(err, "writing data to %s", tmpname)
	}
	if err = f.Close(); err != nil {
		return hlt.Zero, false, errors.Wrapf(err, "closing %s", tmpname)
	}
	if err = os.Rename(tmpname, path); err != nil {
		return hlt.Zero, false, errors.Wrapf(err, "renaming %s to %s", tmpname, path)
	}

	return ref, true, nil
}

// sortedEntries lists the entries of dir,
// keeping those that pass keep,
// in name order.
// A missing dir has no entries.
func sortedEntries(dir string, keep func(os.DirEntry) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading dir %s", dir)
	}
	var names []string
	for _, e := range entries {
		if keep(e) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func isHexDir(n int) func(os.DirEntry) bool {
	return func(e os.DirEntry) bool {
		if !e.IsDir() || len(e.Name()) != n {
			return false
		}
		_, err := hex.DecodeString(e.Name())
		return err == nil
	}
}

func isBlobFile(e os.DirEntry) bool {
	return !e.IsDir() && len(e.Name()) == 2*len(hlt.Zero)
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start hlt.Ref, f func(hlt.Ref) error) error {
	startHex := start.String()

	tops, err := sortedEntries(s.blobroot(), isHexDir(2))
	if err != nil {
		return err
	}
	for _, top := range tops {
		if top < startHex[:2] {
			continue
		}
		mids, err := sortedEntries(filepath.Join(s.blobroot(), top), isHexDir(4))
		if err != nil {
			return err
		}
		for _, mid := range mids {
			if mid < startHex[:4] {
				continue
			}
			names, err := sortedEntries(filepath.Join(s.blobroot(), top, mid), isBlobFile)
			if err != nil {
				return err
			}
			for _, name := range names {
				if name <= startHex {
					continue
				}
				ref, err := hlt.RefFromHex(name)
				if err != nil {
					continue
				}
				if err = ctx.Err(); err != nil {
					return err
				}
				if err = f(ref); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *Store) anchorroot() string {
	return filepath.Join(s.root, "anchors")
}

func (s *Store) anchorpath(name string) string {
	return filepath.Join(s.anchorroot(), hex.EncodeToString([]byte(name)))
}

// File lock must be held.
func readAnchorFile(path string) ([]hlt.TimeRef, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	var result []hlt.TimeRef
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			return nil, errors.Errorf("malformed line in %s: %q", path, sc.Text())
		}
		at, err := time.Parse(time.RFC3339Nano, fields[0])
		if err != nil {
			return nil, errors.Wrapf(err, "parsing time in %s", path)
		}
		ref, err := hlt.RefFromHex(fields[1])
		if err != nil {
			return nil, errors.Wrapf(err, "parsing ref in %s", path)
		}
		result = append(result, hlt.TimeRef{T: at, R: ref})
	}
	if err = sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	sort.SliceStable(result, func(i, j int) bool { return result[i].T.Before(result[j].T) })
	return result, nil
}

func (s *Store) readAnchor(name string) ([]hlt.TimeRef, error) {
	path := s.anchorpath(name)
	if err := os.MkdirAll(s.anchorroot(), 0755); err != nil {
		return nil, errors.Wrapf(err, "ensuring %s exists", s.anchorroot())
	}
	if err := s.flocker.Lock(path); err != nil {
		return nil, errors.Wrapf(err, "locking %s", path)
	}
	defer s.flocker.Unlock(path)

	return readAnchorFile(path)
}

// GetAnchor implements anchor.Getter.
func (s *Store) GetAnchor(_ context.Context, name string, at time.Time) (hlt.Ref, error) {
	pairs, err := s.readAnchor(name)
	if err != nil {
		return hlt.Zero, err
	}
	return hlt.FindAnchor(pairs, at)
}

// PutAnchor implements anchor.Store.
func (s *Store) PutAnchor(_ context.Context, name string, ref hlt.Ref, at time.Time) error {
	path := s.anchorpath(name)
	if err := os.MkdirAll(s.anchorroot(), 0755); err != nil {
		return errors.Wrapf(err, "ensuring %s exists", s.anchorroot())
	}
	if err := s.flocker.Lock(path); err != nil {
		return errors.Wrapf(err, "locking %s", path)
	}
	defer s.flocker.Unlock(path)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%s %s\n", at.UTC().Format(time.RFC3339Nano), ref)
	return errors.Wrapf(err, "appending to %s", path)
}

// ListAnchors implements anchor.Getter.
func (s *Store) ListAnchors(_ context.Context, start string, f func(string, hlt.Ref, time.Time) error) error {
	files, err := sortedEntries(s.anchorroot(), func(e os.DirEntry) bool { return !e.IsDir() })
	if err != nil {
		return err
	}

	var names []string
	for _, file := range files {
		b, err := hex.DecodeString(file)
		if err != nil {
			continue
		}
		if name := string(b); name > start {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		pairs, err := s.readAnchor(name)
		if err != nil {
			return err
		}
		for _, p := range pairs {
			if err = f(name, p.R, p.T); err != nil {
				return err
			}
		}
	}
	return nil
}

func init() {
	store.Register("file", func(_ context.Context, conf map[string]interface{}) (hlt.Store, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(root), nil
	})
}
