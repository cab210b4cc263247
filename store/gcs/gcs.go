// Package gcs implements a blob store on Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/hex"
	stderrs "errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bobg/hlt"
	"github.com/bobg/hlt/anchor"
	"github.com/bobg/hlt/store"
	"github.com/bobg/hlt/store/internal/stamp"
)

var _ anchor.Store = &Store{}

// Store is a Google Cloud Storage-based implementation of a blob store.
//
// A blob is the object "b:<hex ref>".
// Each anchor update is the object "a:<hex name>:<stamp>" holding the 32-byte ref,
// where the stamp sorts in reverse chronological order.
type Store struct {
	bucket *storage.BucketHandle
}

// New produces a new Store.
func New(bucket *storage.BucketHandle) *Store {
	return &Store{bucket: bucket}
}

// Get gets the blob with hash ref.
func (s *Store) Get(ctx context.Context, ref hlt.Ref) (hlt.Blob, error) {
	name := blobObjName(ref)
	r, err := s.bucket.Object(name).NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, hlt.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening object %s", name)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	return b, errors.Wrapf(err, "reading contents of object %s", name)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b hlt.Blob) (hlt.Ref, bool, error) {
	var (
		ref  = b.Ref()
		name = blobObjName(ref)
		obj  = s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true})
		w    = obj.NewWriter(ctx)
	)

	if _, err := w.Write(b); err != nil {
		w.Close()
		if isPreconditionFailed(err) {
			return ref, false, nil
		}
		return hlt.Zero, false, errors.Wrapf(err, "writing object %s", name)
	}

	// Upload errors, including a failed precondition, are reported by Close.
	err := w.Close()
	if isPreconditionFailed(err) {
		return ref, false, nil
	}
	if err != nil {
		return hlt.Zero, false, errors.Wrapf(err, "writing object %s", name)
	}
	return ref, true, nil
}

func isPreconditionFailed(err error) bool {
	var e *googleapi.Error
	return stderrs.As(err, &e) && e.Code == http.StatusPreconditionFailed
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start hlt.Ref, f func(hlt.Ref) error) error {
	// Google Cloud Storage iterators have no API for starting in the middle of a bucket.
	// But they can filter by object-name prefix.
	// So we take (the hex encoding of) start and repeatedly compute prefixes for the objects we want.
	// If start is e67a, for example, the sequence of generated prefixes is:
	//   e67b e67c e67d e67e e67f
	//   e68 e69 e6a e6b e6c e6d e6e e6f
	//   e7 e8 e9 ea eb ec ed ee ef
	//   f
	return eachHexPrefix(start.String(), func(prefix string) error {
		return s.listRefs(ctx, prefix, f)
	})
}

func (s *Store) listRefs(ctx context.Context, prefix string, f func(hlt.Ref) error) error {
	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: blobPrefix + prefix})
	for {
		obj, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "iterating over blob objects")
		}
		ref, err := hlt.RefFromHex(strings.TrimPrefix(obj.Name, blobPrefix))
		if err != nil {
			return errors.Wrapf(err, "decoding object name %s", obj.Name)
		}
		if err = f(ref); err != nil {
			return err
		}
	}
}

// GetAnchor gets the latest blob ref for a given anchor as of a given time.
func (s *Store) GetAnchor(ctx context.Context, name string, at time.Time) (hlt.Ref, error) {
	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: anchorPrefix(name)})

	// Anchors come back in reverse chronological order.
	// Find the first one whose timestamp is at or before the requested time.
	for {
		attrs, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return hlt.Zero, hlt.ErrNotFound
		}
		if err != nil {
			return hlt.Zero, errors.Wrap(err, "iterating over anchor objects")
		}
		_, when, err := parseAnchorObjName(attrs.Name)
		if err != nil {
			return hlt.Zero, errors.Wrapf(err, "decoding object name %s", attrs.Name)
		}
		if when.After(at) {
			continue
		}
		return s.getAnchorRef(ctx, attrs.Name)
	}
}

// PutAnchor adds a new ref for a given anchor as of a given time.
// A second ref for the same anchor and time replaces the first.
func (s *Store) PutAnchor(ctx context.Context, name string, ref hlt.Ref, at time.Time) error {
	objName := anchorObjName(name, at)
	w := s.bucket.Object(objName).NewWriter(ctx)
	if _, err := w.Write(ref[:]); err != nil {
		w.Close()
		return errors.Wrapf(err, "writing object %s", objName)
	}
	return errors.Wrapf(w.Close(), "writing object %s", objName)
}

// ListAnchors lists all anchors in the store, in lexical order,
// each anchor's refs in chronological order.
func (s *Store) ListAnchors(ctx context.Context, start string, f func(string, hlt.Ref, time.Time) error) error {
	type entry struct {
		name    string
		at      time.Time
		objName string
	}
	var entries []entry

	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: "a:"})
	for {
		attrs, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return errors.Wrap(err, "iterating over anchor objects")
		}
		name, at, err := parseAnchorObjName(attrs.Name)
		if err != nil {
			return errors.Wrapf(err, "decoding object name %s", attrs.Name)
		}
		if name > start {
			entries = append(entries, entry{name: name, at: at, objName: attrs.Name})
		}
	}

	// Hex-encoded names do not sort like the names themselves once the ":" separator follows them.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].name != entries[j].name {
			return entries[i].name < entries[j].name
		}
		return entries[i].at.Before(entries[j].at)
	})

	for _, e := range entries {
		ref, err := s.getAnchorRef(ctx, e.objName)
		if err != nil {
			return err
		}
		if err = f(e.name, ref, e.at); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) getAnchorRef(ctx context.Context, objName string) (hlt.Ref, error) {
	r, err := s.bucket.Object(objName).NewReader(ctx)
	if err != nil {
		return hlt.Zero, errors.Wrapf(err, "opening object %s", objName)
	}
	defer r.Close()

	var ref hlt.Ref
	if r.Attrs.Size != int64(len(ref)) {
		return hlt.Zero, errors.Errorf("object %s has wrong size %d (want %d)", objName, r.Attrs.Size, len(ref))
	}
	_, err = io.ReadFull(r, ref[:])
	return ref, errors.Wrapf(err, "reading contents of object %s", objName)
}

func eachHexPrefix(prefix string, f func(string) error) error {
	prefix = strings.ToLower(prefix)
	for len(prefix) > 0 {
		next := hexval(prefix[len(prefix)-1]) + 1
		prefix = prefix[:len(prefix)-1]
		for c := next; c < 16; c++ {
			if err := f(prefix + string(hexdigit(c))); err != nil {
				return err
			}
		}
	}
	return nil
}

func hexval(b byte) int {
	switch {
	case '0' <= b && b <= '9':
		return int(b - '0')
	case 'a' <= b && b <= 'f':
		return int(10 + b - 'a')
	}
	return 0
}

func hexdigit(n int) byte {
	if n < 10 {
		return byte(n + '0')
	}
	return byte(n - 10 + 'a')
}

const blobPrefix = "b:"

func blobObjName(ref hlt.Ref) string {
	return blobPrefix + ref.String()
}

func anchorPrefix(name string) string {
	return "a:" + hex.EncodeToString([]byte(name)) + ":"
}

func anchorObjName(name string, at time.Time) string {
	return anchorPrefix(name) + stamp.FromTime(at)
}

func parseAnchorObjName(objName string) (string, time.Time, error) {
	parts := strings.Split(objName, ":")
	if len(parts) != 3 || parts[0] != "a" || len(parts[2]) != stamp.Width {
		return "", time.Time{}, errors.New("malformed name")
	}
	name, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "hex-decoding anchor")
	}
	at, err := stamp.ToTime(parts[2])
	return string(name), at, err
}

func init() {
	store.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (hlt.Store, error) {
		creds, ok := conf["creds"].(string)
		if !ok {
			return nil, errors.New(`missing "creds" parameter`)
		}
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		c, err := storage.NewClient(ctx, option.WithCredentialsFile(creds))
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(c.Bucket(bucketName)), nil
	})
}
