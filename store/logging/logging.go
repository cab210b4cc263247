// Package logging implements a store that delegates everything to a nested store,
// logging operations as they happen.
package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/hlt"
	"github.com/bobg/hlt/anchor"
	"github.com/bobg/hlt/store"
)

var _ anchor.Store = &Store{}

type Store struct {
	s      anchor.Store
	logger *slog.Logger
}

// New wraps s.
// A nil logger means slog.Default().
func New(s anchor.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{s: s, logger: logger.With("component", "store")}
}

func (s *Store) Get(ctx context.Context, ref hlt.Ref) (hlt.Blob, error) {
	b, err := s.s.Get(ctx, ref)
	if err != nil {
		s.logger.ErrorContext(ctx, "Get", "ref", ref, "err", err)
	} else {
		s.logger.InfoContext(ctx, "Get", "ref", ref, "len", len(b))
	}
	return b, err
}

func (s *Store) ListRefs(ctx context.Context, start hlt.Ref, f func(hlt.Ref) error) error {
	s.logger.InfoContext(ctx, "ListRefs", "start", start)
	return s.s.ListRefs(ctx, start, func(ref hlt.Ref) error {
		err := f(ref)
		if err != nil {
			s.logger.ErrorContext(ctx, "in ListRefs", "ref", ref, "err", err)
		} else {
			s.logger.DebugContext(ctx, "ListRefs", "ref", ref)
		}
		return err
	})
}

func (s *Store) Put(ctx context.Context, b hlt.Blob) (hlt.Ref, bool, error) {
	ref, added, err := s.s.Put(ctx, b)
	if err != nil {
		s.logger.ErrorContext(ctx, "Put", "err", err)
	} else {
		s.logger.InfoContext(ctx, "Put", "ref", ref, "added", added)
	}
	return ref, added, err
}

func (s *Store) GetAnchor(ctx context.Context, name string, at time.Time) (hlt.Ref, error) {
	ref, err := s.s.GetAnchor(ctx, name, at)
	if err != nil {
		s.logger.ErrorContext(ctx, "GetAnchor", "name", name, "at", at, "err", err)
	} else {
		s.logger.InfoContext(ctx, "GetAnchor", "name", name, "at", at, "ref", ref)
	}
	return ref, err
}

func (s *Store) PutAnchor(ctx context.Context, name string, ref hlt.Ref, at time.Time) error {
	err := s.s.PutAnchor(ctx, name, ref, at)
	if err != nil {
		s.logger.ErrorContext(ctx, "PutAnchor", "name", name, "ref", ref, "at", at, "err", err)
	} else {
		s.logger.InfoContext(ctx, "PutAnchor", "name", name, "ref", ref, "at", at)
	}
	return err
}

func (s *Store) ListAnchors(ctx context.Context, start string, f func(string, hlt.Ref, time.Time) error) error {
	s.logger.InfoContext(ctx, "ListAnchors", "start", start)
	return s.s.ListAnchors(ctx, start, func(name string, ref hlt.Ref, at time.Time) error {
		err := f(name, ref, at)
		if err != nil {
			s.logger.ErrorContext(ctx, "in ListAnchors", "name", name, "at", at, "ref", ref, "err", err)
		} else {
			s.logger.DebugContext(ctx, "ListAnchors", "name", name, "at", at, "ref", ref)
		}
		return err
	})
}

func init() {
	store.Register("logging", func(ctx context.Context, conf map[string]interface{}) (hlt.Store, error) {
		nested, err := store.CreateNested(ctx, conf)
		if err != nil {
			return nil, err
		}
		if a, ok := nested.(anchor.Store); ok {
			return New(a, nil), nil
		}
		return nil, errors.Errorf("nested store is a %T and not an anchor.Store", nested)
	})
}
