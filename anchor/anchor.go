// Package anchor describes blob stores that can also keep anchors:
// named, timestamped references to blobs.
// A hash-linked tree's root changes with every mutation;
// an anchor gives the lineage of roots a stable name.
package anchor

import (
	"context"
	"time"

	"github.com/bobg/hlt"
)

type Getter interface {
	// GetAnchor returns the latest ref associated with the given anchor
	// at or before the given time.
	// It returns hlt.ErrNotFound if there is none.
	GetAnchor(context.Context, string, time.Time) (hlt.Ref, error)

	// ListAnchors calls a function for each anchor/time/ref triple in the store,
	// ordered by anchor name and then by time,
	// beginning with the first anchor _after_ the specified one.
	ListAnchors(context.Context, string, func(string, hlt.Ref, time.Time) error) error
}

type Store interface {
	hlt.Store
	Getter

	// PutAnchor associates ref with the given anchor as of the given time.
	PutAnchor(ctx context.Context, name string, ref hlt.Ref, at time.Time) error
}
