package hlt

import (
	"context"
	"errors"
)

// Getter is a read-only Store (qv).
type Getter interface {
	// Get gets a blob by its ref.
	// This is the local lookup:
	// it never consults remote peers.
	Get(context.Context, Ref) (Blob, error)

	// ListRefs calls a function for each blob ref in the store in lexicographic order,
	// beginning with the first ref _after_ the specified one.
	//
	// The calls reflect at least the set of refs
	// known at the moment ListRefs was called.
	// It is unspecified whether later changes,
	// that happen concurrently with ListRefs,
	// are reflected.
	//
	// If the callback function returns an error,
	// ListRefs exits with that error.
	ListRefs(context.Context, Ref, func(r Ref) error) error
}

// Store is a blob store.
// It stores byte sequences - "blobs" - of arbitrary length.
// Each blob can be retrieved using its "ref" as a lookup key.
// A ref is simply the SHA2-256 hash of the blob's content.
//
// Implementations must be safe for concurrent use.
type Store interface {
	Getter

	// Put adds b to the store if it was not already present.
	// It returns b's ref and a boolean that is true iff the blob had to be added.
	Put(ctx context.Context, b Blob) (ref Ref, added bool, err error)
}

// Fetcher retrieves blobs from the peer that owns them.
type Fetcher interface {
	// Fetch asks owner for the blob with the given ref.
	// It fails with ErrNotFound if the owner cannot supply it,
	// and with ErrTimeout if the owner does not answer in time.
	Fetch(ctx context.Context, ref Ref, owner PeerID) (Blob, error)
}

var (
	// ErrNotFound is the error returned
	// when a Getter tries to access a non-existent ref,
	// or when a chunk cannot be resolved locally or remotely.
	ErrNotFound = errors.New("not found")

	// ErrTimeout is the error returned when a remote fetch times out.
	// It also matches ErrNotFound under errors.Is.
	ErrTimeout error = timeoutErr{}

	// ErrInvalidKey is the error for malformed identifiers and keys.
	ErrInvalidKey = errors.New("invalid key")

	// ErrHashMismatch is the error for remote data that does not hash to the requested ref.
	ErrHashMismatch = errors.New("hash mismatch")
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "timeout" }

func (timeoutErr) Is(target error) bool {
	return target == ErrNotFound
}
