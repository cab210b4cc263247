package hlt

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

type (
	// Blob is the type of a blob.
	Blob []byte

	// Ref is the ref of a blob: its sha256 hash.
	Ref [sha256.Size]byte

	// PeerID identifies a host in the peer-to-peer network.
	// It is the base64 encoding of the host's public-key identity.
	PeerID string
)

// Ref computes the Ref of a blob.
func (b Blob) Ref() Ref {
	return sha256.Sum256(b)
}

// Zero is the zero value of a Ref.
var Zero Ref

// IdentifierPrefix begins every chunk identifier.
const IdentifierPrefix = "d:"

var identifierLen = len(IdentifierPrefix) + base64.StdEncoding.EncodedLen(sha256.Size)

func (r Ref) String() string {
	return hex.EncodeToString(r[:])
}

// IsZero tells whether r is the zero Ref.
func (r Ref) IsZero() bool {
	return r == Zero
}

func (r Ref) Less(other Ref) bool {
	return bytes.Compare(r[:], other[:]) < 0
}

// Identifier renders r in the portable chunk identifier form:
// IdentifierPrefix followed by the base64 encoding of the digest.
func (r Ref) Identifier() string {
	return IdentifierPrefix + base64.StdEncoding.EncodeToString(r[:])
}

func (r *Ref) FromHex(s string) error {
	if len(s) != 2*sha256.Size {
		return errors.New("wrong length")
	}
	_, err := hex.Decode(r[:], []byte(s))
	return err
}

func RefFromBytes(b []byte) Ref {
	var out Ref
	copy(out[:], b)
	return out
}

func RefFromHex(s string) (Ref, error) {
	var out Ref
	err := out.FromHex(s)
	return out, err
}

// ParseIdentifier parses a chunk identifier produced by Ref.Identifier.
// The check is purely syntactic:
// a valid identifier says nothing about whether the chunk can be resolved.
func ParseIdentifier(s string) (Ref, error) {
	if len(s) != identifierLen || !strings.HasPrefix(s, IdentifierPrefix) {
		return Zero, errors.Wrapf(ErrInvalidKey, "malformed chunk identifier %q", s)
	}
	b, err := base64.StdEncoding.DecodeString(s[len(IdentifierPrefix):])
	if err != nil {
		return Zero, errors.Wrapf(ErrInvalidKey, "decoding chunk identifier %q: %s", s, err)
	}
	if len(b) != sha256.Size {
		return Zero, errors.Wrapf(ErrInvalidKey, "chunk identifier %q has %d-byte payload", s, len(b))
	}
	return RefFromBytes(b), nil
}

// ValidIdentifier tells whether s has the shape of a chunk identifier.
func ValidIdentifier(s string) bool {
	_, err := ParseIdentifier(s)
	return err == nil
}

// ValidPeerID tells whether id is a non-empty base64 string.
func ValidPeerID(id PeerID) bool {
	if id == "" {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(string(id))
	return err == nil
}
