// Package peer moves chunks between hosts over HTTP.
//
// A Server answers GET /chunk/{identifier} from its local store.
// A Client asks the Server of a chunk's owner for chunks that are not available locally,
// and implements hlt.Fetcher for use in an hlt.Resolver.
package peer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bobg/hlt"
)

// ChunkPath is the path prefix under which a Server serves chunks.
const ChunkPath = "/chunk/"

// Directory tells where to reach a peer.
type Directory interface {
	// Lookup returns the base URL of the peer's Server.
	// The boolean is false if the peer is unknown.
	Lookup(hlt.PeerID) (string, bool)
}

// StaticDirectory is a fixed Directory.
type StaticDirectory map[hlt.PeerID]string

func (d StaticDirectory) Lookup(id hlt.PeerID) (string, bool) {
	u, ok := d[id]
	return u, ok
}

var (
	served = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlt_peer_chunks_served_total",
		Help: "Chunk requests answered, by HTTP status.",
	}, []string{"code"})

	fetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlt_peer_chunks_fetched_total",
		Help: "Remote chunk fetches, by result.",
	}, []string{"result"})
)
