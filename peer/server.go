package peer

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bobg/hlt"
)

// Server serves chunks from a local store to peers.
// It never consults other peers.
type Server struct {
	g      hlt.Getter
	logger *slog.Logger
	mux    *http.ServeMux
}

var _ http.Handler = &Server{}

// NewServer produces a Server for the chunks in g.
// A nil logger means slog.Default().
func NewServer(g hlt.Getter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{g: g, logger: logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET "+ChunkPath+"{id}", s.handleChunk)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	var (
		ctx = r.Context()
		id  = r.PathValue("id")
	)

	ref, err := hlt.ParseIdentifier(id)
	if err != nil {
		s.respond(w, r, http.StatusBadRequest, "malformed chunk identifier", "id", id)
		return
	}

	blob, err := s.g.Get(ctx, ref)
	if errors.Is(err, hlt.ErrNotFound) {
		s.respond(w, r, http.StatusNotFound, "chunk not found", "ref", ref)
		return
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "getting chunk", "ref", ref, "err", err)
		s.respond(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(blob)))
	if _, err = w.Write(blob); err != nil {
		s.logger.WarnContext(ctx, "writing chunk", "ref", ref, "remote", r.RemoteAddr, "err", err)
	}
	served.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	s.logger.DebugContext(ctx, "served chunk", "ref", ref, "remote", r.RemoteAddr, "size", len(blob))
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, code int, msg string, args ...any) {
	served.WithLabelValues(strconv.Itoa(code)).Inc()
	s.logger.DebugContext(r.Context(), msg, append(args, "remote", r.RemoteAddr, "code", code)...)
	http.Error(w, msg, code)
}
