package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bobg/hlt/peer"
)

// serve answers chunk requests from peers,
// and exposes metrics at /metrics.
func (c maincmd) serve(ctx context.Context, fs *flag.FlagSet, args []string) error {
	addr := fs.String("addr", ":2969", "listen address")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	mux := http.NewServeMux()
	mux.Handle(peer.ChunkPath, peer.NewServer(c.s, c.logger))
	mux.Handle("/metrics", promhttp.Handler())

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", *addr)
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	c.logger.Info("listening", "addr", lis.Addr().String(), "identity", c.conf.identity)

	err = srv.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
