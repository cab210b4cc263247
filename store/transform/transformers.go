package transform

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/bobg/hlt"
)

// LZW is a Transformer implementing lzw compression.
type LZW struct {
	Order lzw.Order
}

// In implements Transformer.In.
func (l LZW) In(_ context.Context, inp hlt.Blob) (hlt.Blob, error) {
	buf := new(bytes.Buffer)
	w := lzw.NewWriter(buf, l.Order, 8)
	if _, err := w.Write(inp); err != nil {
		return nil, errors.Wrap(err, "compressing")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "finishing compression")
	}
	return buf.Bytes(), nil
}

// Out implements Transformer.Out.
func (l LZW) Out(_ context.Context, inp hlt.Blob) (hlt.Blob, error) {
	r := lzw.NewReader(bytes.NewReader(inp), l.Order, 8)
	defer r.Close()
	return io.ReadAll(r)
}

// Flate is a Transformer implementing RFC1951 DEFLATE compression.
type Flate struct {
	Level int
}

// In implements Transformer.In.
func (f Flate) In(_ context.Context, inp hlt.Blob) (hlt.Blob, error) {
	buf := new(bytes.Buffer)
	level := f.Level
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		level = flate.DefaultCompression
	}
	w, err := flate.NewWriter(buf, level)
	if err != nil {
		return nil, err
	}
	if _, err = w.Write(inp); err != nil {
		return nil, errors.Wrap(err, "compressing")
	}
	if err = w.Close(); err != nil {
		return nil, errors.Wrap(err, "finishing compression")
	}
	return buf.Bytes(), nil
}

// Out implements Transformer.Out.
func (f Flate) Out(_ context.Context, inp hlt.Blob) (hlt.Blob, error) {
	r := flate.NewReader(bytes.NewReader(inp))
	defer r.Close()
	return io.ReadAll(r)
}
