package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/hlt"
	"github.com/bobg/hlt/peer"
	"github.com/bobg/hlt/store"
	"github.com/bobg/hlt/tree"
)

type config struct {
	raw map[string]interface{}
	typ string

	degree   int
	kind     tree.Kind
	identity hlt.PeerID
	peers    peer.StaticDirectory
}

func readConfig(filename string) (*config, error) {
	var raw map[string]interface{}
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "opening config file %s", filename)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()
	if err = dec.Decode(&raw); err != nil {
		return nil, errors.Wrapf(err, "decoding config file %s", filename)
	}
	return parseConfig(raw)
}

func parseConfig(raw map[string]interface{}) (*config, error) {
	conf := &config{raw: raw, peers: make(peer.StaticDirectory)}

	typ, ok := raw["type"].(string)
	if !ok {
		return nil, errors.New("config missing `type` parameter")
	}
	conf.typ = typ

	degree, _, err := store.Int(raw, "degree")
	if err != nil {
		return nil, err
	}
	conf.degree = degree

	if conf.kind, err = parseKind(raw["kind"]); err != nil {
		return nil, err
	}

	if id, ok := raw["identity"].(string); ok {
		conf.identity = hlt.PeerID(id)
		if !hlt.ValidPeerID(conf.identity) {
			return nil, fmt.Errorf("invalid identity %q", id)
		}
	}

	if peers, ok := raw["peers"].(map[string]interface{}); ok {
		for id, u := range peers {
			us, ok := u.(string)
			if !ok {
				return nil, fmt.Errorf("peer %s has a %T address, want a string", id, u)
			}
			conf.peers[hlt.PeerID(id)] = us
		}
	}

	return conf, nil
}

func parseKind(v interface{}) (tree.Kind, error) {
	switch v {
	case nil, "set":
		return tree.SetKind, nil
	case "map":
		return tree.MapKind, nil
	}
	return 0, fmt.Errorf("unknown tree kind %v", v)
}

func (c *config) store(ctx context.Context) (hlt.Store, error) {
	return store.Create(ctx, c.typ, c.raw)
}
