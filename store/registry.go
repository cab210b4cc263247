package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bobg/hlt"
)

// Factory creates a store from its configuration.
type Factory func(context.Context, map[string]interface{}) (hlt.Store, error)

var registry = make(map[string]Factory)

// Register makes a store type available to Create.
// Store packages call it from init.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create creates a store of the registered type key.
func Create(ctx context.Context, key string, conf map[string]interface{}) (hlt.Store, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}

// CreateNested creates the store described by conf["nested"],
// for use by store types that wrap another store.
func CreateNested(ctx context.Context, conf map[string]interface{}) (hlt.Store, error) {
	nested, ok := conf["nested"].(map[string]interface{})
	if !ok {
		return nil, errors.New(`missing "nested" parameter`)
	}
	nestedType, ok := nested["type"].(string)
	if !ok {
		return nil, errors.New(`"nested" parameter missing "type"`)
	}
	s, err := Create(ctx, nestedType, nested)
	return s, errors.Wrap(err, "creating nested store")
}

// Int reads an integer parameter from conf.
// Configuration decoded from JSON may carry numbers as json.Number or float64.
// The boolean is false if the parameter is absent.
func Int(conf map[string]interface{}, name string) (int, bool, error) {
	switch v := conf[name].(type) {
	case nil:
		return 0, false, nil
	case int:
		return v, true, nil
	case float64:
		return int(v), true, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false, errors.Wrapf(err, `parsing "%s"`, name)
		}
		return int(n), true, nil
	default:
		return 0, false, fmt.Errorf(`parameter "%s" is a %T, not a number`, name, v)
	}
}
