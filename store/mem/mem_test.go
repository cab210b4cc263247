package mem

import (
	"context"
	"testing"

	"github.com/bobg/hlt"
	"github.com/bobg/hlt/testutil"
)

func TestStore(t *testing.T) {
	testutil.ReadWrite(context.Background(), t, New(), 500)
}

func TestAllRefs(t *testing.T) {
	testutil.AllRefs(context.Background(), t, func() hlt.Store { return New() })
}

func TestAnchors(t *testing.T) {
	testutil.Anchors(context.Background(), t, New())
}
