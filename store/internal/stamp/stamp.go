// Package stamp renders times as fixed-width decimal strings
// that sort in reverse chronological order,
// for stores that list anchor entries by key
// and want the latest first.
package stamp

import (
	"fmt"
	"math/big"
	"time"

	"github.com/pkg/errors"
)

// Width is the length of every stamp.
// A stamp is the number of nanoseconds before the latest representable time,
// zero-padded to Width digits.
const Width = 30

var nanosPerSecond, maxTimeNanos *big.Int

func timeToNanos(t time.Time) *big.Int {
	n := big.NewInt(t.Unix())
	n.Mul(n, nanosPerSecond)
	return n.Add(n, big.NewInt(int64(t.Nanosecond())))
}

func nanosToTime(n *big.Int) time.Time {
	var secs, nanos big.Int
	secs.DivMod(n, nanosPerSecond, &nanos)
	return time.Unix(secs.Int64(), nanos.Int64())
}

// FromTime renders t as a stamp.
func FromTime(t time.Time) string {
	n := timeToNanos(t)
	n.Sub(maxTimeNanos, n)
	return fmt.Sprintf("%030s", n)
}

// ToTime parses a stamp.
func ToTime(s string) (time.Time, error) {
	var n big.Int
	if _, ok := n.SetString(s, 10); !ok {
		return time.Time{}, errors.Errorf("malformed timestamp %q", s)
	}
	n.Sub(maxTimeNanos, &n)
	return nanosToTime(&n), nil
}

func init() {
	// This is from https://stackoverflow.com/a/32620397
	maxTime := time.Unix(1<<63-1-int64((1969*365+1969/4-1969/100+1969/400)*24*60*60), 999999999)

	nanosPerSecond = big.NewInt(int64(time.Second))
	maxTimeNanos = timeToNanos(maxTime) // Must call after nanosPerSecond is initialized
}
