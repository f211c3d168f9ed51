package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscribeIsIdempotentPerFingerprint(t *testing.T) {
	subs := newSubscriptions()
	fp := Fingerprint{URL: "https://example.test/book"}

	first := subs.subscribe(fp, func(string) (any, error) { return nil, nil })
	second := subs.subscribe(fp, func(string) (any, error) { return nil, nil })

	require.Same(t, first, second, "re-subscribing the same fingerprint must return the existing subscription")
	require.Len(t, subs.fingerprints(), 1)
}

func TestSubscribeAssignsMonotonicIDs(t *testing.T) {
	subs := newSubscriptions()
	a := subs.subscribe(Fingerprint{URL: "a"}, nil)
	b := subs.subscribe(Fingerprint{URL: "b"}, nil)

	require.Less(t, a.ID, b.ID)
}

func TestUnsubscribeRemovesBothIndexes(t *testing.T) {
	subs := newSubscriptions()
	sub := subs.subscribe(Fingerprint{URL: "a"}, nil)

	subs.unsubscribe(sub.ID)

	_, ok := subs.byFingerprint(Fingerprint{URL: "a"})
	require.False(t, ok)
	require.Empty(t, subs.fingerprints())
}
