package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/twentyfivefive/pkg/clock"
)

// step is one scripted gateway response.
type step struct {
	body string
	err  error
}

// scriptedGateway replays steps in order. Once the script is exhausted it
// cancels the subscription context, which ends Run.
type scriptedGateway struct {
	mu     sync.Mutex
	steps  []step
	urls   []string
	cancel context.CancelFunc
}

func (g *scriptedGateway) Get(ctx context.Context, url string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.urls = append(g.urls, url)
	if len(g.steps) == 0 {
		if g.cancel != nil {
			g.cancel()
		}
		return nil, context.Canceled
	}
	s := g.steps[0]
	g.steps = g.steps[1:]
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.body), nil
}

// cursorOf extracts the cursor segment from a subscribe URL.
func cursorOf(t *testing.T, url string) string {
	t.Helper()
	parts := strings.Split(url, "/")
	require.GreaterOrEqual(t, len(parts), 3)
	return parts[len(parts)-2]
}

func newScriptedSubscription(t *testing.T, steps []step, handler Handler, opts ...Option) (*Subscription, *scriptedGateway, context.Context, *clock.Fake) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	gw := &scriptedGateway{steps: steps, cancel: cancel}
	c, err := NewClient(Config{PublishKey: "pub", SubscribeKey: "sub", ClientID: "me"}, gw)
	require.NoError(t, err)
	fake := clock.NewFake(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	opts = append([]Option{WithClock(fake)}, opts...)
	return NewSubscription(c, "timer", handler, opts...), gw, ctx, fake
}

func acceptAll(context.Context, json.RawMessage) bool { return true }

func TestSubscriptionCursorFollowsEveryResponse(t *testing.T) {
	sub, gw, ctx, _ := newScriptedSubscription(t, []step{
		{body: `[[],"100"]`},
		{body: `[["m1"],"200"]`},
		{body: `[[],"300"]`},
	}, acceptAll)

	err := sub.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "300", sub.Cursor())

	require.Len(t, gw.urls, 4)
	assert.Equal(t, []string{"0", "100", "200", "300"}, []string{
		cursorOf(t, gw.urls[0]), cursorOf(t, gw.urls[1]),
		cursorOf(t, gw.urls[2]), cursorOf(t, gw.urls[3]),
	})
	stats := sub.Stats()
	assert.Equal(t, int64(2), stats.EmptyPolls)
	assert.Equal(t, int64(1), stats.Messages)
	assert.Equal(t, StateStopped, sub.State())
}

func TestSubscriptionRedeliversAfterTransportFailure(t *testing.T) {
	var got []string
	sub, gw, ctx, fake := newScriptedSubscription(t, []step{
		{err: errors.New("connection reset by peer")},
		{body: `[["hello"],"7"]`},
	}, func(_ context.Context, msg json.RawMessage) bool {
		got = append(got, string(msg))
		return false
	})

	require.NoError(t, sub.Run(ctx))
	assert.Equal(t, []string{`"hello"`}, got)
	require.Len(t, gw.urls, 2)
	assert.Equal(t, "0", cursorOf(t, gw.urls[0]))
	assert.Equal(t, "0", cursorOf(t, gw.urls[1]), "retry must reuse the cursor")
	assert.Equal(t, []time.Duration{time.Second}, fake.Waits())
	assert.Equal(t, int64(1), sub.Stats().Retries)
	assert.Equal(t, "7", sub.Cursor())
}

func TestSubscriptionRetriesDecodeErrors(t *testing.T) {
	var got int
	sub, _, ctx, fake := newScriptedSubscription(t, []step{
		{body: `<html>bad gateway</html>`},
		{body: `[["x"`},
		{body: `[["x"],"2"]`},
	}, func(context.Context, json.RawMessage) bool {
		got++
		return false
	})

	require.NoError(t, sub.Run(ctx))
	assert.Equal(t, 1, got)
	assert.Len(t, fake.Waits(), 2)
}

func TestSubscriptionKeepsCursorOnMissingToken(t *testing.T) {
	sub, gw, ctx, fake := newScriptedSubscription(t, []step{
		{body: `[[],"15000000000000001"]`},
		{body: `[[],null]`},
		{body: `[[],""]`},
		{body: `[[],"15000000000000002"]`},
	}, acceptAll)

	require.ErrorIs(t, sub.Run(ctx), context.Canceled)
	require.Len(t, gw.urls, 5)
	assert.Equal(t,
		[]string{"0", "15000000000000001", "15000000000000001", "15000000000000001", "15000000000000002"},
		[]string{
			cursorOf(t, gw.urls[0]), cursorOf(t, gw.urls[1]), cursorOf(t, gw.urls[2]),
			cursorOf(t, gw.urls[3]), cursorOf(t, gw.urls[4]),
		})
	assert.Equal(t, int64(2), sub.Stats().Retries)
	assert.Len(t, fake.Waits(), 2)
	assert.Equal(t, "15000000000000002", sub.Cursor())
}

func TestSubscriptionHandlerStoppedByCancellation(t *testing.T) {
	var gw *scriptedGateway
	sub, gw, ctx, _ := newScriptedSubscription(t, []step{
		{body: `[["alert","next"],"5"]`},
	}, func(context.Context, json.RawMessage) bool {
		// An alert interrupted by shutdown gives up.
		gw.cancel()
		return false
	})

	require.ErrorIs(t, sub.Run(ctx), context.Canceled)
	assert.Equal(t, "5", sub.Cursor())
	assert.Equal(t, StateStopped, sub.State())
}

func TestSubscriptionStopsMidBatch(t *testing.T) {
	var got []string
	sub, gw, ctx, _ := newScriptedSubscription(t, []step{
		{body: `[["m1","m2","m3"],"9"]`},
		{body: `[["m4"],"10"]`},
	}, func(_ context.Context, msg json.RawMessage) bool {
		got = append(got, string(msg))
		return string(msg) != `"m2"`
	})

	require.NoError(t, sub.Run(ctx))
	assert.Equal(t, []string{`"m1"`, `"m2"`}, got)
	assert.Len(t, gw.urls, 1, "no further poll after stop")
	assert.Equal(t, "9", sub.Cursor())
	assert.Equal(t, StateStopped, sub.State())
}

func TestSubscriptionPreservesBatchOrder(t *testing.T) {
	var got []string
	sub, _, ctx, _ := newScriptedSubscription(t, []step{
		{body: `[["a","b"],"1"]`},
		{body: `[["c"],"2"]`},
	}, func(_ context.Context, msg json.RawMessage) bool {
		got = append(got, string(msg))
		return true
	})

	require.ErrorIs(t, sub.Run(ctx), context.Canceled)
	assert.Equal(t, []string{`"a"`, `"b"`, `"c"`}, got)
}

func TestSubscriptionStartsFromGivenCursor(t *testing.T) {
	sub, gw, ctx, _ := newScriptedSubscription(t, nil, acceptAll, WithCursor("555"))
	require.ErrorIs(t, sub.Run(ctx), context.Canceled)
	require.Len(t, gw.urls, 1)
	assert.Equal(t, "555", cursorOf(t, gw.urls[0]))
}

func TestSubscriptionPresenceChannel(t *testing.T) {
	sub, gw, ctx, _ := newScriptedSubscription(t, nil, acceptAll, WithPresence())
	require.ErrorIs(t, sub.Run(ctx), context.Canceled)
	require.Len(t, gw.urls, 1)
	assert.Contains(t, gw.urls[0], "/subscribe/sub/timer-pnpres/0/0/?uuid=me")
}

func TestSubscriptionValidationBeforeIO(t *testing.T) {
	gw := &scriptedGateway{}
	c, err := NewClient(Config{PublishKey: "pub", SubscribeKey: "sub"}, gw)
	require.NoError(t, err)

	var ve *ValidationError
	err = NewSubscription(c, "", acceptAll).Run(context.Background())
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "channel", ve.Field)

	err = NewSubscription(c, "timer", nil).Run(context.Background())
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "handler", ve.Field)

	err = NewSubscription(nil, "timer", acceptAll).Run(context.Background())
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "client", ve.Field)

	assert.Empty(t, gw.urls)
}

func TestSubscriptionCappedPolicyReturnsLastError(t *testing.T) {
	failure := step{err: errors.New("no route to host")}
	sub, gw, ctx, _ := newScriptedSubscription(t,
		[]step{failure, failure, failure, failure},
		acceptAll,
		WithRetryPolicy(RetryPolicy{Initial: time.Millisecond, MaxRetries: 2}),
	)

	err := sub.Run(ctx)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Contains(t, te.Error(), "no route to host")
	assert.Len(t, gw.urls, 3)
}

func TestSubscriptionExponentialPolicy(t *testing.T) {
	failure := step{err: errors.New("timeout")}
	sub, _, ctx, fake := newScriptedSubscription(t,
		[]step{failure, failure, failure, failure, {body: `[["done"],"1"]`}},
		func(context.Context, json.RawMessage) bool { return false },
		WithRetryPolicy(RetryPolicy{Initial: time.Second, Max: 4 * time.Second}),
	)

	require.NoError(t, sub.Run(ctx))
	assert.Equal(t,
		[]time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second},
		fake.Waits())
}

func TestSubscriptionPolicyResetsAfterSuccess(t *testing.T) {
	failure := step{err: errors.New("timeout")}
	sub, _, ctx, fake := newScriptedSubscription(t,
		[]step{failure, failure, {body: `[[],"1"]`}, failure},
		acceptAll,
		WithRetryPolicy(RetryPolicy{Initial: time.Second, Max: 8 * time.Second}),
	)

	require.ErrorIs(t, sub.Run(ctx), context.Canceled)
	assert.Equal(t,
		[]time.Duration{time.Second, 2 * time.Second, time.Second},
		fake.Waits())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "backing_off", StateBackingOff.String())
	assert.Equal(t, "unknown", State(42).String())
}
