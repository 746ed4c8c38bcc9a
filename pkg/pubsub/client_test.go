package pubsub

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingServer answers every request with body and records the raw
// request URIs.
type recordingServer struct {
	mu   sync.Mutex
	uris []string
}

func (rs *recordingServer) start(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.uris = append(rs.uris, r.RequestURI)
		rs.mu.Unlock()
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (rs *recordingServer) last() string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.uris) == 0 {
		return ""
	}
	return rs.uris[len(rs.uris)-1]
}

func newTestClient(t *testing.T, origin string, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		PublishKey:   "pub",
		SubscribeKey: "sub",
		Origin:       origin,
		ClientID:     "client-1",
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)
	return c
}

// failingGateway fails every call.
type failingGateway struct{ calls int }

func (g *failingGateway) Get(context.Context, string) ([]byte, error) {
	g.calls++
	return nil, errors.New("connection refused")
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(Config{SubscribeKey: "sub"}, nil)
	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "publish_key", ce.Field)

	_, err = NewClient(Config{PublishKey: "pub"}, nil)
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "subscribe_key", ce.Field)

	for _, bad := range []string{"   ", "a b", "a&b", "a?b", "a/b"} {
		_, err = NewClient(Config{PublishKey: "pub", SubscribeKey: "sub", ClientID: bad}, nil)
		require.True(t, errors.As(err, &ce), "client id %q", bad)
		assert.Equal(t, "client_id", ce.Field)
	}
}

func TestNewClientGeneratesClientID(t *testing.T) {
	a, err := NewClient(Config{PublishKey: "pub", SubscribeKey: "sub"}, nil)
	require.NoError(t, err)
	b, err := NewClient(Config{PublishKey: "pub", SubscribeKey: "sub"}, nil)
	require.NoError(t, err)
	_, err = uuid.Parse(a.ClientID())
	assert.NoError(t, err)
	assert.NotEqual(t, a.ClientID(), b.ClientID())
}

func TestNewClientOrigin(t *testing.T) {
	cases := []struct {
		origin string
		tls    bool
		want   string
	}{
		{"", false, "http://pubsub.pubnub.com"},
		{"", true, "https://pubsub.pubnub.com"},
		{"example.com/", false, "http://example.com"},
		{"http://127.0.0.1:8080", true, "http://127.0.0.1:8080"},
	}
	for _, tc := range cases {
		c, err := NewClient(Config{PublishKey: "p", SubscribeKey: "s", Origin: tc.origin, TLS: tc.tls}, nil)
		require.NoError(t, err)
		assert.Equal(t, tc.want, c.Origin())
	}
}

func TestPublishSendsEncodedMessage(t *testing.T) {
	rs := &recordingServer{}
	srv := rs.start(t, http.StatusOK, `[1,"Sent","17000000000000001"]`)
	c := newTestClient(t, srv.URL)

	res, err := c.Publish(context.Background(), "timer", map[string]any{"action": "work", "length": 1500})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "Sent", res.Message)
	assert.Equal(t, "17000000000000001", res.TimeToken)
	assert.Equal(t,
		"/publish/pub/sub/0/timer/0/%7B%22action%22%3A%22work%22%2C%22length%22%3A1500%7D",
		rs.last())
}

func TestPublishSignsWithSigningKey(t *testing.T) {
	rs := &recordingServer{}
	srv := rs.start(t, http.StatusOK, `[1,"Sent","1"]`)
	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.SigningKey = "secret" })

	_, err := c.Publish(context.Background(), "timer", "hi")
	require.NoError(t, err)

	sum := md5.Sum([]byte(`pub/sub/secret/timer/"hi"`))
	want := hex.EncodeToString(sum[:])
	assert.Equal(t, "/publish/pub/sub/"+want+"/timer/0/%22hi%22", rs.last())
}

func TestPublishSoftFailsOnTransportError(t *testing.T) {
	gw := &failingGateway{}
	c, err := NewClient(Config{PublishKey: "pub", SubscribeKey: "sub"}, gw)
	require.NoError(t, err)

	res, err := c.Publish(context.Background(), "c", "m")
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, PublishResult{Status: 0, Message: "Not Sent", TimeToken: "0"}, res)
	assert.Equal(t, 1, gw.calls)
}

func TestPublishSoftFailsOnDecodeError(t *testing.T) {
	rs := &recordingServer{}
	srv := rs.start(t, http.StatusOK, `<html>maintenance</html>`)
	c := newTestClient(t, srv.URL)

	res, err := c.Publish(context.Background(), "c", "m")
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, "Not Sent", res.Message)
}

func TestPublishValidatesBeforeIO(t *testing.T) {
	gw := &failingGateway{}
	c, err := NewClient(Config{PublishKey: "pub", SubscribeKey: "sub"}, gw)
	require.NoError(t, err)

	var ve *ValidationError
	_, err = c.Publish(context.Background(), "", "m")
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "channel", ve.Field)

	_, err = c.Publish(context.Background(), "c", nil)
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "message", ve.Field)

	_, err = c.Publish(context.Background(), "c", "")
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, 0, gw.calls)
}

func TestSubscribeOnceAppendsClientID(t *testing.T) {
	rs := &recordingServer{}
	srv := rs.start(t, http.StatusOK, `[[{"action":"rest","length":300},"plain"],"17000000000000001"]`)
	c := newTestClient(t, srv.URL)

	msgs, next, err := c.SubscribeOnce(context.Background(), "my chan", "")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"action":"rest","length":300}`, string(msgs[0]))
	assert.Equal(t, `"plain"`, string(msgs[1]))
	assert.Equal(t, "17000000000000001", next)
	assert.Equal(t, "/subscribe/sub/my%20chan/0/0/?uuid=client-1", rs.last())
}

func TestSubscribeOnceShortResponseIsDecodeError(t *testing.T) {
	rs := &recordingServer{}
	srv := rs.start(t, http.StatusOK, `[[]]`)
	c := newTestClient(t, srv.URL)

	_, _, err := c.SubscribeOnce(context.Background(), "ch", "5")
	var de *DecodeError
	assert.True(t, errors.As(err, &de))
}

func TestSubscribeOnceNon2xxIsTransportError(t *testing.T) {
	rs := &recordingServer{}
	srv := rs.start(t, http.StatusBadGateway, `upstream down`)
	c := newTestClient(t, srv.URL)

	_, _, err := c.SubscribeOnce(context.Background(), "ch", "5")
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Contains(t, te.Error(), "http 502")
	assert.True(t, strings.HasPrefix(te.URL, srv.URL+"/subscribe/"))
}

func TestPresenceOnceUsesDerivedChannel(t *testing.T) {
	rs := &recordingServer{}
	srv := rs.start(t, http.StatusOK, `[[{"action":"join","uuid":"x","occupancy":1}],"10"]`)
	c := newTestClient(t, srv.URL)

	msgs, next, err := c.PresenceOnce(context.Background(), "timer", "3")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Equal(t, "10", next)
	assert.Equal(t, "/subscribe/sub/timer-pnpres/0/3/?uuid=client-1", rs.last())
}

func TestHereNow(t *testing.T) {
	rs := &recordingServer{}
	srv := rs.start(t, http.StatusOK, `{"status":200,"uuids":["a","b"],"occupancy":2}`)
	c := newTestClient(t, srv.URL)

	occ, err := c.HereNow(context.Background(), "timer")
	require.NoError(t, err)
	assert.Equal(t, Occupancy{Occupancy: 2, UUIDs: []string{"a", "b"}}, occ)
	assert.Equal(t, "/v2/presence/sub_key/sub/channel/timer", rs.last())
}

func TestHistoryDefaultLimit(t *testing.T) {
	rs := &recordingServer{}
	srv := rs.start(t, http.StatusOK, `["a","b"]`)
	c := newTestClient(t, srv.URL)

	msgs, err := c.History(context.Background(), "timer", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, "/history/sub/timer/0/10", rs.last())
}

func TestDetailedHistoryParams(t *testing.T) {
	rs := &recordingServer{}
	srv := rs.start(t, http.StatusOK, `[["a","b","c"],1,3]`)
	c := newTestClient(t, srv.URL)

	msgs, err := c.DetailedHistory(context.Background(), "timer", HistoryOptions{})
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
	assert.Equal(t, "/v2/history/sub-key/sub/channel/timer?count=100", rs.last())

	reverse := true
	_, err = c.DetailedHistory(context.Background(), "timer", HistoryOptions{Count: 5, Reverse: &reverse, Start: "1", End: "9"})
	require.NoError(t, err)
	assert.Equal(t, "/v2/history/sub-key/sub/channel/timer?count=5&reverse=true&start=1&end=9", rs.last())
}

func TestDetailedHistoryFlatListOfArrays(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"envelope", `[[[1,2],[3]],"10","20"]`, []string{`[1,2]`, `[3]`}},
		{"flat list starting with an array", `[[1,2],{"a":1}]`, []string{`[1,2]`, `{"a":1}`}},
		{"three arrays", `[[1],[2],[3]]`, []string{`[1]`, `[2]`, `[3]`}},
		{"array then objects", `[["x"],{"s":1},{"e":2}]`, []string{`["x"]`, `{"s":1}`, `{"e":2}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := &recordingServer{}
			srv := rs.start(t, http.StatusOK, tt.body)
			c := newTestClient(t, srv.URL)

			msgs, err := c.DetailedHistory(context.Background(), "timer", HistoryOptions{})
			require.NoError(t, err)
			got := make([]string, len(msgs))
			for i, m := range msgs {
				got[i] = string(m)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubscribeOnceNullCursorIsDecodeError(t *testing.T) {
	rs := &recordingServer{}
	srv := rs.start(t, http.StatusOK, `[[],null]`)
	c := newTestClient(t, srv.URL)

	_, next, err := c.SubscribeOnce(context.Background(), "timer", "15000000000000001")
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Empty(t, next)
}

func TestTime(t *testing.T) {
	rs := &recordingServer{}
	srv := rs.start(t, http.StatusOK, `[17000000000000001]`)
	c := newTestClient(t, srv.URL)

	ts, err := c.Time(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(17000000000000001), ts)
	assert.Equal(t, "/time/0", rs.last())
}

func TestChannelOperationsValidateBeforeIO(t *testing.T) {
	gw := &failingGateway{}
	c, err := NewClient(Config{PublishKey: "pub", SubscribeKey: "sub"}, gw)
	require.NoError(t, err)
	ctx := context.Background()

	var ve *ValidationError
	_, _, err = c.SubscribeOnce(ctx, "", "0")
	assert.True(t, errors.As(err, &ve))
	_, _, err = c.PresenceOnce(ctx, "", "0")
	assert.True(t, errors.As(err, &ve))
	_, err = c.HereNow(ctx, "")
	assert.True(t, errors.As(err, &ve))
	_, err = c.History(ctx, "", 1)
	assert.True(t, errors.As(err, &ve))
	_, err = c.DetailedHistory(ctx, "", HistoryOptions{})
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, 0, gw.calls)
}
