// Package pubsub is a client for a long-poll publish/subscribe service.
//
// Every operation is one stateless GET: the request is a list of path
// segments, escaped by Encode, joined under the configured origin. The
// response is a JSON document. Subscribing is a long poll: the server
// holds the request until a message arrives or its own timeout elapses,
// then answers with [messages, nextCursor]. Subscription turns that single
// call into a loop that carries the cursor forward and absorbs transient
// failures.
package pubsub

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// DefaultOrigin is the host used when Config.Origin is empty.
const DefaultOrigin = "pubsub.pubnub.com"

// presenceSuffix derives the presence channel of a base channel.
const presenceSuffix = "-pnpres"

// Config configures a Client.
type Config struct {
	PublishKey   string
	SubscribeKey string
	SigningKey   string // optional; enables publish signatures
	TLS          bool
	Origin       string // host, or a full scheme://host URL
	ClientID     string // presence identity; generated when empty
}

// Client is a stateless facade over the pub/sub endpoint. It holds only
// configuration and is safe for concurrent use; cursors live in the
// caller (see Subscription).
type Client struct {
	publishKey   string
	subscribeKey string
	signingKey   string
	origin       string
	clientID     string
	gw           Gateway
}

// NewClient validates cfg and returns a Client that sends requests through
// gw. A nil gw uses an HTTPGateway without request timeout.
func NewClient(cfg Config, gw Gateway) (*Client, error) {
	if strings.TrimSpace(cfg.PublishKey) == "" {
		return nil, &ConfigurationError{Field: "publish_key", Reason: "required"}
	}
	if strings.TrimSpace(cfg.SubscribeKey) == "" {
		return nil, &ConfigurationError{Field: "subscribe_key", Reason: "required"}
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	if err := validateClientID(clientID); err != nil {
		return nil, err
	}
	if gw == nil {
		gw = NewHTTPGateway(nil, 0)
	}
	return &Client{
		publishKey:   cfg.PublishKey,
		subscribeKey: cfg.SubscribeKey,
		signingKey:   cfg.SigningKey,
		origin:       buildOrigin(cfg.Origin, cfg.TLS),
		clientID:     clientID,
		gw:           gw,
	}, nil
}

// The client id travels unescaped in the query string.
func validateClientID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &ConfigurationError{Field: "client_id", Reason: "must not be blank"}
	}
	if strings.ContainsAny(id, " \t\r\n&?#/=") {
		return &ConfigurationError{Field: "client_id", Reason: "must be a plain query-safe string"}
	}
	return nil
}

func buildOrigin(origin string, tls bool) string {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin == "" {
		origin = DefaultOrigin
	}
	if strings.Contains(origin, "://") {
		return origin
	}
	if tls {
		return "https://" + origin
	}
	return "http://" + origin
}

// ClientID returns the presence identity sent with subscribe calls.
func (c *Client) ClientID() string { return c.clientID }

// Origin returns the scheme://host prefix of every request.
func (c *Client) Origin() string { return c.origin }

// PublishResult is the outcome of Publish. Status 1 means the server
// accepted the message.
type PublishResult struct {
	Status    int64  `json:"status"`
	Message   string `json:"message"`
	TimeToken string `json:"timetoken"`
}

// OK reports whether the message was accepted.
func (r PublishResult) OK() bool { return r.Status == 1 }

var notSent = PublishResult{Status: 0, Message: "Not Sent", TimeToken: "0"}

// Publish sends message to channel. Transport and decode failures do not
// produce an error: they come back as a zero-status "Not Sent" result, so
// callers must check OK. The only error is a *ValidationError for a
// missing channel or message.
func (c *Client) Publish(ctx context.Context, channel string, message any) (PublishResult, error) {
	const op = "publish"
	if channel == "" {
		return notSent, &ValidationError{Op: op, Field: "channel"}
	}
	if isEmptyMessage(message) {
		return notSent, &ValidationError{Op: op, Field: "message"}
	}
	payload, err := marshalCompact(message)
	if err != nil {
		return notSent, &ValidationError{Op: op, Field: "message"}
	}

	body, err := c.request(ctx, op, Encode([]string{
		"publish",
		c.publishKey,
		c.subscribeKey,
		c.sign(channel, payload),
		channel,
		"0",
		payload,
	}), nil)
	if err != nil {
		return notSent, nil
	}
	var parts []json.RawMessage
	if err := Decode(op, body, &parts); err != nil || len(parts) == 0 {
		return notSent, nil
	}
	res := PublishResult{TimeToken: "0"}
	var status json.Number
	if err := Decode(op, parts[0], &status); err != nil {
		return notSent, nil
	}
	if res.Status, err = status.Int64(); err != nil {
		return notSent, nil
	}
	if len(parts) > 1 {
		_ = json.Unmarshal(parts[1], &res.Message)
	}
	if len(parts) > 2 {
		if tt, err := tokenString(parts[2]); err == nil {
			res.TimeToken = tt
		}
	}
	return res, nil
}

func isEmptyMessage(m any) bool {
	switch v := m.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case json.RawMessage:
		return len(bytes.TrimSpace(v)) == 0
	}
	return false
}

// sign computes the publish signature: the MD5 hex digest of
// publishKey/subscribeKey/signingKey/channel/message, or "0" when no
// signing key is configured. It is an integrity tag the server checks,
// not a cryptographic guarantee.
func (c *Client) sign(channel, payload string) string {
	if c.signingKey == "" {
		return "0"
	}
	sum := md5.Sum([]byte(strings.Join([]string{
		c.publishKey, c.subscribeKey, c.signingKey, channel, payload,
	}, "/")))
	return hex.EncodeToString(sum[:])
}

// SubscribeOnce issues exactly one long-poll request for channel starting
// at cursor and returns the delivered batch with the next cursor. It does
// not loop. An empty cursor means "0", the beginning.
func (c *Client) SubscribeOnce(ctx context.Context, channel, cursor string) ([]json.RawMessage, string, error) {
	const op = "subscribe"
	if channel == "" {
		return nil, "", &ValidationError{Op: op, Field: "channel"}
	}
	if cursor == "" {
		cursor = "0"
	}
	segments := Encode([]string{"subscribe", c.subscribeKey, channel, "0", cursor})
	segments = append(segments, "?uuid="+c.clientID)
	body, err := c.request(ctx, op, segments, nil)
	if err != nil {
		return nil, "", err
	}

	var parts []json.RawMessage
	if err := Decode(op, body, &parts); err != nil {
		return nil, "", err
	}
	if len(parts) < 2 {
		return nil, "", &DecodeError{Op: op, Err: errShortResponse(len(parts))}
	}
	var messages []json.RawMessage
	if err := Decode(op, parts[0], &messages); err != nil {
		return nil, "", err
	}
	next, err := tokenString(parts[1])
	if err != nil {
		return nil, "", &DecodeError{Op: op, Err: err}
	}
	return messages, next, nil
}

// PresenceOnce is SubscribeOnce on the presence channel of channel.
func (c *Client) PresenceOnce(ctx context.Context, channel, cursor string) ([]json.RawMessage, string, error) {
	if channel == "" {
		return nil, "", &ValidationError{Op: "presence", Field: "channel"}
	}
	return c.SubscribeOnce(ctx, channel+presenceSuffix, cursor)
}

// Occupancy is the here-now snapshot of a channel.
type Occupancy struct {
	Occupancy int      `json:"occupancy"`
	UUIDs     []string `json:"uuids"`
}

// HereNow returns who is currently subscribed to channel.
func (c *Client) HereNow(ctx context.Context, channel string) (Occupancy, error) {
	const op = "here_now"
	if channel == "" {
		return Occupancy{}, &ValidationError{Op: op, Field: "channel"}
	}
	body, err := c.request(ctx, op, Encode([]string{
		"v2", "presence", "sub_key", c.subscribeKey, "channel", channel,
	}), nil)
	if err != nil {
		return Occupancy{}, err
	}
	var occ Occupancy
	if err := Decode(op, body, &occ); err != nil {
		return Occupancy{}, err
	}
	if occ.UUIDs == nil {
		occ.UUIDs = []string{}
	}
	return occ, nil
}

// History returns up to limit recent messages of channel (10 when limit <= 0).
func (c *Client) History(ctx context.Context, channel string, limit int) ([]json.RawMessage, error) {
	const op = "history"
	if channel == "" {
		return nil, &ValidationError{Op: op, Field: "channel"}
	}
	if limit <= 0 {
		limit = 10
	}
	body, err := c.request(ctx, op, Encode([]string{
		"history", c.subscribeKey, channel, "0", strconv.Itoa(limit),
	}), nil)
	if err != nil {
		return nil, err
	}
	var messages []json.RawMessage
	if err := Decode(op, body, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// HistoryOptions narrows DetailedHistory. Zero values are omitted from the
// request, except Count which defaults to 100.
type HistoryOptions struct {
	Count   int
	Reverse *bool
	Start   string
	End     string
}

func (o HistoryOptions) params() []string {
	count := o.Count
	if count <= 0 {
		count = 100
	}
	params := []string{"count=" + strconv.Itoa(count)}
	if o.Reverse != nil {
		params = append(params, "reverse="+strconv.FormatBool(*o.Reverse))
	}
	if o.Start != "" {
		params = append(params, "start="+o.Start)
	}
	if o.End != "" {
		params = append(params, "end="+o.End)
	}
	return params
}

// DetailedHistory returns messages of channel within the optional
// [Start, End] time-token window. The v2 response wraps the messages as
// [[messages...], start, end]; the wrapper is removed.
func (c *Client) DetailedHistory(ctx context.Context, channel string, opts HistoryOptions) ([]json.RawMessage, error) {
	const op = "detailed_history"
	if channel == "" {
		return nil, &ValidationError{Op: op, Field: "channel"}
	}
	body, err := c.request(ctx, op, Encode([]string{
		"v2", "history", "sub-key", c.subscribeKey, "channel", channel,
	}), opts.params())
	if err != nil {
		return nil, err
	}
	var top []json.RawMessage
	if err := Decode(op, body, &top); err != nil {
		return nil, err
	}
	if isHistoryEnvelope(top) {
		var messages []json.RawMessage
		if err := Decode(op, top[0], &messages); err != nil {
			return nil, err
		}
		return messages, nil
	}
	if top == nil {
		top = []json.RawMessage{}
	}
	return top, nil
}

// isHistoryEnvelope reports whether top is the v2 [[messages...], start, end]
// wrapper rather than a flat message list that happens to start with an
// array.
func isHistoryEnvelope(top []json.RawMessage) bool {
	if len(top) != 3 {
		return false
	}
	if first := bytes.TrimSpace(top[0]); len(first) == 0 || first[0] != '[' {
		return false
	}
	for _, bound := range top[1:] {
		b := bytes.TrimSpace(bound)
		if len(b) == 0 {
			return false
		}
		if b[0] != '"' && b[0] != '-' && (b[0] < '0' || b[0] > '9') {
			return false
		}
	}
	return true
}

// Time returns the server's current time token.
func (c *Client) Time(ctx context.Context) (int64, error) {
	const op = "time"
	body, err := c.request(ctx, op, Encode([]string{"time", "0"}), nil)
	if err != nil {
		return 0, err
	}
	var parts []json.Number
	if err := Decode(op, body, &parts); err != nil {
		return 0, err
	}
	if len(parts) == 0 {
		return 0, &DecodeError{Op: op, Err: errShortResponse(0)}
	}
	ts, err := parts[0].Int64()
	if err != nil {
		return 0, &DecodeError{Op: op, Err: err}
	}
	return ts, nil
}

// request joins the already-encoded segments under the origin, appends
// params, and runs the gateway call.
func (c *Client) request(ctx context.Context, op string, segments, params []string) ([]byte, error) {
	url := c.origin + "/" + strings.Join(segments, "/")
	if len(params) > 0 {
		url += "?" + strings.Join(params, "&")
	}
	body, err := c.gw.Get(ctx, url)
	if err != nil {
		return nil, &TransportError{Op: op, URL: url, Err: err}
	}
	return body, nil
}

type errShortResponse int

func (n errShortResponse) Error() string {
	return "response has " + strconv.Itoa(int(n)) + " elements"
}
