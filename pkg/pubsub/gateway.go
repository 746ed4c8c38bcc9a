package pubsub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Gateway executes one blocking request and returns the raw response body.
// Implementations must honour ctx cancellation.
type Gateway interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// HTTPGateway is the production Gateway: a plain GET over net/http.
type HTTPGateway struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPGateway returns a gateway using client (http.DefaultClient when
// nil). A zero timeout leaves the request unbounded; long-poll hold time
// is the server's business.
func NewHTTPGateway(client *http.Client, timeout time.Duration) *HTTPGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPGateway{client: client, timeout: timeout}
}

// Get issues the request. Any failure, including a non-2xx status, comes
// back as a plain error; the Client wraps it into a *TransportError.
func (g *HTTPGateway) Get(ctx context.Context, url string) ([]byte, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, msg)
	}
	return body, nil
}

// CloseIdleConnections drops pooled connections. The subscription loop
// calls it after a failed poll so the retry opens a fresh socket.
func (g *HTTPGateway) CloseIdleConnections() {
	g.client.CloseIdleConnections()
}
