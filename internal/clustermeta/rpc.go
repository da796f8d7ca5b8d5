package clustermeta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// httpClient is shared across every master↔agent call for connection
// reuse.
var httpClient = &http.Client{Timeout: 10 * time.Second}

// PostJSON sends body as a JSON POST to url and decodes the response into
// out (nil to discard the body).
func PostJSON(ctx context.Context, url string, body, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("clustermeta: http %s: status %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetJSON issues a GET and decodes the JSON response into out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("clustermeta: http %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// WithRPCTimeout derives a context bounded by the RPC's named deadline from
// RPCTimeouts, defaulting to 5s for unnamed RPCs.
func WithRPCTimeout(parent context.Context, rpc string) (context.Context, context.CancelFunc) {
	d, ok := RPCTimeouts[rpc]
	if !ok {
		d = 5 * time.Second
	}
	return context.WithTimeout(parent, d)
}
