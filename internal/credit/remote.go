package credit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultRemoteTimeout = 5 * time.Second

// RemoteLedger posts triggers to an external credit service instead of the
// local store. Delivery is best effort with a short timeout; the caller's
// dispatcher already logs and swallows errors.
type RemoteLedger struct {
	URL    string
	Secret string
	Client *http.Client
}

func NewRemoteLedger(url string) *RemoteLedger {
	return &RemoteLedger{
		URL:    url,
		Client: &http.Client{Timeout: defaultRemoteTimeout},
	}
}

type remoteResult struct {
	Skipped bool            `json:"skipped"`
	Reason  string          `json:"reason,omitempty"`
	Record  json.RawMessage `json:"record,omitempty"`
}

func (l *RemoteLedger) Trigger(ctx context.Context, t Trigger) (Result, error) {
	if strings.TrimSpace(l.URL) == "" {
		return Result{}, fmt.Errorf("remote ledger url not configured")
	}
	data, err := json.Marshal(t)
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.URL, bytes.NewReader(data))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Launchline-Event", string(t.Kind))
	if strings.TrimSpace(l.Secret) != "" {
		req.Header.Set("X-Launchline-Secret", l.Secret)
	}
	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: defaultRemoteTimeout}
	}
	res, err := client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return Result{}, fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var parsed remoteResult
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return Result{}, err
	}
	return Result{Skipped: parsed.Skipped, Reason: parsed.Reason}, nil
}
