package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkamenev/toolgate/internal/model"
	"github.com/pkamenev/toolgate/internal/scope"
)

const maxWebpageBytes = 1 << 20

// ReadWebpage fetches a public http(s) URL and returns its body,
// truncated at a fixed byte cap.
type ReadWebpage struct {
	Guard  *scope.Guard
	Client *http.Client
}

func (ReadWebpage) Capability() model.Capability { return model.CapReadWebpage }

func (t ReadWebpage) Invoke(ctx context.Context, params map[string]string) (string, error) {
	rawURL, err := requireParam(params, "url")
	if err != nil {
		return "", err
	}
	if err := t.Guard.CheckURL(rawURL); err != nil {
		return "", err
	}

	client := t.Client
	if client == nil {
		client = &http.Client{
			Timeout: 15 * time.Second,
			CheckRedirect: func(req *http.Request, _ []*http.Request) error {
				// Redirects re-enter scope: a public URL must not
				// bounce into loopback or private address space.
				return t.Guard.CheckURL(req.URL.String())
			},
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("tools: build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("tools: fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tools: fetch %s: unexpected status %s", rawURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebpageBytes+1))
	if err != nil {
		return "", fmt.Errorf("tools: read response: %w", err)
	}
	if len(body) > maxWebpageBytes {
		return string(body[:maxWebpageBytes]) + "\n[truncated]", nil
	}
	return string(body), nil
}
