package filing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	// DefaultBaseURL is the endpoint serving structured filing documents.
	DefaultBaseURL = "https://docquery.fec.gov/dcdev/posted"
	// maxDocumentBytes caps response bodies; large committee filings run to
	// tens of megabytes of itemizations.
	maxDocumentBytes = 64 << 20
)

// Doer abstracts the HTTP client used to fetch structured documents.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSource retrieves structured filing documents over HTTP. The endpoint
// serves the parsing dependency's output; this client only decodes it.
type HTTPSource struct {
	client  Doer
	baseURL string
}

// NewHTTPSource builds a source around the given client. An empty base URL
// selects DefaultBaseURL. A nil client falls back to http.DefaultClient.
func NewHTTPSource(client Doer, baseURL string) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return &HTTPSource{client: client, baseURL: base}
}

// ByID fetches and decodes the structured document for one filing.
func (s *HTTPSource) ByID(ctx context.Context, id int64) (*Document, error) {
	url := fmt.Sprintf("%s/%d.json", s.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("filing: build request for %d: %w", id, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("filing: fetch %d: %w", id, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("filing: fetch %d: unexpected status %s", id, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("filing: read %d: %w", id, err)
	}
	return s.FromBytes(ctx, data)
}

// FromBytes decodes a structured payload.
func (s *HTTPSource) FromBytes(_ context.Context, data []byte) (*Document, error) {
	return DecodeDocument(data)
}

var _ Source = (*HTTPSource)(nil)
var _ Source = (*StaticSource)(nil)
