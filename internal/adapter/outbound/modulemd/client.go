// Package modulemd fetches modulemd documents over HTTP and turns them
// into build descriptors.
package modulemd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tagmill/tagmill/internal/domain/build"
	portoutbound "github.com/tagmill/tagmill/internal/port/outbound"
	mmd "github.com/tagmill/tagmill/pkg/modulemd"
)

// maxDocumentSize caps the modulemd response body (4 MiB). Real
// documents are a few KiB; the cap guards against a misbehaving server.
const maxDocumentSize = 4 << 20

// Client retrieves modulemd documents from the build pipeline's
// metadata store.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a modulemd client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Fetch downloads and parses the modulemd document for the event's
// NSVC and merges it with the event identity into a build descriptor.
func (c *Client) Fetch(ctx context.Context, ev build.Event) (build.Descriptor, error) {
	docURL := c.documentURL(ev)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return build.Descriptor{}, fmt.Errorf("build modulemd request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return build.Descriptor{}, fmt.Errorf("fetch modulemd for %s: %w", ev.NSVC(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return build.Descriptor{}, fmt.Errorf("fetch modulemd for %s: unexpected status %d", ev.NSVC(), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return build.Descriptor{}, fmt.Errorf("read modulemd for %s: %w", ev.NSVC(), err)
	}

	doc, err := mmd.Parse(body)
	if err != nil {
		return build.Descriptor{}, fmt.Errorf("modulemd for %s: %w", ev.NSVC(), err)
	}

	c.logger.Debug("modulemd document fetched", "nsvc", ev.NSVC(), "url", docURL)

	return build.Descriptor{
		Name:        ev.Name,
		Stream:      ev.Stream,
		Version:     ev.Version,
		Context:     ev.Context,
		State:       ev.State,
		Scratch:     doc.Data.Scratch,
		Development: doc.Data.Development,
		Dependencies: build.Dependencies{
			BuildRequires: doc.BuildRequires(),
			Requires:      doc.Requires(),
		},
	}, nil
}

func (c *Client) documentURL(ev build.Event) string {
	return fmt.Sprintf("%s/modules/%s/%s/%s/%s/modulemd.yaml",
		c.baseURL,
		url.PathEscape(ev.Name),
		url.PathEscape(ev.Stream),
		url.PathEscape(ev.Version),
		url.PathEscape(ev.Context),
	)
}

// Compile-time interface verification.
var _ portoutbound.DescriptorSource = (*Client)(nil)
