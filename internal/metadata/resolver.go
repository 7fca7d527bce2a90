package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"model-marketplace/internal/ipfs"
)

var (
	ErrInvalidURI  = errors.New("invalid metadata URI")
	ErrFetchFailed = errors.New("failed to fetch metadata")
	ErrParseFailed = errors.New("failed to parse metadata")
)

const maxDocumentSize = 1 << 20

// ContentStore reads IPFS content through gateway mirrors
type ContentStore interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
	GatewayURL(cid string, i int) string
}

// Resolver fetches and parses the JSON document behind a metadata uri
type Resolver struct {
	http    *retryablehttp.Client
	content ContentStore
	timeout time.Duration
}

// NewResolver creates a Resolver. timeout bounds each Resolve call.
func NewResolver(httpClient *retryablehttp.Client, content ContentStore, timeout time.Duration) *Resolver {
	return &Resolver{
		http:    httpClient,
		content: content,
		timeout: timeout,
	}
}

// Resolve fetches uri (http, https, ipfs:// or bare CID) and decodes it.
// Gateway URLs are read through the content store so every gateway is
// tried. IPFS image and animation links are rewritten to gateway URLs.
func (r *Resolver) Resolve(ctx context.Context, uri string) (*Document, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURI)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var (
		body []byte
		err  error
	)
	_, pinned := ipfs.ParseCID(uri)
	switch {
	case ipfs.IsIPFS(uri):
		if r.content == nil {
			return nil, fmt.Errorf("%w: no content store for %s", ErrFetchFailed, uri)
		}
		body, err = r.content.Fetch(ctx, uri)
	case pinned && r.content != nil:
		// a gateway URL; any configured gateway can serve the CID
		body, err = r.content.Fetch(ctx, uri)
	case strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://"):
		body, err = r.get(ctx, uri)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidURI, uri)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	doc.Image = r.toHTTP(doc.Image)
	doc.AnimationURL = r.toHTTP(doc.AnimationURL)
	return &doc, nil
}

func (r *Resolver) get(ctx context.Context, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
}

func (r *Resolver) toHTTP(link string) string {
	if link == "" || r.content == nil || !ipfs.IsIPFS(link) {
		return link
	}
	if cid, ok := ipfs.ParseCID(link); ok {
		return r.content.GatewayURL(cid, 0)
	}
	return link
}
