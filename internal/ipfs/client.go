package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

var (
	ErrAllGatewaysFailed    = errors.New("failed to fetch from all IPFS gateways")
	ErrNotConfigured        = errors.New("pinata credentials not configured")
	ErrUnsupportedModelFile = errors.New("unsupported model file type")
	ErrInvalidCID           = errors.New("invalid IPFS content identifier")
)

// ModelFileExtensions lists the model artifact formats accepted for upload
var ModelFileExtensions = []string{".pt", ".onnx", ".pkl", ".zip", ".h5", ".safetensors"}

var cidPattern = regexp.MustCompile(`^(Qm[1-9A-HJ-NP-Za-km-z]{44}|b[a-z2-7]{50,})(/.*)?$`)

// Config holds the pinning endpoint credentials and gateway mirrors
type Config struct {
	Endpoint  string
	APIKey    string
	SecretKey string
	Gateways  []string
	// UploadTimeout bounds one pin request. Zero means no limit.
	UploadTimeout time.Duration
}

// Client uploads to Pinata and reads back through public gateways
type Client struct {
	http     *retryablehttp.Client
	upload   *retryablehttp.Client
	cfg      Config
	gateways []string
	log      *zap.Logger
}

// NewHTTPClient builds the retrying HTTP client shared by content fetchers
func NewHTTPClient(timeout time.Duration) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = nil
	return client
}

// NewUploadHTTPClient builds the client used for pinning. Upload bodies
// are streamed once and never replayed, so it does not retry.
func NewUploadHTTPClient(timeout time.Duration) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.HTTPClient.Timeout = timeout
	client.Logger = nil
	return client
}

// NewClient creates a content storage client. httpClient serves gateway
// reads; uploads get their own client from NewUploadHTTPClient.
func NewClient(cfg Config, httpClient *retryablehttp.Client) *Client {
	gateways := make([]string, 0, len(cfg.Gateways))
	for _, gw := range cfg.Gateways {
		if !strings.HasSuffix(gw, "/") {
			gw += "/"
		}
		gateways = append(gateways, gw)
	}
	return &Client{
		http:     httpClient,
		upload:   NewUploadHTTPClient(cfg.UploadTimeout),
		cfg:      cfg,
		gateways: gateways,
		log:      zap.L().Named("ipfs"),
	}
}

// Gateways returns the configured mirrors in the order they are tried
func (c *Client) Gateways() []string {
	return c.gateways
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// UploadFile pins a binary payload and returns its CID
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader) (string, error) {
	if c.cfg.APIKey == "" || c.cfg.SecretKey == "" {
		return "", ErrNotConfigured
	}

	// The multipart body is produced while the request is being sent, so
	// model files are never held in memory as a whole.
	pr, pw := io.Pipe()
	defer pr.Close()
	writer := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeFormFile(writer, name, r))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, pr)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("pinata_api_key", c.cfg.APIKey)
	req.Header.Set("pinata_secret_api_key", c.cfg.SecretKey)

	// retryablehttp would buffer a plain reader to make it replayable.
	resp, err := c.upload.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload to Pinata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("failed to upload to Pinata: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to parse Pinata response: %w", err)
	}
	if out.IpfsHash == "" {
		return "", fmt.Errorf("pinata response missing IpfsHash")
	}

	c.log.Info("pinned content", zap.String("name", name), zap.String("cid", out.IpfsHash), zap.Int64("size", out.PinSize))
	return out.IpfsHash, nil
}

func writeFormFile(writer *multipart.Writer, name string, r io.Reader) error {
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("failed to stream upload: %w", err)
	}
	return writer.Close()
}

// UploadJSON pins a JSON document and returns its CID
func (c *Client) UploadJSON(ctx context.Context, name string, v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode JSON document: %w", err)
	}
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	return c.UploadFile(ctx, name, bytes.NewReader(data))
}

// UploadModel pins a model artifact after checking its extension
func (c *Client) UploadModel(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ValidateModelFile(name); err != nil {
		return "", err
	}
	return c.UploadFile(ctx, name, r)
}

// ValidateModelFile rejects files whose extension is not a known model format
func ValidateModelFile(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range ModelFileExtensions {
		if ext == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedModelFile, ext)
}

// Fetch reads content by CID (or ipfs:// URI), trying each gateway in order
func (c *Client) Fetch(ctx context.Context, ref string) ([]byte, error) {
	cid, ok := ParseCID(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCID, ref)
	}

	var errs []error
	for _, gw := range c.gateways {
		data, err := c.fetchFromGateway(ctx, gw, cid)
		if err == nil {
			return data, nil
		}
		c.log.Debug("gateway failed, trying next", zap.String("gateway", gw), zap.Error(err))
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrAllGatewaysFailed, errors.Join(errs...))
}

func (c *Client) fetchFromGateway(ctx context.Context, gateway, cid string) ([]byte, error) {
	req, err := retryablehttp.NewRequest(http.MethodGet, gateway+cid, nil)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", gateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %s", gateway, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// GatewayURL returns an HTTP URL for cid on the i-th gateway (wrapping)
func (c *Client) GatewayURL(cid string, i int) string {
	if len(c.gateways) == 0 {
		return URI(cid)
	}
	if i < 0 {
		i = 0
	}
	clean, _ := ParseCID(cid)
	if clean == "" {
		clean = cid
	}
	return c.gateways[i%len(c.gateways)] + clean
}

// URI returns the canonical ipfs:// form
func URI(cid string) string {
	return "ipfs://" + strings.TrimPrefix(cid, "ipfs://")
}

// ParseCID extracts "<cid>[/path]" from ipfs:// URIs, gateway URLs and
// bare CIDs.
func ParseCID(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(ref, "ipfs://"):
		ref = strings.TrimPrefix(strings.TrimPrefix(ref, "ipfs://"), "ipfs/")
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		idx := strings.Index(ref, "/ipfs/")
		if idx < 0 {
			return "", false
		}
		ref = ref[idx+len("/ipfs/"):]
	}
	ref = strings.TrimPrefix(ref, "/")
	if !cidPattern.MatchString(ref) {
		return "", false
	}
	return ref, true
}

// IsIPFS reports whether ref addresses IPFS content
func IsIPFS(ref string) bool {
	if strings.HasPrefix(strings.TrimSpace(ref), "ipfs://") {
		return true
	}
	_, ok := ParseCID(ref)
	return ok && !strings.HasPrefix(ref, "http")
}
