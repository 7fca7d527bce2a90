package ipfs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCID = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

func testHTTPClient() *retryablehttp.Client {
	client := NewHTTPClient(time.Second)
	client.RetryMax = 0
	return client
}

func TestParseCID(t *testing.T) {
	tests := []struct {
		ref  string
		want string
		ok   bool
	}{
		{testCID, testCID, true},
		{"ipfs://" + testCID, testCID, true},
		{"ipfs://ipfs/" + testCID + "/meta.json", testCID + "/meta.json", true},
		{"https://gateway.pinata.cloud/ipfs/" + testCID, testCID, true},
		{"https://example.com/meta.json", "", false},
		{"not-a-cid", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseCID(tt.ref)
		assert.Equal(t, tt.ok, ok, tt.ref)
		assert.Equal(t, tt.want, got, tt.ref)
	}

	assert.True(t, IsIPFS("ipfs://"+testCID))
	assert.True(t, IsIPFS(testCID))
	assert.False(t, IsIPFS("https://gateway.pinata.cloud/ipfs/"+testCID))
}

func TestGatewayURL(t *testing.T) {
	c := NewClient(Config{Gateways: []string{"https://a.example/ipfs", "https://b.example/ipfs/"}}, testHTTPClient())
	assert.Equal(t, "https://a.example/ipfs/"+testCID, c.GatewayURL(testCID, 0))
	assert.Equal(t, "https://b.example/ipfs/"+testCID, c.GatewayURL("ipfs://"+testCID, 1))
	assert.Equal(t, "https://a.example/ipfs/"+testCID, c.GatewayURL(testCID, 2))

	bare := NewClient(Config{}, testHTTPClient())
	assert.Equal(t, "ipfs://"+testCID, bare.GatewayURL(testCID, 0))
}

func TestUploadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("pinata_api_key"))
		assert.Equal(t, "secret", r.Header.Get("pinata_secret_api_key"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		assert.Equal(t, "model.json", header.Filename)

		var doc map[string]string
		assert.NoError(t, json.NewDecoder(file).Decode(&doc))
		assert.Equal(t, "Classifier", doc["name"])

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"IpfsHash":"`+testCID+`","PinSize":42}`)
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, APIKey: "key", SecretKey: "secret"}, testHTTPClient())
	cid, err := c.UploadJSON(context.Background(), "model", map[string]string{"name": "Classifier"})
	require.NoError(t, err)
	assert.Equal(t, testCID, cid)
}

func TestUploadErrors(t *testing.T) {
	unconfigured := NewClient(Config{Endpoint: "http://127.0.0.1:1"}, testHTTPClient())
	_, err := unconfigured.UploadFile(context.Background(), "x.onnx", strings.NewReader("w"))
	assert.True(t, errors.Is(err, ErrNotConfigured))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, APIKey: "key", SecretKey: "bad"}, testHTTPClient())
	_, err = c.UploadFile(context.Background(), "x.onnx", strings.NewReader("w"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")

	_, err = c.UploadModel(context.Background(), "notes.txt", strings.NewReader("w"))
	assert.True(t, errors.Is(err, ErrUnsupportedModelFile))
}

// gatedReader blocks until open is closed, then reports EOF
type gatedReader struct {
	open chan struct{}
}

func (g gatedReader) Read([]byte) (int, error) {
	select {
	case <-g.open:
		return 0, io.EOF
	case <-time.After(5 * time.Second):
		return 0, errors.New("upload body was not streamed")
	}
}

func TestUploadModelStreamsBody(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mr, err := r.MultipartReader()
		if !assert.NoError(t, err) {
			return
		}
		part, err := mr.NextPart()
		if !assert.NoError(t, err) {
			return
		}
		head := make([]byte, 4)
		_, err = io.ReadFull(part, head)
		assert.NoError(t, err)
		assert.Equal(t, "head", string(head))

		// the rest of the file only exists once the server has begun reading
		close(started)
		rest, err := io.ReadAll(part)
		assert.NoError(t, err)
		assert.Empty(t, rest)
		io.WriteString(w, `{"IpfsHash":"`+testCID+`"}`)
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, APIKey: "key", SecretKey: "secret"}, testHTTPClient())
	body := io.MultiReader(strings.NewReader("head"), gatedReader{open: started})
	cid, err := c.UploadModel(context.Background(), "weights.safetensors", body)
	require.NoError(t, err)
	assert.Equal(t, testCID, cid)
}

func TestUploadIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	// the gateway client retries; uploads must not inherit that
	gateways := NewHTTPClient(time.Second)
	gateways.RetryWaitMin = time.Millisecond
	gateways.RetryWaitMax = time.Millisecond
	c := NewClient(Config{Endpoint: srv.URL, APIKey: "key", SecretKey: "secret"}, gateways)

	_, err := c.UploadModel(context.Background(), "model.onnx", strings.NewReader(strings.Repeat("w", 1<<20)))
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestValidateModelFile(t *testing.T) {
	for _, name := range []string{"a.pt", "b.ONNX", "c.safetensors", "d.zip"} {
		assert.NoError(t, ValidateModelFile(name), name)
	}
	for _, name := range []string{"a.txt", "noext", "model.onnx.exe"} {
		assert.Error(t, ValidateModelFile(name), name)
	}
}

func TestFetchFallsBackAcrossGateways(t *testing.T) {
	var primaryHits atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryHits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer primary.Close()

	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ipfs/"+testCID, r.URL.Path)
		io.WriteString(w, `{"name":"from mirror"}`)
	}))
	defer mirror.Close()

	c := NewClient(Config{Gateways: []string{primary.URL + "/ipfs/", mirror.URL + "/ipfs/"}}, testHTTPClient())
	data, err := c.Fetch(context.Background(), "ipfs://"+testCID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"from mirror"}`, string(data))
	assert.Equal(t, int32(1), primaryHits.Load())
}

func TestFetchAllGatewaysFail(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer down.Close()

	c := NewClient(Config{Gateways: []string{down.URL + "/ipfs/", down.URL + "/other/"}}, testHTTPClient())
	_, err := c.Fetch(context.Background(), testCID)
	assert.True(t, errors.Is(err, ErrAllGatewaysFailed))

	_, err = c.Fetch(context.Background(), "https://example.com/x.json")
	assert.True(t, errors.Is(err, ErrInvalidCID))
}
