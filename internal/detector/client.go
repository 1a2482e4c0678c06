package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/vigilo/proctor_backend_v1/internal/camera"
)

var ErrNotReady = errors.New("detector: face models not loaded")

// Face is one detected face in a frame.
type Face struct {
	Box        Box       `json:"box"`
	Embedding  []float64 `json:"embedding"`
	Confidence float64   `json:"confidence"`
}

// Box is a pixel-space bounding box.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type detectRequest struct {
	ImageBase64 string `json:"image_base64"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

type detectResponse struct {
	Faces []Face `json:"faces"`
}

type healthResponse struct {
	Status       string `json:"status"`
	ModelsLoaded bool   `json:"models_loaded"`
}

// Client talks to the external face inference service: frame in, detected
// faces with embeddings out.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// One in-flight readiness probe at a time; the loaded flag is owned
	// here, not spread across call sites.
	mu      sync.Mutex
	loading chan struct{}
	loaded  bool
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// EnsureReady blocks until the inference service reports its models loaded,
// polling health. Concurrent callers share a single in-flight probe.
func (c *Client) EnsureReady(ctx context.Context) error {
	c.mu.Lock()
	if c.loaded {
		c.mu.Unlock()
		return nil
	}
	if c.loading != nil {
		ch := c.loading
		c.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		loaded := c.loaded
		c.mu.Unlock()
		if loaded {
			return nil
		}
		return ErrNotReady
	}
	ch := make(chan struct{})
	c.loading = ch
	c.mu.Unlock()

	err := c.waitHealthy(ctx)

	c.mu.Lock()
	c.loaded = err == nil
	c.loading = nil
	close(ch)
	c.mu.Unlock()
	return err
}

func (c *Client) waitHealthy(ctx context.Context) error {
	for {
		ok, err := c.health(ctx)
		if err == nil && ok {
			return nil
		}
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) health(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/health", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("detector: health returned %d", resp.StatusCode)
	}
	var hr healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return false, err
	}
	return hr.ModelsLoaded, nil
}

// DetectFaces runs face detection and embedding extraction on one frame.
func (c *Client) DetectFaces(ctx context.Context, frame camera.Frame) ([]Face, error) {
	body := detectRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(frame.JPEG),
		Width:       frame.Width,
		Height:      frame.Height,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("detector: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/faces/detect", bytes.NewBuffer(data))
	if err != nil {
		return nil, fmt.Errorf("detector: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, ErrNotReady
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detector: status %d: %s", resp.StatusCode, string(b))
	}

	var dr detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("detector: decode response: %w", err)
	}
	return dr.Faces, nil
}
