package master

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nerrad567/handset-agent/internal/device"
	"github.com/nerrad567/handset-agent/internal/infrastructure/config"
)

const (
	statusSuccess   = 1
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 10 << 20 // 10 MB
)

// envelope is the master's response wrapper.
type envelope struct {
	Status int             `json:"status"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

// Client talks to the master over HTTP.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client from config.
func New(cfg config.MasterConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetDevice fetches the record for id. It returns device.ErrDeviceNotFound
// when the master answers successfully with no data or with HTTP 404.
func (c *Client) GetDevice(ctx context.Context, id device.Identity) (*device.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/device/"+url.PathEscape(string(id)), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	data, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if isEmpty(data) {
		return nil, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id)
	}

	var record device.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: decoding device %s: %v", ErrRequestFailed, id, err)
	}
	return &record, nil
}

// SaveDevice upserts a record.
func (c *Client) SaveDevice(ctx context.Context, record device.Record) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding device: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/device/save", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req)
	return err
}

// UploadFile uploads a local file as multipart field "file" and returns the
// download URL the master assigns.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path is a screenshot we created
	if err != nil {
		return "", fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("writing form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("closing multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/file", &buf)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	data, err := c.do(req)
	if err != nil {
		return "", err
	}

	// data is either the URL string or an object carrying downloadURL.
	var link string
	if err := json.Unmarshal(data, &link); err == nil && link != "" {
		return link, nil
	}
	var obj struct {
		DownloadURL string `json:"downloadURL"`
	}
	if err := json.Unmarshal(data, &obj); err != nil || obj.DownloadURL == "" {
		return "", fmt.Errorf("%w: upload returned no download URL", ErrRequestFailed)
	}
	return obj.DownloadURL, nil
}

// do executes req and unwraps the envelope, returning its data.
func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrRequestFailed, err)
	}

	if resp.StatusCode == http.StatusNotFound && req.Method == http.MethodGet {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s %s: HTTP %d", ErrRequestFailed, req.Method, req.URL.Path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decoding envelope: %v", ErrRequestFailed, err)
	}
	if env.Status != statusSuccess {
		return nil, fmt.Errorf("%w: %s %s: %s", ErrRequestFailed, req.Method, req.URL.Path, env.Msg)
	}
	return env.Data, nil
}

func isEmpty(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
