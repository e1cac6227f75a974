// Package cloudinary talks to a Cloudinary-compatible image service: signed
// uploads on the API host and delivery-URL construction for the CDN host.
// All real image processing (resizing, encoding, optimization) happens on
// the service; nothing here touches pixel data.
package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Uploader is the interface the rewrite and transform paths depend on.
type Uploader interface {
	Upload(ctx context.Context, localPath, folder string) (*UploadResult, error)
}

// UploadResult is the service's response to an upload request.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	Version   int64  `json:"version"`
	Format    string `json:"format"`
	Bytes     int64  `json:"bytes"`
	URL       string `json:"url"`
	SecureURL string `json:"secure_url"`
}

// Client uploads files to the image service. Uploads are configured to be
// idempotent server-side: the identifier derives from the file name, an
// existing resource is never overwritten, and repeated uploads of the same
// identifier do not create duplicates. No retries; errors surface to the
// caller.
type Client struct {
	httpClient *http.Client
	apiBase    string
	cloudName  string
	apiKey     string
	apiSecret  string
	now        func() time.Time
}

// NewClient creates an upload client for the given account.
func NewClient(apiBase, cloudName, apiKey, apiSecret string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiBase:    strings.TrimSuffix(apiBase, "/"),
		cloudName:  cloudName,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		now:        time.Now,
	}
}

// Upload sends the file at localPath to the destination folder and returns
// the service's canonical location.
func (c *Client) Upload(ctx context.Context, localPath, folder string) (*UploadResult, error) {
	file, err := os.Open(filepath.Clean(localPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", localPath, err)
	}
	defer func() {
		_ = file.Close() // Ignore close errors on read-only operation
	}()

	params := map[string]string{
		"public_id":       PublicID(localPath),
		"timestamp":       strconv.FormatInt(c.now().Unix(), 10),
		"use_filename":    "true",
		"unique_filename": "false",
		"overwrite":       "false",
	}
	if folder != "" {
		params["folder"] = folder
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range params {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write upload field %s: %w", k, err)
		}
	}
	if err := writer.WriteField("api_key", c.apiKey); err != nil {
		return nil, fmt.Errorf("failed to write upload field api_key: %w", err)
	}
	if err := writer.WriteField("signature", signParams(params, c.apiSecret)); err != nil {
		return nil, fmt.Errorf("failed to write upload field signature: %w", err)
	}

	part, err := writer.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create upload part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", localPath, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize upload body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1_1/%s/image/upload", c.apiBase, c.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}

	return &result, nil
}

// signParams produces the request signature: the SHA-1 hex digest of the
// sorted key=value parameter string concatenated with the API secret.
// api_key and the file payload are excluded from signing.
func signParams(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}
