package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrImageService marks failures of the external image backend: transport
// errors, non-2xx responses and malformed payloads.
var ErrImageService = errors.New("image service error")

type ImageRequest struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
}

type Image struct {
	MIMEType   string `json:"mimeType"`
	Base64Data string `json:"base64Data"`
}

// DataURI renders the image as data:<mime>;base64,<payload>.
func (i Image) DataURI() string {
	return "data:" + i.MIMEType + ";base64," + i.Base64Data
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (*Image, error)
}

// ToolkitImageClient calls an HTTP endpoint that answers
// {"image":{"mimeType":..,"base64Data":..}}.
type ToolkitImageClient struct {
	URL    string
	Client *http.Client
}

func NewToolkitImageClient(url string) *ToolkitImageClient {
	if url == "" {
		url = "https://toolkit.rork.com/images/generate/"
	}
	return &ToolkitImageClient{
		URL:    url,
		Client: &http.Client{Timeout: 3 * time.Minute},
	}
}

type toolkitImageResp struct {
	Image *Image `json:"image"`
}

func (c *ToolkitImageClient) GenerateImage(ctx context.Context, in ImageRequest) (*Image, error) {
	if c.Client == nil {
		return nil, errors.New("toolkit: http client is nil")
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrImageService, resp.StatusCode, msg)
	}

	var decoded toolkitImageResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrImageService, err)
	}
	return validateImage(decoded.Image)
}

func validateImage(img *Image) (*Image, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: response has no image", ErrImageService)
	}
	if img.MIMEType == "" || img.Base64Data == "" {
		return nil, fmt.Errorf("%w: image is missing mimeType or base64Data", ErrImageService)
	}
	if !strings.HasPrefix(img.MIMEType, "image/") {
		return nil, fmt.Errorf("%w: unexpected mime type %q", ErrImageService, img.MIMEType)
	}
	if _, err := base64.StdEncoding.DecodeString(img.Base64Data); err != nil {
		return nil, fmt.Errorf("%w: image payload is not base64: %v", ErrImageService, err)
	}
	return img, nil
}
