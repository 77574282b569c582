package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GenAIImageClient generates images with Google's Imagen models.
type GenAIImageClient struct {
	client *genai.Client
	model  string
}

func NewGenAIImageClient(ctx context.Context, apiKey, model string) (*GenAIImageClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "imagen-3.0-generate-002"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIImageClient{client: client, model: model}, nil
}

// GenerateImage ignores req.Size; Imagen takes an aspect ratio and the
// service only asks for square images.
func (c *GenAIImageClient) GenerateImage(ctx context.Context, req ImageRequest) (*Image, error) {
	resp, err := c.client.Models.GenerateImages(ctx, c.model, req.Prompt, &genai.GenerateImagesConfig{
		AspectRatio:    "1:1",
		OutputMIMEType: "image/png",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageService, err)
	}
	for _, gi := range resp.GeneratedImages {
		if gi == nil || gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
			continue
		}
		mime := gi.Image.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return validateImage(&Image{
			MIMEType:   mime,
			Base64Data: base64.StdEncoding.EncodeToString(gi.Image.ImageBytes),
		})
	}
	return nil, fmt.Errorf("%w: no images returned", ErrImageService)
}

// NewImageGenerator picks the image backend by name: "toolkit" (HTTP) or
// "genai" (Google Imagen).
func NewImageGenerator(ctx context.Context, provider, url, apiKey, model string) (ImageGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "toolkit":
		return NewToolkitImageClient(url), nil
	case "genai":
		return NewGenAIImageClient(ctx, apiKey, model)
	default:
		return nil, fmt.Errorf("unknown image provider: %s", provider)
	}
}
