package upload

import (
	"context"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.uber.org/zap"
)

type Result struct {
	URL      string
	PublicID string
}

// Uploader pushes a local file to the CDN and returns its public URL.
// An empty publicID lets the backend assign one.
type Uploader interface {
	Upload(ctx context.Context, path, resourceType, publicID string) (*Result, error)
}

type Cloudinary struct {
	client *cloudinary.Cloudinary
	logger *zap.Logger
}

func NewCloudinary(cloudName, apiKey, apiSecret string, logger *zap.Logger) (*Cloudinary, error) {
	client, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	return &Cloudinary{client: client, logger: logger}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, path, resourceType, publicID string) (*Result, error) {
	resp, err := c.client.Upload.Upload(ctx, path, uploader.UploadParams{
		ResourceType: resourceType,
		PublicID:     publicID,
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", path, err)
	}
	if resp.Error.Message != "" {
		return nil, fmt.Errorf("upload %s: %s", path, resp.Error.Message)
	}

	c.logger.Info("file uploaded",
		zap.String("public_id", resp.PublicID),
		zap.String("url", resp.SecureURL),
	)

	return &Result{URL: resp.SecureURL, PublicID: resp.PublicID}, nil
}
