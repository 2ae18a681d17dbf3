package media

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.uber.org/zap"
)

// CloudinaryUploader stores service images in one Cloudinary folder.
type CloudinaryUploader struct {
	cld    *cloudinary.Cloudinary
	folder string
	log    *zap.Logger
}

func NewCloudinaryUploader(cloudName, apiKey, apiSecret, folder string, log *zap.Logger) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	return &CloudinaryUploader{cld: cld, folder: folder, log: log}, nil
}

// UploadImage uploads r under publicID, replacing any earlier image with the same id, and returns its https URL.
func (u *CloudinaryUploader) UploadImage(ctx context.Context, r io.Reader, publicID string) (string, error) {
	overwrite := true
	unique := false
	res, err := u.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		Folder:         u.folder,
		PublicID:       publicID,
		Overwrite:      &overwrite,
		UniqueFilename: &unique,
		ResourceType:   "image",
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", publicID, err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("upload %s: %s", publicID, res.Error.Message)
	}

	u.log.Info("image uploaded", zap.String("public_id", res.PublicID), zap.Int("bytes", res.Bytes))
	return res.SecureURL, nil
}
