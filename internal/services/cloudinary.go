package services

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

// MaxAttachmentSize caps a single uploaded attachment.
const MaxAttachmentSize = 25 << 20

const thumbnailTransform = "c_thumb,w_200"

type mediaUploader interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
}

var _ mediaUploader = (*uploader.API)(nil)

// AttachmentService uploads message attachments to Cloudinary. The returned
// attachment is what a client puts into a send command.
type AttachmentService struct {
	up     mediaUploader
	folder string
}

func NewAttachmentService(cloudName, apiKey, apiSecret, folder string) (*AttachmentService, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	return &AttachmentService{up: &cld.Upload, folder: folder}, nil
}

func (s *AttachmentService) UploadFromHeader(ctx context.Context, fileHeader *multipart.FileHeader) (*models.MessageAttachment, error) {
	if fileHeader.Size > MaxAttachmentSize {
		return nil, fmt.Errorf("%w: attachment exceeds %d bytes", models.ErrInvalidMessage, MaxAttachmentSize)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	fileBytes, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	res, err := s.up.Upload(ctx, fileBytes, uploader.UploadParams{
		Folder:       s.folder,
		ResourceType: "auto", // Automatically detect image, video, or raw
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	att := &models.MessageAttachment{
		Name:     fileHeader.Filename,
		Size:     fileHeader.Size,
		MimeType: mimeType,
		URL:      res.SecureURL,
	}
	if strings.HasPrefix(mimeType, "image/") {
		att.Thumbnail = thumbnailURL(res.SecureURL)
	}
	return att, nil
}

// thumbnailURL inserts a delivery transformation after the /upload/ segment.
func thumbnailURL(secureURL string) string {
	const marker = "/upload/"
	i := strings.Index(secureURL, marker)
	if i < 0 {
		return ""
	}
	cut := i + len(marker)
	return secureURL[:cut] + thumbnailTransform + "/" + secureURL[cut:]
}
