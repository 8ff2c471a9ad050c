package service

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/stemsi/exlab-backend/internal/config"
)

// Sentinel errors for media uploads.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

const uploadsPath = "/uploads/"

// MediaService stores uploaded images on local disk.
type MediaService struct {
	cfg *config.Config
}

// NewMediaService creates a new MediaService.
func NewMediaService(cfg *config.Config) *MediaService {
	return &MediaService{cfg: cfg}
}

// SaveUpload stores an image under a random name and returns its public
// URL. Both the declared Content-Type and the sniffed content must be an
// image.
func (s *MediaService) SaveUpload(file multipart.File, header *multipart.FileHeader) (string, error) {
	declared := header.Header.Get("Content-Type")
	if !strings.HasPrefix(declared, "image/") {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, declared)
	}
	if header.Size > s.cfg.MaxUploadBytes {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, header.Size, s.cfg.MaxUploadBytes)
	}

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return "", fmt.Errorf("detect type: %w", err)
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("%w: content is %s", ErrUnsupportedFileType, mtype.String())
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	filename := uuid.NewString() + mtype.Extension()
	destPath := filepath.Join(s.cfg.UploadDir, filename)

	dst, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	// The declared size can lie; cap what is actually copied.
	n, err := io.Copy(dst, io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	closeErr := dst.Close()
	switch {
	case err != nil:
		_ = os.Remove(destPath)
		return "", fmt.Errorf("write file: %w", err)
	case n > s.cfg.MaxUploadBytes:
		_ = os.Remove(destPath)
		return "", fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, s.cfg.MaxUploadBytes)
	case closeErr != nil:
		_ = os.Remove(destPath)
		return "", fmt.Errorf("close file: %w", closeErr)
	}

	return s.cfg.PublicBaseURL + uploadsPath + filename, nil
}

// Delete removes a file previously returned by SaveUpload. URLs that do not
// point into the upload directory and files already gone are ignored.
func (s *MediaService) Delete(url string) error {
	idx := strings.Index(url, uploadsPath)
	if idx < 0 {
		return nil
	}
	name := path.Base(url[idx+len(uploadsPath):])
	if name == "." || name == "/" || name == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.cfg.UploadDir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
