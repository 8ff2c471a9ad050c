package service

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func uploadPart(t *testing.T, contentType string, body []byte) (multipart.File, *multipart.FileHeader) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="upload.bin"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(body); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	form, err := multipart.NewReader(&buf, mw.Boundary()).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("read form: %v", err)
	}
	t.Cleanup(func() { _ = form.RemoveAll() })
	header := form.File["file"][0]
	f, err := header.Open()
	if err != nil {
		t.Fatalf("open part: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f, header
}

func newTestMedia(t *testing.T) *MediaService {
	cfg := testConfig()
	cfg.UploadDir = t.TempDir()
	cfg.PublicBaseURL = "http://localhost:8080"
	return NewMediaService(cfg)
}

func TestSaveUploadStoresImage(t *testing.T) {
	svc := newTestMedia(t)

	url, err := svc.SaveUpload(uploadPart(t, "image/png", pngHeader))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(url, "http://localhost:8080/uploads/") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("unexpected url %q", url)
	}
	stored := filepath.Join(svc.cfg.UploadDir, filepath.Base(url))
	data, err := os.ReadFile(stored)
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if !bytes.Equal(data, pngHeader) {
		t.Fatalf("stored bytes differ from upload")
	}

	if err := svc.Delete(url); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(stored); !os.IsNotExist(err) {
		t.Fatalf("file should be removed, stat err %v", err)
	}
	if err := svc.Delete(url); err != nil {
		t.Fatalf("deleting twice should be a no-op: %v", err)
	}
}

func TestSaveUploadRejectsNonImages(t *testing.T) {
	svc := newTestMedia(t)

	if _, err := svc.SaveUpload(uploadPart(t, "text/plain", []byte("hello"))); !errors.Is(err, ErrUnsupportedFileType) {
		t.Fatalf("expected ErrUnsupportedFileType for declared text, got %v", err)
	}
	// Declared as an image, but the content is text.
	if _, err := svc.SaveUpload(uploadPart(t, "image/png", []byte("just some text"))); !errors.Is(err, ErrUnsupportedFileType) {
		t.Fatalf("expected ErrUnsupportedFileType for sniffed text, got %v", err)
	}
	entries, _ := os.ReadDir(svc.cfg.UploadDir)
	if len(entries) != 0 {
		t.Fatalf("rejected uploads must not leave files, found %d", len(entries))
	}
}

func TestSaveUploadEnforcesSizeLimit(t *testing.T) {
	svc := newTestMedia(t)
	big := append(append([]byte{}, pngHeader...), make([]byte, 2048)...)

	if _, err := svc.SaveUpload(uploadPart(t, "image/png", big)); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestDeleteIgnoresForeignURLs(t *testing.T) {
	svc := newTestMedia(t)
	if err := svc.Delete("https://cdn.example.com/images/a.png"); err != nil {
		t.Fatalf("foreign url: %v", err)
	}
}
