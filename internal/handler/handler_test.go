package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stemsi/exlab-backend/internal/config"
	"github.com/stemsi/exlab-backend/internal/engine"
	"github.com/stemsi/exlab-backend/internal/response"
	"github.com/stemsi/exlab-backend/internal/service"
	"github.com/stemsi/exlab-backend/internal/validator"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	validator.Setup()
	os.Exit(m.Run())
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) response.ErrCode {
	t.Helper()
	var body response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error == nil {
		t.Fatalf("expected an error envelope, got %s", w.Body.String())
	}
	return body.Error.Code
}

func TestFlowStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{service.ErrInvalidSession, http.StatusBadRequest, response.ErrInvalidSession},
		{fmt.Errorf("load: %w", service.ErrRunNotStarted), http.StatusNotFound, response.ErrRunNotStarted},
		{service.ErrSessionNotStarted, http.StatusConflict, response.ErrSessionNotStarted},
		{engine.ErrFinished, http.StatusConflict, response.ErrSessionFinished},
		{service.ErrSessionNotFinished, http.StatusConflict, response.ErrSessionNotFinished},
		{engine.ErrSubmitInProgress, http.StatusConflict, response.ErrSubmitInProgress},
		{engine.ErrPopupNotVisible, http.StatusConflict, response.ErrPopupNotVisible},
		{engine.ErrUnknownQuestion, http.StatusBadRequest, response.ErrInvalidAnswer},
		{engine.ErrInvalidAnswer, http.StatusBadRequest, response.ErrInvalidAnswer},
		{service.ErrNoEvaluation, http.StatusNotFound, response.ErrNoEvaluation},
		{service.ErrNoResult, http.StatusNotFound, response.ErrNoResult},
		{pgx.ErrNoRows, http.StatusNotFound, response.ErrNotFound},
		{errors.New("boom"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tc := range cases {
		status, code := flowStatus(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("flowStatus(%v) = %d %s, want %d %s", tc.err, status, code, tc.status, tc.code)
		}
	}
}

func TestFailStoreMapsPostgresErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{pgx.ErrNoRows, http.StatusNotFound},
		{fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), http.StatusConflict},
		{&pgconn.PgError{Code: "23503"}, http.StatusNotFound},
		{&pgconn.PgError{Code: "42P01"}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		failStore(c, tc.err)
		if w.Code != tc.status {
			t.Fatalf("failStore(%v) status %d, want %d", tc.err, w.Code, tc.status)
		}
	}
}

func TestParticipantRejectsMalformedSessionID(t *testing.T) {
	h := NewParticipantHandler(nil, nil, nil)
	r := gin.New()
	r.GET("/sessions/:id", h.GetSession)

	for _, id := range []string{"abc", "0", "-3", "1.5"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("id %q: status %d, want 400", id, w.Code)
		}
		if code := errorCode(t, w); code != response.ErrInvalidSession {
			t.Fatalf("id %q: code %s", id, code)
		}
	}
}

func TestStartRunValidatesUserID(t *testing.T) {
	h := NewParticipantHandler(nil, nil, nil)
	r := gin.New()
	r.POST("/start", h.StartRun)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/start", strings.NewReader(`{"user_id":"not valid!"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest || errorCode(t, w) != response.ErrValidation {
		t.Fatalf("expected a validation error, got %d %s", w.Code, w.Body.String())
	}
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func uploadRequest(t *testing.T, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if data != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="upload"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestPublicUploadBareResponses(t *testing.T) {
	cfg := &config.Config{UploadDir: t.TempDir(), MaxUploadBytes: 256, PublicBaseURL: "https://cdn.test"}
	h := NewMediaHandler(service.NewMediaService(cfg))
	r := gin.New()
	r.POST("/api/upload", h.PublicUpload)

	cases := []struct {
		name   string
		req    *http.Request
		status int
		key    string
		want   string
	}{
		{"no file", uploadRequest(t, "", nil), http.StatusBadRequest, "error", "No file uploaded"},
		{"not an image", uploadRequest(t, "text/plain", []byte("hello")), http.StatusBadRequest, "error", "Only image files are allowed"},
		{"disguised text", uploadRequest(t, "image/png", []byte("plain text body")), http.StatusBadRequest, "error", "Only image files are allowed"},
		{"too large", uploadRequest(t, "image/png", append(pngHeader, make([]byte, 512)...)), http.StatusBadRequest, "error", "File too large"},
		{"png", uploadRequest(t, "image/png", pngHeader), http.StatusOK, "url", "https://cdn.test/uploads/"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, tc.req)
		if w.Code != tc.status {
			t.Fatalf("%s: status %d, want %d (%s)", tc.name, w.Code, tc.status, w.Body.String())
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode: %v", tc.name, err)
		}
		if len(body) != 1 || !strings.HasPrefix(body[tc.key], tc.want) {
			t.Fatalf("%s: unexpected body %v", tc.name, body)
		}
	}
}
