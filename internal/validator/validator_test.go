package validator

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type sample struct {
	Name  string `json:"name" binding:"required,notblank,max=10"`
	Count int    `json:"count" binding:"min=1"`
}

type sampleQuery struct {
	Refresh bool `form:"refresh"`
	Page    int  `form:"page" binding:"omitempty,min=1"`
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	Setup()
	os.Exit(m.Run())
}

func bindBody(t *testing.T, body string) (sample, map[string]string) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	var dst sample
	return dst, Bind(c, &dst)
}

func TestBindValid(t *testing.T) {
	_, fields := bindBody(t, `{"name":"ok","count":2}`)
	if fields != nil {
		t.Fatalf("unexpected errors: %v", fields)
	}
}

func TestBindUsesJSONFieldNames(t *testing.T) {
	_, fields := bindBody(t, `{"name":"","count":0}`)
	if _, ok := fields["name"]; !ok {
		t.Fatalf("expected error keyed by json name, got %v", fields)
	}
	if _, ok := fields["count"]; !ok {
		t.Fatalf("expected count error, got %v", fields)
	}
}

func TestNotBlank(t *testing.T) {
	_, fields := bindBody(t, `{"name":"   ","count":1}`)
	msg, ok := fields["name"]
	if !ok {
		t.Fatalf("blank name accepted")
	}
	if !strings.Contains(msg, "must not be blank") {
		t.Fatalf("message = %q", msg)
	}
}

func TestBindSyntaxError(t *testing.T) {
	_, fields := bindBody(t, `{"name":`)
	if _, ok := fields["detail"]; !ok {
		t.Fatalf("expected detail for malformed JSON, got %v", fields)
	}
}

func TestBindQuery(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?refresh=1&page=-1", nil)

	var q sampleQuery
	fields := BindQuery(c, &q)
	if _, ok := fields["page"]; !ok {
		t.Fatalf("expected page error keyed by form name, got %v", fields)
	}
	if !q.Refresh {
		t.Fatalf("refresh not bound")
	}
}
