package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePreviewURL(t *testing.T) {
	// Literal addresses resolve without DNS, keeping the cases hermetic.
	blocked := []string{
		"ftp://example.com/file",
		"http://localhost/admin",
		"http://internal.local/status",
		"http://127.0.0.1/admin",
		"http://[::1]/admin",
		"http://169.254.169.254/latest/meta-data",
		"http://10.0.0.5/",
		"://not-a-url",
	}
	for _, target := range blocked {
		assert.Error(t, validatePreviewURL(target), target)
	}
}

func TestLinkPreviewRejectsWithoutBootingBrowser(t *testing.T) {
	previews := newPreviewRenderer()
	h := handleLinkPreview(previews)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/preview", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/preview?url=http://127.0.0.1/admin", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Rejected requests must not start the shared playwright instance.
	assert.Nil(t, previews.pw)
	assert.Nil(t, previews.browser)
}
