package ai

import (
	"Painty/core"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGemini(t *testing.T, handler http.HandlerFunc) *Gemini {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	conf := &core.Config{}
	conf.Gemini.ApiKey = "test-key"
	conf.Gemini.ApiUrl = server.URL
	conf.Gemini.Model = "test-model"

	g := NewGemini(conf, slog.New(slog.NewTextHandler(io.Discard, nil)))
	g.client = &http.Client{Timeout: 5 * time.Second}
	return g
}

// A proxy or overloaded upstream answers with an HTML body, not JSON.
// The status code must still reach the classifier.
func TestCallNonJSONErrorBodyKeepsStatus(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("<html>upstream overloaded</html>"))
	})

	_, err := g.GenerateImage(context.Background(), "a red cat")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)

	c := Classify(err)
	assert.Equal(t, KindServerError, c.Kind)
	assert.Equal(t, 120*time.Second, c.RetryAfter)
}

func TestCallAPIErrorBody(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"quota exceeded"}}`))
	})

	_, err := g.GenerateImage(context.Background(), "a red cat")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 429, apiErr.StatusCode)
	assert.Equal(t, "RESOURCE_EXHAUSTED", apiErr.Status)

	assert.Equal(t, KindRateLimit, Classify(err).Kind)
}

func TestCallReturnsInlineImage(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"inlineData":{"mime_type":"image/png","data":"Zm9v"}}]}}]}`))
	})

	image, err := g.GenerateImage(context.Background(), "a red cat")
	require.NoError(t, err)
	assert.Equal(t, Image{B64: "Zm9v"}, image)
}
