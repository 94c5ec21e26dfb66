package ai

import (
	"Painty/core"
	"Painty/lib/sl"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Image is the canonical result of a generate or edit call:
// base64 payload, retrievable URL, or both.
type Image struct {
	B64 string
	URL string
}

func (i Image) Empty() bool {
	return i.B64 == "" && i.URL == ""
}

// APIError is a failure reported by the Gemini API itself,
// carrying the HTTP status and the API error status string.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini api error %d (%s): %s", e.StatusCode, e.Status, e.Message)
}

type Gemini struct {
	conf   *core.Config
	log    *slog.Logger
	client *http.Client
}

func NewGemini(conf *core.Config, log *slog.Logger) *Gemini {
	return &Gemini{
		conf: conf,
		log:  log.With(sl.Module("gemini")),
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (g *Gemini) GenerateImage(ctx context.Context, prompt string) (Image, error) {
	return g.call(ctx, NewGenerateRequest(prompt))
}

func (g *Gemini) EditImage(ctx context.Context, imageB64, prompt string) (Image, error) {
	if imageB64 == "" {
		return Image{}, errors.New("edit requested with no input image")
	}
	return g.call(ctx, NewEditRequest(imageB64, prompt))
}

func (g *Gemini) call(ctx context.Context, request *GenerateContentRequest) (Image, error) {
	if g.conf.Gemini.ApiKey == "" {
		return Image{}, errors.New("gemini api key is not configured")
	}

	jsonBytes, err := json.Marshal(request)
	if err != nil {
		return Image{}, fmt.Errorf("marshalling request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s",
		g.conf.Gemini.ApiUrl, g.conf.Gemini.Model, g.conf.Gemini.ApiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBytes))
	if err != nil {
		return Image{}, fmt.Errorf("making request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("getting response: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			g.log.Error("closing response body", sl.Err(err))
		}
	}(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Image{}, fmt.Errorf("reading response body: %w", err)
	}

	var response GenerateContentResponse
	if err := json.Unmarshal(body, &response); err != nil {
		// proxies and overloaded upstreams answer with non-JSON bodies;
		// the status code still has to reach the classifier
		if resp.StatusCode != http.StatusOK {
			return Image{}, &APIError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Message:    string(body),
			}
		}
		return Image{}, fmt.Errorf("decoding response: %w", err)
	}

	if response.Error != nil {
		return Image{}, &APIError{
			StatusCode: response.Error.Code,
			Status:     response.Error.Status,
			Message:    response.Error.Message,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return Image{}, &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    string(body),
		}
	}

	g.log.With(
		slog.String("model", g.conf.Gemini.Model),
		slog.Int("candidates", len(response.Candidates)),
	).Debug("generate content response")

	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return Image{}, errors.New("unexpected response format: no candidates")
	}

	parts := response.Candidates[0].Content.Parts
	image, ok := firstImage(parts)
	if !ok {
		if hasText(parts) {
			return Image{}, errors.New("model returned text instead of image")
		}
		return Image{}, errors.New("no image data found in response")
	}
	return image, nil
}
