package ai

import "regexp"

// Request and response shapes for the Gemini generateContent call.

type GenerateContentRequest struct {
	Contents []Content `json:"contents"`
}

type Content struct {
	Parts []Part `json:"parts"`
}

type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

type InlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

func NewGenerateRequest(prompt string) *GenerateContentRequest {
	return &GenerateContentRequest{
		Contents: []Content{{
			Parts: []Part{
				{Text: "Generate an image based on this prompt: " + prompt},
			},
		}},
	}
}

func NewEditRequest(imageB64, prompt string) *GenerateContentRequest {
	return &GenerateContentRequest{
		Contents: []Content{{
			Parts: []Part{
				{Text: "Edit this image based on this prompt: " + prompt},
				{InlineData: &InlineData{MimeType: "image/jpeg", Data: imageB64}},
			},
		}},
	}
}

type GenerateContentResponse struct {
	Candidates []Candidate   `json:"candidates"`
	Error      *ErrorDetails `json:"error,omitempty"`
}

type Candidate struct {
	Content      *CandidateContent `json:"content"`
	FinishReason string            `json:"finishReason"`
}

type CandidateContent struct {
	Parts []ResponsePart `json:"parts"`
}

// ResponsePart tolerates the field spellings seen across API revisions.
// All of this ambiguity stays here; callers only ever see an Image.
type ResponsePart struct {
	Text          string      `json:"text"`
	InlineData    *InlineData `json:"inline_data"`
	InlineDataCC  *InlineData `json:"inlineData"`
	ImageURL      string      `json:"imageUrl"`
	ImageURLSnake string      `json:"image_url"`
}

type ErrorDetails struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

var dataURLPattern = regexp.MustCompile(`data:image/[^;]+;base64,([A-Za-z0-9+/=]+)`)

// firstImage normalizes whatever shape the response carries into one Image.
func firstImage(parts []ResponsePart) (Image, bool) {
	for _, part := range parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			return Image{B64: part.InlineData.Data}, true
		}
		if part.InlineDataCC != nil && part.InlineDataCC.Data != "" {
			return Image{B64: part.InlineDataCC.Data}, true
		}
		if part.ImageURL != "" {
			return Image{URL: part.ImageURL}, true
		}
		if part.ImageURLSnake != "" {
			return Image{URL: part.ImageURLSnake}, true
		}
		if part.Text != "" {
			if match := dataURLPattern.FindStringSubmatch(part.Text); match != nil {
				return Image{B64: match[1]}, true
			}
		}
	}
	return Image{}, false
}

func hasText(parts []ResponsePart) bool {
	for _, part := range parts {
		if part.Text != "" {
			return true
		}
	}
	return false
}
