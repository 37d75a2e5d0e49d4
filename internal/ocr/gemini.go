package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

const defaultTimeout = 180 * time.Second

// GeminiEngine implements Engine against a Gemini-style generateContent
// endpoint with structured output.
type GeminiEngine struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewGeminiEngine constructs an OCR engine client.
func NewGeminiEngine(endpoint, apiKey, model string, timeout time.Duration) (*GeminiEngine, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("OCR_ENDPOINT is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("OCR_MODEL is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &GeminiEngine{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

const extractionPrompt = `Extract the supplier order confirmation from the attached document.
Return ONLY a JSON object matching the response schema. Fill the "reasoning"
field with a short justification of how each header field was identified.
Use "Nicht gefunden" for fields that are not present in the document.`

type requestPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *requestInline  `json:"inlineData,omitempty"`
}

type requestInline struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type requestContent struct {
	Role  string        `json:"role,omitempty"`
	Parts []requestPart `json:"parts"`
}

type extractRequest struct {
	Contents         []requestContent `json:"contents"`
	GenerationConfig struct {
		Temperature      float32         `json:"temperature"`
		ResponseMimeType string          `json:"responseMimeType"`
		ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
	} `json:"generationConfig"`
}

type extractResponse struct {
	Candidates []struct {
		Content requestContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Extract runs one OCR call and returns the raw model text.
func (e *GeminiEngine) Extract(ctx context.Context, source []byte, filename string, schema json.RawMessage, hints json.RawMessage) (string, error) {
	prompt := extractionPrompt
	if len(hints) > 0 {
		prompt += "\n\nField coordinate hints for this supplier's layout:\n" + string(hints)
	}

	reqBody := extractRequest{
		Contents: []requestContent{{
			Role: "user",
			Parts: []requestPart{
				{Text: prompt},
				{InlineData: &requestInline{
					MimeType: detectMimeType(filename),
					Data:     base64.StdEncoding.EncodeToString(source),
				}},
			},
		}},
	}
	reqBody.GenerationConfig.ResponseMimeType = "application/json"
	reqBody.GenerationConfig.ResponseSchema = schema

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(e.endpoint, "/"), e.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("x-goog-api-key", e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("ocr read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, string(body))
	}

	var parsed extractResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("ocr decode response: %w", err)
	}
	if parsed.Error != nil {
		if parsed.Error.Code == 401 || parsed.Error.Code == 403 {
			return "", fmt.Errorf("%w: %s", ErrAuth, parsed.Error.Message)
		}
		return "", fmt.Errorf("ocr error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

func detectMimeType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/pdf"
	}
}

var _ Engine = (*GeminiEngine)(nil)
