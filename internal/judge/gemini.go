package judge

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

	"confirmation-backend/internal/confirmation"
)

const defaultTimeout = 120 * time.Second

// GeminiClient implements Healer against a Gemini-style generateContent
// endpoint with structured output.
type GeminiClient struct {
	endpoint   string
	apiKey     string
	model      string
	schema     json.RawMessage
	httpClient *http.Client
}

// NewGeminiClient constructs a repair client. schema, when non-nil, is sent
// as the response schema so the model is constrained to the document wire
// shape.
func NewGeminiClient(endpoint, apiKey, model string, schema json.RawMessage, timeout time.Duration) (*GeminiClient, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("JUDGE_ENDPOINT is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("JUDGE_MODEL is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &GeminiClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		schema:   schema,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type generatePart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *generateFileData `json:"inlineData,omitempty"`
}

type generateFileData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateContent struct {
	Role  string         `json:"role,omitempty"`
	Parts []generatePart `json:"parts"`
}

type generateRequest struct {
	Contents         []generateContent `json:"contents"`
	GenerationConfig struct {
		Temperature      float32         `json:"temperature"`
		ResponseMimeType string          `json:"responseMimeType"`
		ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
	} `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content generateContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Heal sends the original document, the broken JSON and the error report to
// the correction model and returns the corrected payload.
func (c *GeminiClient) Heal(ctx context.Context, source []byte, filename string, broken json.RawMessage, errs []confirmation.FieldError, hints json.RawMessage) (json.RawMessage, error) {
	prompt, err := buildRepairPrompt(broken, errs, hints)
	if err != nil {
		return nil, err
	}

	reqBody := generateRequest{
		Contents: []generateContent{{
			Role: "user",
			Parts: []generatePart{
				{Text: prompt},
				{InlineData: &generateFileData{
					MimeType: mimeTypeFor(filename),
					Data:     base64.StdEncoding.EncodeToString(source),
				}},
			},
		}},
	}
	reqBody.GenerationConfig.ResponseMimeType = "application/json"
	reqBody.GenerationConfig.ResponseSchema = c.schema

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.endpoint, "/"), c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("judge request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("judge read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("judge http status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("judge decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("judge error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("judge returned no candidates")
	}

	text := strings.TrimSpace(parsed.Candidates[0].Content.Parts[0].Text)
	text = stripCodeFence(text)
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("judge returned invalid JSON")
	}
	return json.RawMessage(text), nil
}

func buildRepairPrompt(broken json.RawMessage, errs []confirmation.FieldError, hints json.RawMessage) (string, error) {
	errReport, err := json.MarshalIndent(errs, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You are a correction service for supplier confirmation extraction.\n")
	b.WriteString("The attached document was analyzed, but the extracted JSON failed validation.\n")
	b.WriteString("Re-read the document and return ONLY the corrected JSON in the same shape.\n\n")
	b.WriteString("Broken JSON:\n")
	b.Write(broken)
	b.WriteString("\n\nValidation findings:\n")
	b.Write(errReport)
	if len(hints) > 0 {
		b.WriteString("\n\nField coordinate hints for this supplier's layout:\n")
		b.Write(hints)
	}
	return b.String(), nil
}

func mimeTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/pdf"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

var _ Healer = (*GeminiClient)(nil)
