package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
	"github.com/craftai-co-in/superflow/internal/netutil"
)

const (
	defaultBaseURL         = "https://api.openai.com/v1"
	defaultTranscribeModel = "whisper-1"
	defaultEnhanceModel    = "gpt-4o-mini"
	maxResponseBytes       = 4 << 20
)

// Config configures OpenAIClient.
type Config struct {
	APIKey          string
	BaseURL         string
	TranscribeModel string
	EnhanceModel    string
	Dialer          *netutil.Dialer
}

// OpenAIClient implements Provider against an OpenAI-compatible API.
type OpenAIClient struct {
	apiKey          string
	baseURL         string
	transcribeModel string
	enhanceModel    string
	client          *http.Client
}

// NewOpenAIClient creates a new OpenAI API client
func NewOpenAIClient(cfg Config) *OpenAIClient {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	transcribeModel := cfg.TranscribeModel
	if transcribeModel == "" {
		transcribeModel = defaultTranscribeModel
	}
	enhanceModel := cfg.EnhanceModel
	if enhanceModel == "" {
		enhanceModel = defaultEnhanceModel
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = netutil.NewDialer()
	}
	return &OpenAIClient{
		apiKey:          cfg.APIKey,
		baseURL:         baseURL,
		transcribeModel: transcribeModel,
		enhanceModel:    enhanceModel,
		client:          dialer.HTTPClient(120 * time.Second),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Transcribe uploads audio to the transcription endpoint.
func (c *OpenAIClient) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if filename == "" {
		filename = "recording.webm"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("model", c.transcribeModel); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", internalerrors.New(internalerrors.KindUpload, "transcribe", fmt.Errorf("read audio: %w", err))
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	var out transcriptionResponse
	if err := c.post(ctx, "transcribe", "/audio/transcriptions", mw.FormDataContentType(), &buf, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Text), nil
}

// Enhance rewrites a transcript with the chat completions endpoint.
func (c *OpenAIClient) Enhance(ctx context.Context, transcript string, style Style) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.enhanceModel,
		Messages: []chatMessage{
			{Role: "system", Content: style.Instruction()},
			{Role: "user", Content: transcript},
		},
		Temperature: 0.4,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var out chatResponse
	if err := c.post(ctx, "enhance", "/chat/completions", "application/json", bytes.NewReader(body), &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", internalerrors.New(internalerrors.KindUpload, "enhance", fmt.Errorf("no response choices returned"))
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) post(ctx context.Context, op, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return internalerrors.New(internalerrors.KindUpload, op, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return internalerrors.New(internalerrors.KindUpload, op, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		var errResp apiError
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return internalerrors.New(internalerrors.KindUpload, op, fmt.Errorf("API error (%d): %s", resp.StatusCode, msg)).
			WithStatusCode(resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return internalerrors.New(internalerrors.KindUpload, op, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}
