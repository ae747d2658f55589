package voice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
)

func TestTranscribeSendsMultipartAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "clip.webm", header.Filename)
		data, _ := io.ReadAll(file)
		assert.Equal(t, "RIFF-audio", string(data))

		_, _ = w.Write([]byte(`{"text": "  hello world  "}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(Config{APIKey: "sk-test", BaseURL: server.URL + "/v1"})
	text, err := client.Transcribe(context.Background(), strings.NewReader("RIFF-audio"), "clip.webm")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestEnhanceUsesStyleInstruction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, defaultEnhanceModel, req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, StyleTwitter.Instruction(), req.Messages[0].Content)
		assert.Equal(t, "raw words", req.Messages[1].Content)

		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "Polished!"}, "finish_reason": "stop"}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(Config{APIKey: "k", BaseURL: server.URL})
	out, err := client.Enhance(context.Background(), "raw words", StyleTwitter)
	require.NoError(t, err)
	assert.Equal(t, "Polished!", out)
}

func TestProviderErrorsAreUploadErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limited", "type": "requests"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(Config{APIKey: "k", BaseURL: server.URL})
	_, err := client.Enhance(context.Background(), "x", StyleClean)
	require.Error(t, err)
	assert.True(t, errors.Is(err, internalerrors.ErrUpload))
	assert.Contains(t, err.Error(), "rate limited")
	assert.True(t, internalerrors.IsRetryableError(err))
}

func TestEnhanceWithoutChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	_, err := NewOpenAIClient(Config{BaseURL: server.URL}).Enhance(context.Background(), "x", StyleBlog)
	assert.True(t, errors.Is(err, internalerrors.ErrUpload))
}

func TestParseStyle(t *testing.T) {
	st, err := ParseStyle("")
	require.NoError(t, err)
	assert.Equal(t, StyleClean, st)

	st, err = ParseStyle(" LinkedIn ")
	require.NoError(t, err)
	assert.Equal(t, StyleLinkedIn, st)

	_, err = ParseStyle("haiku")
	assert.Error(t, err)
	assert.Equal(t, StyleClean.Instruction(), Style("unknown").Instruction())
}
