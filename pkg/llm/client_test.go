package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteMessages(t *testing.T) {
	var gotPath string
	var gotPayload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello back"}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-model", 5*time.Second)
	out, err := client.CompleteMessages(context.Background(), []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
	})

	require.NoError(t, err)
	assert.Equal(t, "hello back", out)
	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "test-model", gotPayload["model"])
	assert.Len(t, gotPayload["messages"], 2)
}

func TestCompleteWithSystemSendsSystemPromptField(t *testing.T) {
	var gotPayload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		_, _ = w.Write([]byte(`{"choices":[{"text":"completion"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second)
	out, err := client.CompleteWithSystem(context.Background(), "be brief", "hi")

	require.NoError(t, err)
	assert.Equal(t, "completion", out)
	assert.Equal(t, "be brief", gotPayload["system_prompt"])
	assert.Equal(t, "hi", gotPayload["prompt"])
	_, hasModel := gotPayload["model"]
	assert.False(t, hasModel)
}

func TestCompleteQuietUsesCompletionsEndpoint(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"choices":[{"text":"quiet completion"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second)
	out, err := client.CompleteQuiet(context.Background(), "combined block")

	require.NoError(t, err)
	assert.Equal(t, "quiet completion", out)
	assert.Equal(t, "/v1/completions", gotPath)
}

func TestUpstreamErrorIncludesStatusAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("Bad Gateway"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second)
	_, err := client.CompleteQuiet(context.Background(), "x")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "Bad Gateway")
}

func TestEmptyChoicesIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second)
	_, err := client.CompleteMessages(context.Background(), []Message{{Role: "user", Content: "hi"}})

	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/models" {
			_, _ = w.Write([]byte(`{"data":[]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second)
	assert.NoError(t, client.HealthCheck(context.Background()))

	server.Close()
	assert.Error(t, client.HealthCheck(context.Background()))
}

func TestContextCancellationAborts(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server detects the client disconnect and
		// cancels r.Context(); otherwise this handler deadlocks.
		_, _ = io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := client.CompleteQuiet(ctx, "x")
	assert.Error(t, err)
}
