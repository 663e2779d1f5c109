package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dadras-ai/dadras/internal/models"
)

func TestClient_Generate(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "پاسخ"}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Model: "gpt-4o-mini"})
	history := []models.Turn{
		{Role: "user", Content: "سوال قبلی"},
		{Role: "assistant", Content: "پاسخ قبلی"},
	}
	answer, err := c.Generate(context.Background(), history, "سوال جدید")
	if err != nil {
		t.Fatal(err)
	}
	if answer != "پاسخ" {
		t.Errorf("answer = %q", answer)
	}
	if len(captured.Messages) != 4 {
		t.Fatalf("sent %d messages, want 4", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || captured.Messages[0].Content != SystemPrompt {
		t.Error("first message should carry the system prompt")
	}
	if captured.Messages[1].Content != "سوال قبلی" || captured.Messages[2].Content != "پاسخ قبلی" {
		t.Error("history turns not forwarded in order")
	}
	if captured.Messages[3].Role != "user" || captured.Messages[3].Content != "سوال جدید" {
		t.Error("final message should be the user prompt")
	}
}

func TestClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), nil, "q")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := c.Generate(context.Background(), nil, "q")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestClient_Unreachable(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Generate(context.Background(), nil, "q")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), nil, "q")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}
