package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

func TestNewClient_WithAPIKey(t *testing.T) {
	client, err := NewClient(ClientConfig{APIKey: "test-key-123"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.Model() != anthropic.ModelClaudeSonnet4_20250514 {
		t.Errorf("Model = %q, want %q", client.Model(), anthropic.ModelClaudeSonnet4_20250514)
	}
	if client.Tracker() == nil {
		t.Error("Tracker should not be nil")
	}
}

func TestNewClient_NoAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := NewClient(ClientConfig{})
	if !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("NewClient error = %v, want ErrNoAPIKey", err)
	}
}

func TestResolveModel_Bedrock(t *testing.T) {
	c := &Client{bedrock: true}
	got := c.resolveModel(anthropic.ModelClaudeSonnet4_20250514)
	if got != "us.anthropic.claude-sonnet-4-20250514-v1:0" {
		t.Errorf("resolveModel = %q", got)
	}
	if got := c.resolveModel("us.anthropic.custom-v1:0"); got != "us.anthropic.custom-v1:0" {
		t.Errorf("already translated model changed to %q", got)
	}

	direct := &Client{}
	if got := direct.resolveModel(anthropic.ModelClaudeSonnet4_20250514); got != anthropic.ModelClaudeSonnet4_20250514 {
		t.Errorf("direct client translated model to %q", got)
	}
}

func TestComplete(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "Status: done. "}, {"type": "text", "text": "All green."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 7}
		}`)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{
		APIKey:  "test-key",
		Options: []option.RequestOption{option.WithBaseURL(srv.URL), option.WithMaxRetries(0)},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	out, err := client.Complete(context.Background(), "say hi", CompleteOptions{System: "be brief", MaxTokens: 100})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out.Text != "Status: done. All green." {
		t.Errorf("Text = %q", out.Text)
	}
	if out.StopReason != "end_turn" {
		t.Errorf("StopReason = %q, want end_turn", out.StopReason)
	}
	if in, outTok := client.Tracker().Total(); in != 12 || outTok != 7 {
		t.Errorf("Tracker totals = %d/%d, want 12/7", in, outTok)
	}
	if client.Tracker().Calls() != 1 {
		t.Errorf("Calls = %d, want 1", client.Tracker().Calls())
	}
	if gotBody["max_tokens"] != float64(100) {
		t.Errorf("max_tokens sent = %v, want 100", gotBody["max_tokens"])
	}
}

func TestComplete_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{
		APIKey:  "test-key",
		Options: []option.RequestOption{option.WithBaseURL(srv.URL), option.WithMaxRetries(0)},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := client.Complete(context.Background(), "x", CompleteOptions{}); err == nil {
		t.Fatal("expected error from 400 response")
	}
	if client.Tracker().Calls() != 0 {
		t.Error("failed call should not be tracked")
	}
}

func TestTokenTracker(t *testing.T) {
	tr := NewTokenTracker()
	tr.Add(1_000_000, 0)
	tr.Add(0, 1_000_000)
	if tr.Calls() != 2 {
		t.Errorf("Calls = %d, want 2", tr.Calls())
	}
	if got := tr.Cost(); got != 18.0 {
		t.Errorf("Cost = %v, want 18", got)
	}
}
