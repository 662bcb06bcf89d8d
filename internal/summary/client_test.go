package summary

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSummarizePostsChatRequest(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer key-1" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Short summary.  "}}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key-1", "test-model")
	text, err := client.Summarize(context.Background(), "Summarize this")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if text != "Short summary." {
		t.Fatalf("unexpected text %q", text)
	}
	if got.Model != "test-model" || len(got.Messages) != 1 || got.Messages[0].Content != "Summarize this" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestSummarizeErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusBadGateway, body: `upstream down`},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`},
		{name: "blank text", status: http.StatusOK, body: `{"choices":[{"message":{"content":"  "}}]}`},
		{name: "bad json", status: http.StatusOK, body: `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			if _, err := NewClient(srv.URL, "", "").Summarize(context.Background(), "x"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSummarizeNotConfigured(t *testing.T) {
	if _, err := NewClient("", "", "").Summarize(context.Background(), "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	var nilClient *Client
	if nilClient.Configured() {
		t.Fatal("nil client must not report configured")
	}
}
