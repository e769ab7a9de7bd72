package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"plstudy/internal/models"
)

func TestBuildSummaryPromptUserTurnsOnly(t *testing.T) {
	prompt := BuildSummaryPrompt(SummaryRequest{
		Source:    "abstract text",
		UserTurns: []string{"what is a plasmid?", "why does it matter?"},
	})

	if !strings.Contains(prompt, "1. what is a plasmid?") {
		t.Error("prompt missing first user question")
	}
	if !strings.Contains(prompt, "2. why does it matter?") {
		t.Error("prompt missing second user question")
	}
	if strings.Contains(prompt, "assistant") {
		t.Error("prompt should not mention assistant turns")
	}
	if strings.Contains(prompt, "comprehension questions") {
		t.Error("prompt without questions should not carry the coverage constraint")
	}
}

func TestBuildSummaryPromptSataConstraints(t *testing.T) {
	prompt := BuildSummaryPrompt(SummaryRequest{
		Source: "abstract text",
		Questions: []models.SataQuestion{
			{
				Key:     "sata_1",
				Prompt:  "Which factors were studied?",
				Choices: []string{"warming", "cooling", "acidity"},
				Correct: []string{"warming", "acidity"},
			},
		},
	})

	for _, want := range []string{
		"Question: Which factors were studied?",
		"Options: warming; cooling; acidity",
		"Correct: warming; acidity",
		"inferred from the text alone",
		"Do not name, quote, or rank any of the options",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildSummaryPromptNoTurns(t *testing.T) {
	prompt := BuildSummaryPrompt(SummaryRequest{Source: "abstract text"})
	if strings.Contains(prompt, "questions the reader asked") {
		t.Error("prompt without user turns should skip the question section")
	}
	if !strings.Contains(prompt, "Rewrite the original abstract") {
		t.Error("prompt missing the rewrite instruction")
	}
}

// newTestClient points a client at a stub chat-completions server.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", srv.URL, "chat-model", "summary-model")
}

func TestRespond(t *testing.T) {
	var captured chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "  an answer  "}},
			},
		})
	})

	reply, err := client.Respond(context.Background(), "the abstract", []models.ChatTurn{
		{Role: "user", Content: "what is this about?"},
	})
	if err != nil {
		t.Fatalf("Respond() = %v", err)
	}
	if reply != "an answer" {
		t.Errorf("Respond() = %q, want trimmed answer", reply)
	}

	if captured.Model != "chat-model" {
		t.Errorf("model = %q, want chat-model", captured.Model)
	}
	if len(captured.Messages) != 3 {
		t.Fatalf("sent %d messages, want system + abstract + 1 turn", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", captured.Messages[0].Role)
	}
	if !strings.Contains(captured.Messages[1].Content, "the abstract") {
		t.Error("abstract context message missing abstract text")
	}
}

func TestSummarizeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "api error",
			body: `{"error":{"message":"rate limited"}}`,
		},
		{
			name: "no choices",
			body: `{"choices":[]}`,
		},
		{
			name: "empty content",
			body: `{"choices":[{"message":{"content":"   "}}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			_, err := client.Summarize(context.Background(), SummaryRequest{Source: "abstract"})
			if err == nil {
				t.Error("Summarize() succeeded, want error")
			}
		})
	}
}

func TestSummarizeUsesSummaryModel(t *testing.T) {
	var captured chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "summary"}},
			},
		})
	})

	if _, err := client.Summarize(context.Background(), SummaryRequest{Source: "abstract"}); err != nil {
		t.Fatalf("Summarize() = %v", err)
	}
	if captured.Model != "summary-model" {
		t.Errorf("model = %q, want summary-model", captured.Model)
	}
}
