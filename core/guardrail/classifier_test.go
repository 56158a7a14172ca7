package guardrail

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/corgivoice/voice-core/core/completions"
)

func classificationServer(t *testing.T, category Category, prompts chan<- string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var request struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.Unmarshal(body, &request); err == nil && len(request.Messages) > 0 {
			prompts <- request.Messages[0].Content
		}

		content, _ := json.Marshal(Result{Category: category, Rationale: "test rationale"})
		response, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": string(content)}},
			},
		})
		w.Write(response)
	}))
}

func TestClassifyReturnsCategoryAndRationale(t *testing.T) {
	prompts := make(chan string, 1)
	server := classificationServer(t, CategoryOffensive, prompts)
	defer server.Close()

	classifier := &Classifier{
		Client:      completions.Client{BaseURL: server.URL, Model: "test-model"},
		CompanyName: "Sunset Manor",
	}

	result, err := classifier.Classify(context.Background(), "some text to classify")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Category != CategoryOffensive {
		t.Fatalf("expected OFFENSIVE, got %q", result.Category)
	}
	if result.Rationale != "test rationale" {
		t.Fatalf("unexpected rationale: %q", result.Rationale)
	}

	prompt := <-prompts
	if !strings.Contains(prompt, "some text to classify") {
		t.Fatalf("expected the message in the prompt")
	}
	if !strings.Contains(prompt, "Company name: Sunset Manor") {
		t.Fatalf("expected the company name in the prompt")
	}
	for _, category := range []string{"OFFENSIVE", "OFF_BRAND", "VIOLENCE", "NONE"} {
		if !strings.Contains(prompt, category) {
			t.Fatalf("expected output class %s in the prompt", category)
		}
	}
}

func TestClassifyPropagatesTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	classifier := &Classifier{Client: completions.Client{BaseURL: server.URL, Model: "test-model"}}
	if _, err := classifier.Classify(context.Background(), "text"); err == nil {
		t.Fatalf("expected an error")
	}
}
