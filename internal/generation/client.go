// Package generation is the client for the external text-generation service.
// It speaks the OpenAI-compatible chat-completions protocol and owns the
// prompt construction for both the live chat and the constrained rewrite.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"plstudy/internal/models"
)

const requestTimeout = 90 * time.Second

const chatSystemPrompt = "You are a helpful assistant explaining scientific abstracts. " +
	"Answer the reader's questions clearly and accurately in plain language."

// Client talks to the generation service.
type Client struct {
	apiKey       string
	baseURL      string
	chatModel    string
	summaryModel string
	httpClient   *http.Client
}

// NewClient creates a generation client. baseURL is the API root, e.g.
// "https://api.openai.com/v1".
func NewClient(apiKey, baseURL, chatModel, summaryModel string) *Client {
	return &Client{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		chatModel:    chatModel,
		summaryModel: summaryModel,
		httpClient:   &http.Client{Timeout: requestTimeout},
	}
}

// Message is one message in a chat-completions request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// complete performs one synchronous chat-completions call.
func (c *Client) complete(ctx context.Context, model string, messages []Message) (string, error) {
	request := chatRequest{Model: model, Messages: messages}

	requestData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(requestData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var response chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Error != nil {
		return "", fmt.Errorf("generation API error: %s", response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}

	content := strings.TrimSpace(response.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("generation returned empty content")
	}
	return content, nil
}

// Respond produces the assistant's next turn in a live conversation about an
// abstract.
func (c *Client) Respond(ctx context.Context, abstract string, history []models.ChatTurn) (string, error) {
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: "system", Content: chatSystemPrompt})
	messages = append(messages, Message{
		Role:    "user",
		Content: "Here is the scientific abstract under discussion:\n\n" + abstract,
	})
	for _, turn := range history {
		messages = append(messages, Message{Role: turn.Role, Content: turn.Content})
	}
	return c.complete(ctx, c.chatModel, messages)
}

// SummaryRequest carries everything the rewrite prompt is built from.
type SummaryRequest struct {
	Source string
	// UserTurns is the conversation reduced to the ordered participant-
	// authored messages; assistant turns are excluded from the rewrite.
	UserTurns []string
	// Questions, when present, become soft coverage constraints.
	Questions []models.SataQuestion
}

// BuildSummaryPrompt constructs the system prompt for the constrained
// rewrite. The engine does not verify the response against these
// instructions; satisfaction is delegated to the generator.
func BuildSummaryPrompt(req SummaryRequest) string {
	var b strings.Builder
	b.WriteString("You are an expert science communicator working with a reader who asked questions about a scientific abstract.\n\n")

	if len(req.UserTurns) > 0 {
		b.WriteString("These are the questions the reader asked, in order:\n")
		for i, q := range req.UserTurns {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q)
		}
		b.WriteString("\nUse these questions to identify which concepts, terms, or results the reader found confusing, interesting, or important. ")
	}

	b.WriteString("Rewrite the original abstract into a clear, accurate, plain-language summary that preserves all key scientific details ")
	b.WriteString("and adds explanation and context for the parts the reader asked about or struggled to understand. ")
	b.WriteString("The goal is to make the abstract easier to understand while staying true to the science.")

	if len(req.Questions) > 0 {
		b.WriteString("\n\nThe reader will later answer the following comprehension questions about your summary. ")
		b.WriteString("Write the summary so that each correct option can be inferred from the text alone. ")
		b.WriteString("Do not name, quote, or rank any of the options, and do not make any incorrect option equally inferable.\n")
		for _, q := range req.Questions {
			fmt.Fprintf(&b, "\nQuestion: %s\n", q.Prompt)
			fmt.Fprintf(&b, "Options: %s\n", strings.Join(q.Choices, "; "))
			fmt.Fprintf(&b, "Correct: %s\n", strings.Join(q.Correct, "; "))
		}
	}

	return b.String()
}

// Summarize performs the single constrained-rewrite call for a unit. No
// retry is attempted here; a failure is surfaced to the caller.
func (c *Client) Summarize(ctx context.Context, req SummaryRequest) (string, error) {
	messages := []Message{
		{Role: "system", Content: BuildSummaryPrompt(req)},
		{Role: "user", Content: "Rewrite this abstract:\n\n" + req.Source},
	}
	return c.complete(ctx, c.summaryModel, messages)
}
