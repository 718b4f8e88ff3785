package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/docchat/docchat/internal/models"
	"github.com/docchat/docchat/internal/types"
)

const searchToolName = "search_docs"

const defaultSystemTemplate = `You MUST always begin by calling the search_docs tool.
Do NOT perform reasoning or answer before the search.
If there were no docs or you were not able to find relevant information in them, say you don't know.
Always cite your sources from the search results.
Be concise and accurate in your responses.`

// ChatConfig represents the configuration for the answering engine.
type ChatConfig struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	SystemTemplate string
	BaseURL        string // Ollama server URL
	TopK           int    // results per search call
	HistoryWindow  int    // max prior messages supplied as context
	MaxToolRounds  int    // cap on search invocations per turn
}

// ChatEngine drives the language model through a search-then-answer
// turn, streaming answer fragments as they arrive.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
	search types.Searcher
}

// NewWithConfig creates a ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig, search types.Searcher) (*ChatEngine, error) {
	if config.Model == "" {
		config.Model = "mistral"
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return nil, fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = defaultSystemTemplate
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.TopK <= 0 {
		config.TopK = 5
	}
	if config.HistoryWindow <= 0 {
		config.HistoryWindow = 20
	}
	if config.MaxToolRounds <= 0 {
		config.MaxToolRounds = 5
	}

	llm, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    llm,
		search: search,
	}, nil
}

// HistoryWindow reports how many prior messages the engine consumes.
func (ce *ChatEngine) HistoryWindow() int {
	return ce.config.HistoryWindow
}

var searchTools = []llms.Tool{{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        searchToolName,
		Description: "Search the document database for relevant chunks.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query string.",
				},
				"top_k": map[string]any{
					"type":        "integer",
					"description": "Number of top results to return.",
				},
			},
			"required": []string{"query"},
		},
	},
}}

type searchArgs struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// Stream runs one answering turn, invoking emit for every non-empty
// answer fragment as it arrives, and returns the concatenated answer.
func (ce *ChatEngine) Stream(ctx context.Context, history []models.ChatMessage, userMessage string, emit func(fragment string)) (string, error) {
	return ce.run(ctx, history, userMessage, emit)
}

// StreamAnswer runs one answering turn and returns a channel of answer
// fragments. A turn failure is delivered as a single "Error: ..."
// fragment; the channel is always closed when the turn ends.
func (ce *ChatEngine) StreamAnswer(ctx context.Context, history []models.ChatMessage, userMessage string) <-chan string {
	fragments := make(chan string)

	go func() {
		defer close(fragments)

		_, err := ce.run(ctx, history, userMessage, func(fragment string) {
			fragments <- fragment
		})
		if err != nil {
			fragments <- fmt.Sprintf("Error: %v", err)
		}
	}()

	return fragments
}

// Answer runs one answering turn and returns the full answer text.
func (ce *ChatEngine) Answer(ctx context.Context, history []models.ChatMessage, userMessage string) (string, error) {
	return ce.run(ctx, history, userMessage, nil)
}

// run executes the turn: seed the transcript with a forced search for
// the user's message, let the model issue further search calls if it
// wants, then stream the final answer. emit, when non-nil, receives
// each non-empty fragment as it arrives.
func (ce *ChatEngine) run(ctx context.Context, history []models.ChatMessage, userMessage string, emit func(string)) (string, error) {
	content := ce.transcript(history, userMessage)

	// Scripted pre-step: the first model action is always a search for
	// the raw user message, so search-before-answer does not rely on
	// instruction following.
	content = append(content, ce.seedSearch(ctx, userMessage)...)

	var answer strings.Builder
	streamFn := func(_ context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		answer.Write(chunk)
		if emit != nil {
			emit(string(chunk))
		}
		return nil
	}

	for round := 0; round < ce.config.MaxToolRounds; round++ {
		resp, err := ce.llm.GenerateContent(ctx, content,
			llms.WithTools(searchTools),
			llms.WithTemperature(ce.config.Temperature),
			llms.WithMaxTokens(ce.config.MaxTokens),
			llms.WithStreamingFunc(streamFn),
		)
		if err != nil {
			return "", fmt.Errorf("chat error: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no response from LLM")
		}

		choice := resp.Choices[0]
		if len(choice.ToolCalls) == 0 {
			// Final answer. Some providers deliver the full text on the
			// response instead of the stream.
			if answer.Len() == 0 && choice.Content != "" {
				answer.WriteString(choice.Content)
				if emit != nil {
					emit(choice.Content)
				}
			}
			return answer.String(), nil
		}

		assistant := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		for _, call := range choice.ToolCalls {
			assistant.Parts = append(assistant.Parts, call)
		}
		content = append(content, assistant)

		for _, call := range choice.ToolCalls {
			content = append(content, ce.executeToolCall(ctx, call))
		}
	}

	return "", fmt.Errorf("tool call limit exceeded after %d rounds", ce.config.MaxToolRounds)
}

// transcript maps the bounded session history plus the new user message
// into model messages, prefixed by the system directive.
func (ce *ChatEngine) transcript(history []models.ChatMessage, userMessage string) []llms.MessageContent {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate),
	}

	if n := ce.config.HistoryWindow; len(history) > n {
		history = history[len(history)-n:]
	}
	for _, msg := range history {
		role := llms.ChatMessageTypeHuman
		switch msg.Role {
		case models.RoleAssistant:
			role = llms.ChatMessageTypeAI
		case models.RoleSystem:
			role = llms.ChatMessageTypeSystem
		}
		content = append(content, llms.TextParts(role, msg.Content))
	}

	return append(content, llms.TextParts(llms.ChatMessageTypeHuman, userMessage))
}

// seedSearch fabricates a search_docs call for the user message and its
// result, as if the model had issued it.
func (ce *ChatEngine) seedSearch(ctx context.Context, userMessage string) []llms.MessageContent {
	args, _ := json.Marshal(searchArgs{Query: userMessage, TopK: ce.config.TopK})
	call := llms.ToolCall{
		ID:   uuid.NewString(),
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      searchToolName,
			Arguments: string(args),
		},
	}

	return []llms.MessageContent{
		{Role: llms.ChatMessageTypeAI, Parts: []llms.ContentPart{call}},
		toolResponse(call, ce.searchDocs(ctx, userMessage, ce.config.TopK)),
	}
}

// executeToolCall dispatches a model-issued tool call. Unknown tools and
// malformed arguments come back as textual tool results so the model
// can recover.
func (ce *ChatEngine) executeToolCall(ctx context.Context, call llms.ToolCall) llms.MessageContent {
	if call.FunctionCall == nil || call.FunctionCall.Name != searchToolName {
		name := "unknown"
		if call.FunctionCall != nil {
			name = call.FunctionCall.Name
		}
		return toolResponse(call, fmt.Sprintf("Error: unknown tool %q", name))
	}

	var args searchArgs
	if err := json.Unmarshal([]byte(call.FunctionCall.Arguments), &args); err != nil {
		return toolResponse(call, fmt.Sprintf("Error searching documents: bad arguments: %v", err))
	}
	if args.TopK <= 0 {
		args.TopK = ce.config.TopK
	}

	return toolResponse(call, ce.searchDocs(ctx, args.Query, args.TopK))
}

// searchDocs runs the retrieval pipeline and formats the hits for the
// model. Failures are converted to a textual result rather than
// propagated, so the model always receives something to reason about.
func (ce *ChatEngine) searchDocs(ctx context.Context, query string, topK int) string {
	hits, err := ce.search.Retrieve(ctx, query, topK)
	if err != nil {
		return fmt.Sprintf("Error searching documents: %v", err)
	}
	return FormatHits(hits)
}

func toolResponse(call llms.ToolCall, result string) llms.MessageContent {
	return llms.MessageContent{
		Role: llms.ChatMessageTypeTool,
		Parts: []llms.ContentPart{llms.ToolCallResponse{
			ToolCallID: call.ID,
			Name:       searchToolName,
			Content:    result,
		}},
	}
}
