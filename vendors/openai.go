package vendors

import (
	"context"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"github.com/tidewell/agentdeck/config"
	"github.com/tidewell/agentdeck/log"
	"github.com/tidewell/agentdeck/utils"
)

var (
	openaiClient     *OpenAIClient
	openaiClientOnce sync.Once
	openaiLogger     = log.GetLogger("OpenAI")
)

// OpenAIClient wraps the OpenAI client
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// CompletionOptions holds options for completions
type CompletionOptions struct {
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  float32
	JSONMode     bool
}

// CompletionResponse represents a completion response
type CompletionResponse struct {
	Content      string
	FinishReason string
	Usage        struct {
		PromptTokens     int
		CompletionTokens int
		TotalTokens      int
	}
}

// GetOpenAIClient returns the singleton OpenAI client
func GetOpenAIClient() *OpenAIClient {
	openaiClientOnce.Do(func() {
		cfg := config.Get()

		if cfg.OpenAIAPIKey == "" {
			openaiLogger.Warn().Msg("OPENAI_API_KEY not configured, OpenAI disabled")
			return
		}

		clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
		if cfg.OpenAIBaseURL != "" && cfg.OpenAIBaseURL != "https://api.openai.com/v1" {
			clientConfig.BaseURL = cfg.OpenAIBaseURL
		}

		client := openai.NewClientWithConfig(clientConfig)

		openaiClient = &OpenAIClient{
			client: client,
			model:  cfg.OpenAIModel,
		}

		openaiLogger.Info().Str("model", cfg.OpenAIModel).Str("baseURL", cfg.OpenAIBaseURL).Msg("OpenAI initialized")
	})

	return openaiClient
}

// Complete performs a chat completion
func (o *OpenAIClient) Complete(ctx context.Context, opts CompletionOptions) (*CompletionResponse, error) {
	if o == nil {
		return nil, nil
	}

	var messages []openai.ChatCompletionMessage

	if opts.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.SystemPrompt,
		})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: opts.Prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	if opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		openaiLogger.Error().Err(err).Msg("completion failed")
		return nil, err
	}

	if len(resp.Choices) == 0 {
		openaiLogger.Error().
			Interface("response", resp).
			Msg("openai response has no choices")
		return &CompletionResponse{}, nil
	}

	content := resp.Choices[0].Message.Content
	finishReason := string(resp.Choices[0].FinishReason)

	openaiLogger.Debug().
		Str("finishReason", finishReason).
		Int("promptTokens", resp.Usage.PromptTokens).
		Int("completionTokens", resp.Usage.CompletionTokens).
		Msg("openai response")

	return &CompletionResponse{
		Content:      content,
		FinishReason: finishReason,
		Usage: struct {
			PromptTokens     int
			CompletionTokens int
			TotalTokens      int
		}{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

const sessionTitleSystemPrompt = `You title chat conversations between a user and an AI coding agent.
Produce a short descriptive title (3-8 words) capturing what the conversation is about.
No quotes, no trailing punctuation.
Respond with JSON in format: {"title": "..."}`

// GenerateSessionTitle produces a short display title from the opening
// exchange of a conversation
func (o *OpenAIClient) GenerateSessionTitle(ctx context.Context, excerpt string) (string, error) {
	if o == nil {
		return "", nil
	}

	resp, err := o.Complete(ctx, CompletionOptions{
		SystemPrompt: sessionTitleSystemPrompt,
		Prompt:       "Title the following conversation.\n\n" + excerpt,
		Temperature:  0.1,
		JSONMode:     true,
	})
	if err != nil {
		return "", err
	}

	parsed, err := utils.ParseJSONFromLLMResponse(resp.Content)
	if err != nil {
		openaiLogger.Error().Err(err).Str("content", resp.Content).Msg("failed to parse title JSON")
		return "", nil
	}

	title := utils.ExtractTitleFromJSON(parsed)

	// Models occasionally wrap titles in quotes anyway
	title = strings.Trim(title, "\"'")
	if len(title) > 120 {
		title = title[:120]
	}

	return title, nil
}
