package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/config"
)

// openaiProvider talks to OpenAI or any compatible endpoint (Ollama, vLLM,
// OpenRouter) via a configurable base URL.
type openaiProvider struct {
	client      openai.Client
	model       shared.ChatModel
	maxTokens   int
	temperature float64
}

func newOpenAIProvider(cfg config.LLMConfig) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("openai model is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &openaiProvider{
		client:      client,
		model:       shared.ChatModel(cfg.Model),
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func newOpenAIProviderForTest(apiKey, model string, maxTokens int, baseURL string, httpClient *http.Client) (Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("openai model is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	}

	client := openai.NewClient(opts...)
	return &openaiProvider{
		client:    client,
		model:     shared.ChatModel(model),
		maxTokens: maxTokens,
	}, nil
}

// Chat sends a provider-agnostic chat request to an OpenAI-compatible
// endpoint and normalizes the response.
func (p *openaiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		converted, err := toOpenAIMessages(m)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, converted...)
	}

	params := openai.ChatCompletionNewParams{
		Model:       p.model,
		Messages:    msgs,
		MaxTokens:   openai.Int(int64(resolveMaxTokens(req.MaxTokens, p.maxTokens))),
		Temperature: openai.Float(resolveTemperature(req.Temperature, p.temperature)),
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai response has no choices")
	}

	choice := resp.Choices[0]
	blocks := make([]chat.Block, 0, 1+len(choice.Message.ToolCalls))
	if choice.Message.Content != "" {
		blocks = append(blocks, chat.Text{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		blocks = append(blocks, chat.ToolUse{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}

	return &ChatResponse{
		Blocks:     blocks,
		StopReason: string(choice.FinishReason),
		Usage: TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}

// toOpenAIMessages converts one chat message to OpenAI wire messages. A
// tool-role message fans out into one tool message per result, since the
// OpenAI API has no combined form. The is_error flag has no wire equivalent;
// failed results already carry the error text as content.
func toOpenAIMessages(msg chat.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	switch msg.Role {
	case chat.RoleUser, chat.RoleTool:
		out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msg.Blocks))
		var texts []string
		for _, b := range msg.Blocks {
			switch blk := b.(type) {
			case chat.Text:
				texts = append(texts, blk.Text)
			case chat.ToolResult:
				out = append(out, openai.ToolMessage(blk.Content, blk.ToolUseID))
			default:
				return nil, fmt.Errorf("unsupported %s block %T", msg.Role, b)
			}
		}
		if len(texts) > 0 {
			out = append(out, openai.UserMessage(strings.Join(texts, "\n")))
		}
		return out, nil

	case chat.RoleAssistant:
		asst := openai.ChatCompletionAssistantMessageParam{}
		var texts []string
		for _, b := range msg.Blocks {
			switch blk := b.(type) {
			case chat.Text:
				texts = append(texts, blk.Text)
			case chat.ToolUse:
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: blk.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      blk.Name,
						Arguments: string(blk.Input),
					},
				})
			default:
				return nil, fmt.Errorf("unsupported assistant block %T", b)
			}
		}
		if len(texts) > 0 {
			asst.Content.OfString = openai.String(strings.Join(texts, "\n"))
		}
		return []openai.ChatCompletionMessageParamUnion{{OfAssistant: &asst}}, nil

	default:
		return nil, fmt.Errorf("unsupported message role %s", msg.Role)
	}
}

func toOpenAITools(tools []ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		out[i] = openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  shared.FunctionParameters(t.Parameters),
			},
		}
	}
	return out
}
