// Package gemini implements the Gemini-backed sentiment classifier and
// reply generator.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/grouppulse/grouppulse/internal/config"
	"github.com/grouppulse/grouppulse/internal/database"
	"github.com/grouppulse/grouppulse/internal/sentiment"
)

// Client defines the AI operations the pipelines use.
type Client interface {
	// Classify scores a single message text. Implements sentiment.Classifier.
	Classify(ctx context.Context, text string) (sentiment.Score, error)

	// GenerateReply produces a conversational reply given recent messages
	// in chronological order.
	GenerateReply(ctx context.Context, messages []database.Message) (string, error)
}

type sdkClient struct {
	genaiClient   *genai.Client
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	modelName     string
	maxRetries    int
	retryDelay    time.Duration
}

// NewClient creates a Gemini client from configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	baseCfg := &genai.GenerateContentConfig{
		Temperature: &cfg.Temperature,

		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully", "model", cfg.Model)
	return &sdkClient{
		genaiClient:   gi,
		log:           logger,
		contentConfig: baseCfg,
		modelName:     cfg.Model,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}, nil
}

func (c *sdkClient) generateContentWithRetries(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, c.modelName, contents, cfg)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry",
			"attempt", i+1, "max_retries", c.maxRetries, "error", err)

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503) {
			if i < c.maxRetries {
				c.log.InfoContext(ctx, "Retrying Gemini API call", "delay", c.retryDelay, "code", apiErr.Code)
				time.Sleep(c.retryDelay)
				continue
			}
			return nil, fmt.Errorf("gemini API call failed after %d retries (APIError code %d): %w", c.maxRetries, apiErr.Code, err)
		}

		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return nil, err
}

var classificationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"sentiment":  {Type: genai.TypeString, Description: "One of: positive, negative, neutral."},
		"confidence": {Type: genai.TypeNumber, Description: "Confidence in the label, between 0.0 and 1.0."},
	},
	Required: []string{"sentiment", "confidence"},
}

func (c *sdkClient) Classify(ctx context.Context, text string) (sentiment.Score, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	copyCfg := *c.contentConfig
	copyCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: ClassifySystemInstruction}}}
	copyCfg.ResponseMIMEType = "application/json"
	copyCfg.ResponseSchema = classificationSchema

	resp, err := c.generateContentWithRetries(ctx, contents, &copyCfg)
	if err != nil {
		return sentiment.Score{}, err
	}

	jsonText, err := c.extractTextFromResponse(ctx, resp, "classify")
	if err != nil {
		return sentiment.Score{}, err
	}

	var result struct {
		Sentiment  string  `json:"sentiment"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(jsonText), &result); err != nil {
		c.log.WarnContext(ctx, "Failed to parse classification JSON", "error", err, "response_text", jsonText)
		return sentiment.Score{}, fmt.Errorf("invalid classification JSON received: %w", err)
	}
	if !sentiment.ValidLabel(result.Sentiment) {
		return sentiment.Score{}, fmt.Errorf("unknown sentiment label %q", result.Sentiment)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return sentiment.Score{}, fmt.Errorf("confidence %v out of range", result.Confidence)
	}

	score := sentiment.Score{Label: result.Sentiment}
	switch result.Sentiment {
	case sentiment.LabelPositive:
		score.Polarity = result.Confidence
	case sentiment.LabelNegative:
		score.Polarity = -result.Confidence
	}
	return score, nil
}

func formatMessageForAI(m *database.Message) string {
	sender := int64(0)
	if m.SenderID.Valid {
		sender = m.SenderID.Int64
	}
	return fmt.Sprintf("[%s] UID %d: %s", m.SentAt.Format("2006-01-02 15:04:05"), sender, m.Text)
}

func (c *sdkClient) GenerateReply(ctx context.Context, messages []database.Message) (string, error) {
	c.log.DebugContext(ctx, "Generating reply", "message_count", len(messages))

	var contents []*genai.Content
	for i := range messages {
		role := genai.Role(genai.RoleUser)
		if messages[i].FromSelf {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(formatMessageForAI(&messages[i]), role))
	}
	if len(contents) == 0 {
		return "", errors.New("no messages to reply to")
	}

	copyCfg := *c.contentConfig
	copyCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: ReplySystemInstruction}}}

	resp, err := c.generateContentWithRetries(ctx, contents, &copyCfg)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini reply generation failed", "error", err)
		return "", err
	}

	return c.extractTextFromResponse(ctx, resp, "reply")
}

func (c *sdkClient) extractTextFromResponse(ctx context.Context, resp *genai.GenerateContentResponse, op string) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "operation", op, "reason", reasonMsg)
		return "", fmt.Errorf("%s blocked by safety filter: %s", op, reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content",
			"operation", op, "finish_reason", finishReason)
		return "", fmt.Errorf("%s returned no content, finish reason: %s", op, finishReason)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%s returned empty text", op)
	}
	return text, nil
}
