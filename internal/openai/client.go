package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/chaptermaker/chaptermaker/internal/transcribe"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	DefaultTranscriptionModel = "whisper-1"
	DefaultChatModel          = "gpt-4o-mini"
	DefaultTimeout            = 5 * time.Minute

	// MaxRetries bounds the in-call retries on 429 answers.
	MaxRetries  = 3
	BaseBackoff = 2 * time.Second
	MaxBackoff  = 32 * time.Second

	// JSONParseMaxRetries is the number of extra completions requested when the model
	// answers with something that is not JSON.
	JSONParseMaxRetries = 1
)

type Client struct {
	client             openai.Client
	transcriptionModel string
	chatModel          string
	timeout            time.Duration
	maxRetries         int
	baseBackoff        time.Duration
}

type ClientOpt func(c *clientConfig)

type clientConfig struct {
	baseURL            string
	transcriptionModel string
	chatModel          string
	timeout            time.Duration
	maxRetries         int
	baseBackoff        time.Duration
}

func WithBaseURL(u string) ClientOpt {
	return func(c *clientConfig) { c.baseURL = u }
}

func WithTranscriptionModel(m string) ClientOpt {
	return func(c *clientConfig) { c.transcriptionModel = m }
}

func WithChatModel(m string) ClientOpt {
	return func(c *clientConfig) { c.chatModel = m }
}

func WithTimeout(d time.Duration) ClientOpt {
	return func(c *clientConfig) { c.timeout = d }
}

// WithRetries sets the rate-limit retry budget and the first backoff step.
func WithRetries(n int, base time.Duration) ClientOpt {
	return func(c *clientConfig) {
		c.maxRetries = n
		c.baseBackoff = base
	}
}

func NewClient(apiKey string, opts ...ClientOpt) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	cfg := &clientConfig{
		transcriptionModel: DefaultTranscriptionModel,
		chatModel:          DefaultChatModel,
		timeout:            DefaultTimeout,
		maxRetries:         MaxRetries,
		baseBackoff:        BaseBackoff,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// retries are driven by this client so 429s are classified consistently
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &Client{
		client:             openai.NewClient(reqOpts...),
		transcriptionModel: cfg.transcriptionModel,
		chatModel:          cfg.chatModel,
		timeout:            cfg.timeout,
		maxRetries:         cfg.maxRetries,
		baseBackoff:        cfg.baseBackoff,
	}, nil
}

// verboseTranscription is the verbose_json answer of the transcription endpoint.
type verboseTranscription struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe sends one audio file to the transcription endpoint.
func (c *Client) Transcribe(ctx context.Context, audioPath, language, prompt string) (*transcribe.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var verbose verboseTranscription
	err := c.withRetry(ctx, func() error {
		f, err := os.Open(audioPath)
		if err != nil {
			return err
		}
		defer f.Close()

		params := openai.AudioTranscriptionNewParams{
			File:                   f,
			Model:                  openai.AudioModel(c.transcriptionModel),
			ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
			TimestampGranularities: []string{"segment"},
		}
		if language != "" {
			params.Language = openai.String(language)
		}
		if prompt != "" {
			params.Prompt = openai.String(prompt)
		}
		_, err = c.client.Audio.Transcriptions.New(ctx, params, option.WithResponseBodyInto(&verbose))
		return err
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, classify(err)
	}

	res := &transcribe.Result{
		Text:     strings.TrimSpace(verbose.Text),
		Language: verbose.Language,
		Duration: verbose.Duration,
	}
	for _, s := range verbose.Segments {
		res.Segments = append(res.Segments, transcribe.Segment{Start: s.Start, End: s.End, Text: strings.TrimSpace(s.Text)})
	}
	return res, nil
}

// CompleteJSON asks the chat model for a JSON object and returns its raw text. A reply
// that does not parse is requested again once.
func (c *Client) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var jsonParseRetries int
	for {
		var content string
		err := c.withRetry(ctx, func() error {
			completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
				Model: shared.ChatModel(c.chatModel),
				Messages: []openai.ChatCompletionMessageParamUnion{
					openai.SystemMessage("You structure recorded talks into chapters. Answer with a single JSON object."),
					openai.UserMessage(prompt),
				},
				Temperature: openai.Float(0.2),
				ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
					OfJSONObject: &shared.ResponseFormatJSONObjectParam{
						Type: "json_object",
					},
				},
			})
			if err != nil {
				return err
			}
			if len(completion.Choices) == 0 {
				return fmt.Errorf("%w: no completion choices returned", ErrInvalidResponseFormat)
			}
			content = completion.Choices[0].Message.Content
			return nil
		})
		if err != nil {
			return "", classify(err)
		}

		if !isValidJSON(content) {
			jsonParseRetries++
			if jsonParseRetries > JSONParseMaxRetries {
				return "", fmt.Errorf("%w: JSON parse failed after %d retries", ErrInvalidResponseFormat, JSONParseMaxRetries)
			}
			continue
		}
		return content, nil
	}
}

func (c *Client) withRetry(ctx context.Context, call func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseBackoff
			if backoff > MaxBackoff {
				backoff = MaxBackoff
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRateLimitError(err) {
			return err
		}
	}
	return lastErr
}

func isValidJSON(s string) bool {
	var js json.RawMessage
	return json.Unmarshal([]byte(s), &js) == nil
}

var _ transcribe.API = (*Client)(nil)
