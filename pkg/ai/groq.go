package ai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/sashabaranov/go-openai"

	"github.com/voicequote/meterd/pkg/observability"
)

const (
	// GroqBaseURL is Groq's OpenAI-compatible endpoint
	GroqBaseURL = "https://api.groq.com/openai/v1"

	DefaultChatModel          = "llama-3.3-70b-versatile"
	DefaultTranscriptionModel = "whisper-large-v3-turbo"

	proposalTemperature = 0.7
	proposalMaxTokens   = 1024
)

const proposalSystemPrompt = "You are an expert business proposal writer. Take the user's rough voice notes " +
	"and write a highly professional, polite, 3-paragraph business proposal/quote. Include a professional " +
	"greeting to the client, a clear breakdown of the services mentioned, and a final price section. " +
	"Do not include any extra chat, just output the proposal text."

// ProposalInput is what the caller dictated about a job
type ProposalInput struct {
	TranscribedText string `json:"transcribedText"`
	ClientName      string `json:"clientName"`
	ClientEmail     string `json:"clientEmail"`
	TotalPrice      string `json:"totalPrice"`
}

// ProposalGenerator turns voice notes into proposal text
type ProposalGenerator interface {
	GenerateProposal(ctx context.Context, in ProposalInput) (string, error)
}

// Transcriber turns recorded audio into text
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// Config configures a GroqClient
type Config struct {
	APIKey             string
	BaseURL            string
	ChatModel          string
	TranscriptionModel string
	Timeout            time.Duration

	// Retries is the number of extra attempts for a chat completion that
	// failed on the network or with a 5xx
	Retries    uint
	RetryDelay time.Duration

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = GroqBaseURL
	}
	if c.ChatModel == "" {
		c.ChatModel = DefaultChatModel
	}
	if c.TranscriptionModel == "" {
		c.TranscriptionModel = DefaultTranscriptionModel
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = observability.NewNopLogger()
	}
	return c
}

// GroqClient implements ProposalGenerator and Transcriber against Groq
type GroqClient struct {
	cfg    Config
	client *openai.Client
	logger *observability.Logger
}

// NewGroqClient creates a client. Without an API key every call returns
// ErrNotConfigured.
func NewGroqClient(cfg Config) *GroqClient {
	cfg = cfg.withDefaults()
	c := &GroqClient{
		cfg:    cfg,
		logger: cfg.Logger.WithComponent("groq"),
	}
	if cfg.APIKey != "" {
		oc := openai.DefaultConfig(cfg.APIKey)
		oc.BaseURL = cfg.BaseURL
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
		c.client = openai.NewClientWithConfig(oc)
	}
	return c
}

// Configured reports whether an API key was provided
func (c *GroqClient) Configured() bool {
	return c.client != nil
}

// GenerateProposal writes a three-paragraph proposal from the voice notes
func (c *GroqClient) GenerateProposal(ctx context.Context, in ProposalInput) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	req := openai.ChatCompletionRequest{
		Model: c.cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: proposalSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: proposalPrompt(in)},
		},
		Temperature: proposalTemperature,
		MaxTokens:   proposalMaxTokens,
	}

	var resp openai.ChatCompletionResponse
	start := time.Now()
	err := retry.Do(func() error {
		var err error
		resp, err = c.client.CreateChatCompletion(ctx, req)
		return err
	},
		retry.Attempts(c.cfg.Retries+1),
		retry.Delay(c.cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.WithError(err).WithField("attempt", n+1).Warn("Retrying chat completion")
		}),
	)
	c.cfg.Metrics.ObserveUpstream("groq", "chat_completion", start)
	if err != nil {
		return "", fmt.Errorf("failed to generate proposal: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func proposalPrompt(in ProposalInput) string {
	return fmt.Sprintf("Client Name: %s\nClient Email: %s\nTotal Project Price: $%s\n\n"+
		"Voice Notes / Project Description:\n%s\n\n"+
		"Please write a professional 3-paragraph business proposal for this client.",
		in.ClientName, in.ClientEmail, in.TotalPrice, strings.TrimSpace(in.TranscribedText))
}

// Transcribe sends audio to Whisper. The file extension in filename tells
// the provider the container format. The reader is consumed once and the
// call is not retried.
func (c *GroqClient) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	start := time.Now()
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.cfg.TranscriptionModel,
		FilePath: filename,
		Reader:   audio,
		Format:   openai.AudioResponseFormatJSON,
	})
	c.cfg.Metrics.ObserveUpstream("groq", "transcription", start)
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// AudioFilename picks the upload name for a browser recording. Codec
// parameters ("audio/webm;codecs=opus") are ignored.
func AudioFilename(contentType string) string {
	mimeType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if strings.Contains(mimeType, "mp4") {
		return "recording.mp4"
	}
	return "recording.webm"
}
