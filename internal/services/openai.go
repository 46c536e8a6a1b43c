package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// OpenAI Character Service
// Stands in for Convai: a chat completion writes the character's reply and the
// speech endpoint voices it as MP3.
// ---------------------------------------------------------------------------

const defaultCharacterPrompt = "You are a friendly character in a virtual world. " +
	"Reply to the user in one or two short spoken sentences. No markdown, no emoji."

type OpenAIOptions struct {
	APIKey          string
	BaseURL         string // Empty = api.openai.com
	ChatModel       string
	TTSModel        string
	TTSVoice        string
	CharacterPrompt string
	Timeout         time.Duration
}

type OpenAIService struct {
	apiKey  string
	opts    OpenAIOptions
	timeout time.Duration
	client  *openai.Client
	logger  *zap.SugaredLogger
}

// Ensure OpenAIService implements VoiceService at compile time.
var _ VoiceService = (*OpenAIService)(nil)

func NewOpenAIService(opts OpenAIOptions, logger *zap.SugaredLogger) *OpenAIService {
	if opts.ChatModel == "" {
		opts.ChatModel = openai.GPT4oMini
	}
	if opts.TTSModel == "" {
		opts.TTSModel = string(openai.TTSModel1)
	}
	if opts.TTSVoice == "" {
		opts.TTSVoice = string(openai.VoiceAlloy)
	}
	if opts.CharacterPrompt == "" {
		opts.CharacterPrompt = defaultCharacterPrompt
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = convaiDefaultTimeout
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIService{
		apiKey:  opts.APIKey,
		opts:    opts,
		timeout: timeout,
		client:  openai.NewClientWithConfig(cfg),
		logger:  logger.Named("openai"),
	}
}

func (s *OpenAIService) Name() string { return "openai" }

func (s *OpenAIService) CheckConfig() error {
	if s.apiKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingCredentials)
	}
	return nil
}

func (s *OpenAIService) GetResponse(ctx context.Context, text string) (*VoiceResponse, error) {
	if err := s.CheckConfig(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.generateReply(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoAudio, err)
	}

	audio, err := s.synthesize(ctx, reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoAudio, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: openai speech endpoint returned empty audio", ErrNoAudio)
	}

	return &VoiceResponse{
		ResponseText: &reply,
		AudioBase64:  base64.StdEncoding.EncodeToString(audio),
		Transport:    "sdk",
	}, nil
}

func (s *OpenAIService) generateReply(ctx context.Context, text string) (string, error) {
	s.logger.Infow("Generating character reply", "model", s.opts.ChatModel, "textLen", len(text))

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.opts.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: s.opts.CharacterPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("openai returned an empty reply")
	}
	return reply, nil
}

func (s *OpenAIService) synthesize(ctx context.Context, reply string) ([]byte, error) {
	s.logger.Infow("Synthesizing reply", "model", s.opts.TTSModel, "voice", s.opts.TTSVoice, "replyLen", len(reply))

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.opts.TTSModel),
		Input:          reply,
		Voice:          openai.SpeechVoice(s.opts.TTSVoice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech request failed: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read openai speech audio: %w", err)
	}
	return audio, nil
}
