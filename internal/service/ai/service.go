package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	log "github.com/sirupsen/logrus"

	"github.com/jonieats/assistant/internal/config"
)

// ErrEmptyReply is returned when the model answers with no text.
var ErrEmptyReply = errors.New("model returned an empty reply")

// Options carries per-request sampling overrides.
type Options struct {
	Temperature *float32
	MaxTokens   *int
}

func (o Options) chainOptions() []compose.Option {
	var modelOpts []model.Option
	if o.Temperature != nil {
		modelOpts = append(modelOpts, model.WithTemperature(*o.Temperature))
	}
	if o.MaxTokens != nil {
		modelOpts = append(modelOpts, model.WithMaxTokens(*o.MaxTokens))
	}
	if len(modelOpts) == 0 {
		return nil
	}
	return []compose.Option{compose.WithChatModelOption(modelOpts...)}
}

// Service sends assembled message lists to the hosted chat model.
type Service struct {
	chatModel model.BaseChatModel
	cfg       config.AIConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates a service backed by the configured Ark model.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, cfg)
}

// NewServiceWithModel wires an existing chat model into the completion chain.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, cfg config.AIConfig) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	// The messages arrive fully assembled; the template only forwards them.
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("messages", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		cfg:       cfg,
		chain:     runnable,
	}, nil
}

// StreamingEnabled reports whether replies should be streamed to clients.
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// Model returns the model identifier in use.
func (s *Service) Model() string {
	return s.cfg.Model
}

// Complete runs one completion call and returns the reply text.
func (s *Service) Complete(ctx context.Context, messages []*schema.Message, opts Options) (string, error) {
	response, err := s.chain.Invoke(ctx, chainInput(messages), opts.chainOptions()...)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	reply := strings.TrimSpace(response.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}

	log.Debugf("[ai] completion ok, messages=%d, length=%d", len(messages), len(reply))
	return reply, nil
}

// Stream runs one streaming completion call. onDelta receives each non-empty
// chunk; returning an error from it aborts the stream. The concatenated reply
// is returned.
func (s *Service) Stream(ctx context.Context, messages []*schema.Message, opts Options, onDelta func(string) error) (string, error) {
	if !s.StreamingEnabled() {
		reply, err := s.Complete(ctx, messages, opts)
		if err != nil {
			return "", err
		}
		if onDelta != nil {
			if err := onDelta(reply); err != nil {
				return "", err
			}
		}
		return reply, nil
	}

	stream, err := s.chain.Stream(ctx, chainInput(messages), opts.chainOptions()...)
	if err != nil {
		return "", fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", fmt.Errorf("failed to receive stream chunk: %w", recvErr)
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" && onDelta != nil {
			if err := onDelta(chunk.Content); err != nil {
				return "", err
			}
		}
	}

	if len(chunks) == 0 {
		return "", ErrEmptyReply
	}

	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", fmt.Errorf("failed to concat stream chunks: %w", err)
	}

	reply := strings.TrimSpace(response.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

func chainInput(messages []*schema.Message) map[string]any {
	return map[string]any{"messages": messages}
}
