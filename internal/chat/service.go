// Package chat turns an inbound SMS into a reply: rate limit, prompt
// assembly, completion, length fitting and logging of the exchange.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jimshare/bae-ai/internal/llm"
	"github.com/jimshare/bae-ai/internal/prompt"
	"github.com/jimshare/bae-ai/internal/ratelimit"
	"github.com/jimshare/bae-ai/internal/store"
	"github.com/jimshare/bae-ai/internal/twilio"
)

// Replies sent when no completion is delivered.
const (
	ErrorReply       = "Sorry, there was an error processing your message."
	RateLimitedReply = "You've reached the message limit for now. Please try again later."
)

// ErrEmptyCompletion is returned when the provider answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// ErrRateLimited marks a reply that was refused by the per-sender limiter.
var ErrRateLimited = errors.New("sender rate limited")

// ContextProvider supplies the reference text placed in every prompt.
type ContextProvider interface {
	Content() string
}

// StaticContext is a fixed context string.
type StaticContext string

// Content returns the string itself.
func (c StaticContext) Content() string { return string(c) }

// Reply is the outcome of handling one inbound message.
type Reply struct {
	// ID is the message log ID; empty when recording failed.
	ID       string          `json:"id,omitempty"`
	Text     string          `json:"text"`
	Status   string          `json:"status"`
	Segments int             `json:"segments"`
	Encoding prompt.Encoding `json:"encoding"`
	Latency  time.Duration   `json:"latency"`
}

// Options configures a Service.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature *float64
	SMSLimit    int // 0 disables fitting
}

// Service answers inbound messages.
type Service struct {
	provider llm.Provider
	context  ContextProvider
	limiter  *ratelimit.Limiter
	recorder store.Recorder
	opts     Options
	logger   *zap.Logger

	now func() time.Time
}

// NewService wires a Service. limiter, recorder and logger may be nil.
func NewService(provider llm.Provider, ctxSource ContextProvider, limiter *ratelimit.Limiter, recorder store.Recorder, opts Options, logger *zap.Logger) *Service {
	if ctxSource == nil {
		ctxSource = StaticContext("")
	}
	if recorder == nil {
		recorder = store.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	return &Service{
		provider: provider,
		context:  ctxSource,
		limiter:  limiter,
		recorder: recorder,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Reply produces the answer for msg. On failure the returned Reply still
// carries the text to send back (ErrorReply or RateLimitedReply) and the
// error says why.
func (s *Service) Reply(ctx context.Context, msg twilio.InboundMessage) (Reply, error) {
	start := s.now()
	log := s.logger.With(zap.String("from", msg.From), zap.String("message_sid", msg.MessageSID))

	entry := &store.Message{
		MessageSID: msg.MessageSID,
		From:       msg.From,
		To:         msg.To,
		Body:       msg.Body,
		Provider:   s.provider.Name(),
		Model:      s.opts.Model,
	}

	if !s.limiter.Allow(msg.From) {
		log.Info("sender rate limited", zap.Duration("retry_after", s.limiter.RetryAfter(msg.From)))
		entry.Status = store.StatusRateLimited
		entry.Reply = RateLimitedReply
		return s.finish(entry, start, ErrRateLimited)
	}

	text, err := s.complete(ctx, msg.Body)
	if err != nil {
		log.Error("completion failed", zap.Error(err))
		entry.Status = store.StatusFailed
		entry.Reply = ErrorReply
		entry.Error = err.Error()
		return s.finish(entry, start, err)
	}

	entry.Status = store.StatusReplied
	entry.Reply = text
	reply, _ := s.finish(entry, start, nil)
	log.Info("replied",
		zap.Int("segments", reply.Segments),
		zap.Duration("latency", reply.Latency),
	)
	return reply, nil
}

func (s *Service) complete(ctx context.Context, body string) (string, error) {
	request := llm.Request{
		Model:       s.opts.Model,
		System:      prompt.SystemPrompt,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
		Messages:    []llm.Message{llm.UserMessage(prompt.Generate(body, s.context.Content()))},
	}
	response, err := s.provider.Complete(ctx, request)
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", s.provider.Name(), err)
	}
	text := strings.TrimSpace(response.Text)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	if s.opts.SMSLimit > 0 {
		text = prompt.FitSMS(text, s.opts.SMSLimit)
	}
	return text, nil
}

// finish records entry and converts it to a Reply. Store errors are
// logged and never change the reply.
func (s *Service) finish(entry *store.Message, start time.Time, cause error) (Reply, error) {
	latency := s.now().Sub(start)
	segments, encoding := prompt.Segments(entry.Reply)
	entry.LatencyMS = latency.Milliseconds()
	entry.Segments = segments

	if err := s.recorder.Record(entry); err != nil {
		s.logger.Warn("failed to record message", zap.Error(err))
		entry.ID = ""
	}

	return Reply{
		ID:       entry.ID,
		Text:     entry.Reply,
		Status:   entry.Status,
		Segments: segments,
		Encoding: encoding,
		Latency:  latency,
	}, cause
}

// MarkDelivered updates the logged status after an out-of-band delivery.
func (s *Service) MarkDelivered(id string, deliveryErr error) {
	if id == "" {
		return
	}
	status, errMsg := store.StatusSent, ""
	if deliveryErr != nil {
		status, errMsg = store.StatusFailed, deliveryErr.Error()
	}
	if err := s.recorder.SetStatus(id, status, errMsg); err != nil {
		s.logger.Warn("failed to update message status", zap.String("id", id), zap.Error(err))
	}
}

// ProviderName reports the backend used for completions.
func (s *Service) ProviderName() string { return s.provider.Name() }
