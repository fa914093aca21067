package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jimshare/bae-ai/internal/chat"
	"github.com/jimshare/bae-ai/internal/config"
	"github.com/jimshare/bae-ai/internal/llm"
	"github.com/jimshare/bae-ai/internal/prompt"
	"github.com/jimshare/bae-ai/internal/ratelimit"
	"github.com/jimshare/bae-ai/internal/serve"
	"github.com/jimshare/bae-ai/internal/store"
)

// newProvider builds the completion backend; swapped in tests.
var newProvider = func(ctx context.Context, c *config.Config) (llm.Provider, error) {
	if err := config.ValidateLLMCredentials(c); err != nil {
		return nil, err
	}
	return llm.New(ctx, llm.Config{
		Provider:   c.LLM.Provider,
		APIKey:     c.APIKeyFor(),
		BaseURL:    c.LLM.BaseURL,
		Timeout:    time.Duration(c.LLM.TimeoutSeconds) * time.Second,
		MaxRetries: c.LLM.MaxRetries,
	}, log().Named("llm"))
}

func newServeCmd() *cobra.Command {
	var (
		host      string
		port      int
		replyMode string
		noWatch   bool
		noVerify  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Twilio webhook server",
		Long: `Starts the HTTP server Twilio calls for incoming SMS.

Endpoints:
  POST /sms               Twilio messaging webhook
  GET  /health            health check
  GET  /api/v1/messages   message log (needs server.api_key off loopback)
  GET  /api/v1/stats      message log summary

The context file is reloaded automatically when it changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("reply-mode") {
				cfg.Server.ReplyMode = replyMode
			}
			if noWatch {
				cfg.Prompt.Watch = false
			}
			if noVerify {
				cfg.Twilio.ValidateSignature = false
			}
			if errs := config.Validate(cfg); len(errs) > 0 {
				return fmt.Errorf("invalid config: %w", errs[0])
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen address (default from config: server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default from config: server.port)")
	cmd.Flags().StringVar(&replyMode, "reply-mode", "", "text, twiml or rest")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "read the context file on every message instead of watching it")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip Twilio signature validation (local testing only)")
	return cmd
}

// components is everything a reply pipeline needs, built from config.
type components struct {
	chat     *chat.Service
	context  *prompt.ContextSource
	recorder store.Recorder
}

func (c *components) Close() error {
	return c.recorder.Close()
}

func buildComponents(ctx context.Context, c *config.Config, withStore bool) (*components, error) {
	provider, err := newProvider(ctx, c)
	if err != nil {
		return nil, err
	}

	var recorder store.Recorder = store.Nop{}
	if withStore && c.Store.Enabled {
		s, err := openStore(c)
		if err != nil {
			return nil, err
		}
		recorder = s
	}

	var temperature *float64
	if c.LLM.Temperature != nil {
		t := *c.LLM.Temperature
		temperature = &t
	}

	source := prompt.NewContextSource(c.Prompt.ContextFile, log().Named("context"))
	limiter := ratelimit.New(c.RateLimit.MaxPerWindow, time.Duration(c.RateLimit.WindowMinutes)*time.Minute)
	svc := chat.NewService(provider, source, limiter, recorder, chat.Options{
		Model:       c.LLM.Model,
		MaxTokens:   c.LLM.MaxTokens,
		Temperature: temperature,
		SMSLimit:    c.Prompt.SMSLimit,
	}, log().Named("chat"))

	return &components{chat: svc, context: source, recorder: recorder}, nil
}

func openStore(c *config.Config) (*store.Store, error) {
	s, err := store.Open(c.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open message log: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate message log: %w", err)
	}
	return s, nil
}

func runServe(ctx context.Context, c *config.Config) error {
	comps, err := buildComponents(ctx, c, true)
	if err != nil {
		return err
	}
	defer comps.Close()

	var sender serve.Sender
	if c.Twilio.AccountSID != "" && c.Twilio.AuthToken != "" {
		sender = twilioClient(c)
	}

	srv := serve.New(serve.Config{
		Host:              c.Server.Host,
		Port:              c.Server.Port,
		PublicBaseURL:     c.Server.PublicBaseURL,
		ReplyMode:         c.Server.ReplyMode,
		APIKey:            c.Server.APIKey,
		RESTWorkers:       c.Server.RESTWorkers,
		ValidateSignature: c.Twilio.ValidateSignature,
		AccountSID:        c.Twilio.AccountSID,
		AuthToken:         c.Twilio.AuthToken,
		FromNumber:        c.Twilio.PhoneNumber,
		Chat:              comps.chat,
		Sender:            sender,
		Store:             comps.recorder,
		Logger:            log().Named("http"),
		Version:           Version,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	if c.Prompt.Watch {
		g.Go(func() error {
			if err := comps.context.Watch(gctx); err != nil {
				// The server still works without live reload.
				log().Warn("context watcher stopped", zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}
