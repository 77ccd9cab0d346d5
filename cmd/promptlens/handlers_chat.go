package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haasonsaas/promptlens/internal/config"
	"github.com/haasonsaas/promptlens/internal/interceptor"
	"github.com/haasonsaas/promptlens/internal/metrics"
	"github.com/haasonsaas/promptlens/internal/observability"
	"github.com/haasonsaas/promptlens/internal/version"
	"github.com/haasonsaas/promptlens/pkg/models"
)

const (
	defaultOpenAIModel    = openai.GPT4oMini
	defaultAnthropicModel = "claude-sonnet-4-20250514"
)

// chatCall sends one user message and returns the response text. The
// argument is the request built by buildRequest after variant substitution.
type chatCall = interceptor.Call[string]

func runChat(cmd *cobra.Command, opts chatOptions, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	call, buildRequest, err := newProviderCall(cfg.Providers, opts)
	if err != nil {
		return err
	}

	queue := metrics.NewQueue(cfg.QueueConfig(),
		metrics.NewHTTPDeliverer(cfg.Metrics.Endpoint, cfg.APIKey, metrics.WithSDKVersion(version.SDKHeader())),
		metrics.WithLogger(logger),
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := queue.Close(closeCtx); err != nil {
			logger.Warn(closeCtx, "failed to flush metrics", "error", err)
		}
	}()

	icOpts := []interceptor.Option{
		interceptor.WithSink(queue),
		interceptor.WithLogger(logger),
	}
	if opts.userID != "" {
		icOpts = append(icOpts, interceptor.WithUserID(opts.userID))
	}
	ic, err := interceptor.New(cfg.ExperimentsConfig(), icOpts...)
	if err != nil {
		return err
	}
	chat, err := interceptor.Bind(ic, opts.experimentID, call)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	send := func(msg string) error {
		result, err := chat(ctx, buildRequest(msg))
		if err != nil {
			return err
		}
		return printChatResult(out, result, opts.jsonOutput)
	}

	if len(args) > 0 {
		return send(strings.Join(args, " "))
	}

	// Interactive mode follows config edits so variants can be tuned live.
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if path := resolveConfigPath(configPath); fileExists(path) {
		go func() {
			err := config.Watch(watchCtx, path, logger, func(next *config.Config) {
				if err := ic.SetExperiments(next.ExperimentsConfig()); err != nil {
					logger.Warn(watchCtx, "ignoring experiment reload", "error", err)
					return
				}
				logger.Info(watchCtx, "experiments reloaded", "count", len(next.Experiments))
			})
			if err != nil {
				logger.Warn(watchCtx, "config watch stopped", "error", err)
			}
		}()
	}
	prompt := io.Discard
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		prompt = cmd.ErrOrStderr()
	}
	return chatLoop(ctx, cmd.InOrStdin(), prompt, logger, send)
}

// chatLoop sends each non-empty stdin line, writing a "> " prompt to prompt
// before each read. Call failures are logged and the loop continues; it ends
// at EOF or when ctx is cancelled.
func chatLoop(ctx context.Context, in io.Reader, prompt io.Writer, logger *observability.Logger, send func(string) error) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(prompt, "> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := send(line); err != nil {
			logger.Error(ctx, "chat call failed", "error", err)
		}
	}
	return scanner.Err()
}

func printChatResult(w io.Writer, result *models.ExperimentResult[string], jsonOutput bool) error {
	if jsonOutput {
		return writeJSONOut(w, result)
	}
	fmt.Fprintln(w, result.Response)
	fmt.Fprintf(w, "[experiment %s, variant %d]\n", result.Experiment.ID, result.Experiment.VariantIndex)
	return nil
}

// newProviderCall returns the provider call and a builder for its request
// argument. The request carries the model so metrics are labeled by it.
func newProviderCall(providers config.ProvidersConfig, opts chatOptions) (chatCall, func(string) any, error) {
	switch strings.ToLower(strings.TrimSpace(opts.provider)) {
	case providerOpenAI:
		return newOpenAICall(providers.OpenAI, opts)
	case providerAnthropic:
		return newAnthropicCall(providers.Anthropic, opts)
	default:
		return nil, nil, fmt.Errorf("unknown provider %q (expected %s or %s)", opts.provider, providerOpenAI, providerAnthropic)
	}
}

func newOpenAICall(pc config.ProviderConfig, opts chatOptions) (chatCall, func(string) any, error) {
	apiKey := firstNonEmpty(pc.APIKey, os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, nil, fmt.Errorf("openai api key is required (providers.openai.api_key or OPENAI_API_KEY)")
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if pc.BaseURL != "" {
		clientCfg.BaseURL = pc.BaseURL
	}
	client := openai.NewClientWithConfig(clientCfg)
	model := firstNonEmpty(opts.model, pc.DefaultModel, defaultOpenAIModel)
	maxTokens := opts.maxTokens
	if maxTokens <= 0 {
		maxTokens = pc.MaxTokens
	}

	build := func(msg string) any {
		return openai.ChatCompletionRequest{
			Model:     model,
			MaxTokens: int(maxTokens),
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: msg},
			},
		}
	}
	call := func(ctx context.Context, args ...any) (string, error) {
		req, ok := args[0].(openai.ChatCompletionRequest)
		if !ok {
			return "", fmt.Errorf("unexpected request type %T", args[0])
		}
		resp, err := client.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", fmt.Errorf("openai: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("openai: empty response")
		}
		return resp.Choices[0].Message.Content, nil
	}
	return call, build, nil
}

func newAnthropicCall(pc config.ProviderConfig, opts chatOptions) (chatCall, func(string) any, error) {
	apiKey := firstNonEmpty(pc.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, nil, fmt.Errorf("anthropic api key is required (providers.anthropic.api_key or ANTHROPIC_API_KEY)")
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if pc.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(pc.BaseURL))
	}
	client := anthropic.NewClient(clientOpts...)
	model := firstNonEmpty(opts.model, pc.DefaultModel, defaultAnthropicModel)
	maxTokens := opts.maxTokens
	if maxTokens <= 0 {
		maxTokens = pc.MaxTokens
	}

	build := func(msg string) any {
		return anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg)),
			},
		}
	}
	call := func(ctx context.Context, args ...any) (string, error) {
		params, ok := args[0].(anthropic.MessageNewParams)
		if !ok {
			return "", fmt.Errorf("unexpected request type %T", args[0])
		}
		msg, err := client.Messages.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("anthropic: %w", err)
		}
		var text strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		return text.String(), nil
	}
	return call, build, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
