// Package engine is the normalization engine: it routes inbound payloads
// to the configured provider's decoder and outbound canonical requests to
// the matching renderer. It owns no per-kind logic itself — only provider
// selection, the cross-cutting truncation rule, and batch fan-out.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"msgbridge/internal/canonical"
	"msgbridge/internal/metrics"
	"msgbridge/internal/provider"
	"msgbridge/internal/provider/evolution"
	"msgbridge/internal/provider/waba"
)

// Engine dispatches between the canonical schema and the provider
// capability modules. One Engine is constructed per request scope; its
// config is read-only for that lifetime.
type Engine struct {
	cfg      provider.Config
	registry map[provider.Kind]provider.Provider
	logger   *slog.Logger
}

// Options configure an Engine.
type Options struct {
	Config provider.Config
	Logger *slog.Logger
	Client *http.Client
	// Registry overrides the default provider modules, for tests.
	Registry map[provider.Kind]provider.Provider
}

// New creates an engine with the standard provider registry.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = map[provider.Kind]provider.Provider{
			provider.KindWhatsApp:  waba.New(waba.Options{Client: opts.Client, Logger: logger}),
			provider.KindEvolution: evolution.New(evolution.Options{Client: opts.Client, Logger: logger}),
		}
	}
	return &Engine{cfg: opts.Config, registry: registry, logger: logger}
}

// StandardizeInbound routes one raw provider message to the configured
// decoder. An unknown provider tag yields (nil, nil) with a warning — the
// webhook is still acknowledged. Decoder declines propagate unchanged.
func (e *Engine) StandardizeInbound(ctx context.Context, raw json.RawMessage, receiverID string, env *provider.InboundEnvelope) (*canonical.InboundMessage, error) {
	p, ok := e.registry[e.cfg.Selected]
	if !ok {
		e.logger.Warn("unsupported messaging provider", "provider", string(e.cfg.Selected))
		return nil, nil
	}

	msg, err := p.DecodeInbound(ctx, raw, receiverID, env, e.cfg)
	if err != nil {
		return nil, fmt.Errorf("standardize inbound: %w", err)
	}
	if msg != nil {
		metrics.Collector.Counter("msgbridge_inbound_standardized_total",
			"Inbound messages standardized by kind",
			fmt.Sprintf("provider=%q,kind=%q", p.Name(), msg.Kind)).Inc()
	}
	return msg, nil
}

// SendText dispatches a canonical text send, truncating oversized bodies
// before any renderer runs.
func (e *Engine) SendText(ctx context.Context, in canonical.SendText) canonical.SendResult {
	p, ok := e.registry[e.cfg.Selected]
	if !ok {
		return canonical.UnsupportedProvider(string(e.cfg.Selected))
	}
	in.Message = canonical.Truncate(in.Message)
	return e.record("text", p.SendText(ctx, in, e.cfg))
}

// SendImage dispatches a canonical image send, truncating captions.
func (e *Engine) SendImage(ctx context.Context, in canonical.SendImage) canonical.SendResult {
	p, ok := e.registry[e.cfg.Selected]
	if !ok {
		return canonical.UnsupportedProvider(string(e.cfg.Selected))
	}
	in.Caption = canonical.Truncate(in.Caption)
	return e.record("image", p.SendImage(ctx, in, e.cfg))
}

// SendSticker dispatches a canonical sticker send.
func (e *Engine) SendSticker(ctx context.Context, in canonical.SendSticker) canonical.SendResult {
	p, ok := e.registry[e.cfg.Selected]
	if !ok {
		return canonical.UnsupportedProvider(string(e.cfg.Selected))
	}
	return e.record("sticker", p.SendSticker(ctx, in, e.cfg))
}

// SendReaction dispatches a canonical reaction send.
func (e *Engine) SendReaction(ctx context.Context, in canonical.SendReaction) canonical.SendResult {
	p, ok := e.registry[e.cfg.Selected]
	if !ok {
		return canonical.UnsupportedProvider(string(e.cfg.Selected))
	}
	return e.record("reaction", p.SendReaction(ctx, in, e.cfg))
}

// SendList dispatches a canonical single-select list send, truncating the
// body text.
func (e *Engine) SendList(ctx context.Context, in canonical.SendList) canonical.SendResult {
	p, ok := e.registry[e.cfg.Selected]
	if !ok {
		return canonical.UnsupportedProvider(string(e.cfg.Selected))
	}
	in.BodyText = canonical.Truncate(in.BodyText)
	return e.record("list", p.SendList(ctx, in, e.cfg))
}

func (e *Engine) record(kind string, res canonical.SendResult) canonical.SendResult {
	metrics.Collector.Counter("msgbridge_send_total",
		"Outbound sends by kind and outcome",
		fmt.Sprintf("provider=%q,kind=%q,success=%q", string(e.cfg.Selected), kind, fmt.Sprint(res.Success))).Inc()
	return res
}
