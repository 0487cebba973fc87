// Package waba implements the provider capability module for the WhatsApp
// Business Cloud API: inbound webhook message decoding and outbound
// rendering for every canonical send kind.
package waba

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"msgbridge/internal/canonical"
	"msgbridge/internal/extract"
	"msgbridge/internal/provider"
)

// DefaultGraphBaseURL is the Graph API base used unless the provider
// config overrides it.
const DefaultGraphBaseURL = "https://graph.facebook.com/v23.0"

// Placeholder content used when media extraction cannot run or fails.
// Extraction failure never aborts standardization of the message.
const (
	noSpeechFallback = "No speech detected"
	noTextFallback   = "No text detected"
)

// Provider is the WABA capability module.
type Provider struct {
	client *http.Client
	logger *slog.Logger
}

// Options configure a WABA provider module.
type Options struct {
	Client *http.Client
	Logger *slog.Logger
}

// New creates the WABA provider module.
func New(opts Options) *Provider {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{client: client, logger: logger}
}

func (p *Provider) Name() string { return string(provider.KindWhatsApp) }

// decodeRule classifies one message shape: a structural predicate plus the
// content builder for the matching canonical kind. Rules are evaluated in
// order, first match wins; new kinds are added by appending a rule.
type decodeRule struct {
	kind  canonical.MessageKind
	match func(m *Message) bool
	build func(ctx context.Context, p *Provider, m *Message, cfg provider.Config) string
}

var decodeRules = []decodeRule{
	{
		kind:  canonical.KindText,
		match: func(m *Message) bool { return m.Text != nil },
		build: func(_ context.Context, _ *Provider, m *Message, _ provider.Config) string {
			return m.Text.Body
		},
	},
	{
		kind:  canonical.KindAudio,
		match: func(m *Message) bool { return m.Audio != nil },
		build: func(ctx context.Context, p *Provider, m *Message, cfg provider.Config) string {
			return p.audioToText(ctx, m.Audio, cfg)
		},
	},
	{
		kind:  canonical.KindImage,
		match: func(m *Message) bool { return m.Image != nil },
		build: func(ctx context.Context, p *Provider, m *Message, cfg provider.Config) string {
			return p.imageToText(ctx, m.Image, cfg)
		},
	},
	{
		kind: canonical.KindListReply,
		match: func(m *Message) bool {
			return m.Interactive != nil && m.Interactive.ListReply != nil
		},
		build: func(_ context.Context, _ *Provider, m *Message, _ provider.Config) string {
			reply := m.Interactive.ListReply
			return fmt.Sprintf("%s: %s", reply.Title, reply.Description)
		},
	},
}

// DecodeInbound classifies one raw Cloud API message into a canonical
// inbound message. An unrecognized shape returns (nil, nil): logged, not
// an error, so the webhook is still acknowledged.
func (p *Provider) DecodeInbound(ctx context.Context, raw json.RawMessage, receiverID string, _ *provider.InboundEnvelope, cfg provider.Config) (*canonical.InboundMessage, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode waba message: %w", err)
	}

	for _, rule := range decodeRules {
		if !rule.match(&msg) {
			continue
		}
		out := &canonical.InboundMessage{
			MessageID: msg.ID,
			Sender:    msg.From,
			Receiver:  receiverID,
			Timestamp: msg.Timestamp,
			Kind:      rule.kind,
			Content:   rule.build(ctx, p, &msg, cfg),
		}
		if msg.Context != nil {
			out.ReplyToMessageID = msg.Context.ID
		}
		return out, nil
	}

	p.logger.Warn("unsupported waba message shape", "type", msg.Type, "id", msg.ID)
	return nil, nil
}

// audioToText downloads the voice note and runs the transcription backend.
// Any failure degrades to a fixed placeholder.
func (p *Provider) audioToText(ctx context.Context, media *Media, cfg provider.Config) string {
	creds, ok := cfg.WhatsAppCreds()
	if !ok || creds.Token == "" {
		p.logger.Warn("whatsapp credentials missing, skipping audio extraction")
		return noSpeechFallback
	}
	if cfg.Cloudflare == nil {
		p.logger.Warn("cloudflare credentials missing, skipping audio extraction")
		return noSpeechFallback
	}

	audio, err := p.downloadMedia(ctx, creds, media.ID)
	if err != nil {
		p.logger.Error("audio download failed", "media_id", media.ID, "err", err)
		return noSpeechFallback
	}

	extractor := extract.NewAudioToText(extract.AudioOptions{
		Method: extract.AudioCloudflareWhisper,
		Whisper: &extract.WhisperConfig{
			AccountID: cfg.Cloudflare.AccountID,
			APIToken:  cfg.Cloudflare.APIToken,
			Endpoint:  cfg.Cloudflare.Endpoint,
		},
		Client: p.client,
		Logger: p.logger,
	})
	text, err := extractor.ConvertToText(ctx, audio, extract.AudioCloudflareWhisper)
	if err != nil {
		p.logger.Error("audio transcription failed", "media_id", media.ID, "err", err)
		return noSpeechFallback
	}
	if text == "" {
		return noSpeechFallback
	}
	return text
}

// imageToText downloads the image and runs the OCR backend, preferring the
// caption over the placeholder when extraction fails.
func (p *Provider) imageToText(ctx context.Context, media *Media, cfg provider.Config) string {
	creds, ok := cfg.WhatsAppCreds()
	if !ok || creds.Token == "" {
		p.logger.Warn("whatsapp credentials missing, skipping image extraction")
		return p.imageFallback(media)
	}
	if cfg.AWS == nil {
		p.logger.Warn("aws credentials missing, skipping image extraction")
		return p.imageFallback(media)
	}

	image, err := p.downloadMedia(ctx, creds, media.ID)
	if err != nil {
		p.logger.Error("image download failed", "media_id", media.ID, "err", err)
		return p.imageFallback(media)
	}

	extractor := extract.NewImageToText(extract.ImageOptions{
		Method: extract.ImageAWSTextract,
		Textract: &extract.TextractConfig{
			AccessKey: cfg.AWS.AccessKey,
			SecretKey: cfg.AWS.SecretKey,
			Region:    cfg.AWS.Region,
			Endpoint:  cfg.AWS.Endpoint,
		},
		Logger: p.logger,
	})
	text, err := extractor.ConvertToText(ctx, image, extract.ImageAWSTextract)
	if err != nil {
		p.logger.Error("image text extraction failed", "media_id", media.ID, "err", err)
		return p.imageFallback(media)
	}
	if text == "" {
		return p.imageFallback(media)
	}
	return text
}

func (p *Provider) imageFallback(media *Media) string {
	if media.Caption != "" {
		return media.Caption
	}
	return noTextFallback
}

// downloadMedia resolves a media ID to its download URL via the Graph API
// and fetches the bytes, both with bearer auth.
func (p *Provider) downloadMedia(ctx context.Context, creds *provider.WhatsAppCredentials, mediaID string) ([]byte, error) {
	lookupURL := fmt.Sprintf("%s/%s", graphBase(creds), mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build media lookup: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.Token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media lookup status %d", resp.StatusCode)
	}

	var lookup mediaLookup
	if err := json.NewDecoder(resp.Body).Decode(&lookup); err != nil {
		return nil, fmt.Errorf("decode media lookup: %w", err)
	}
	if lookup.URL == "" {
		return nil, fmt.Errorf("media lookup returned no url for %s", mediaID)
	}

	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, lookup.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build media download: %w", err)
	}
	dlReq.Header.Set("Authorization", "Bearer "+creds.Token)

	dlResp, err := p.client.Do(dlReq)
	if err != nil {
		return nil, fmt.Errorf("media download: %w", err)
	}
	defer dlResp.Body.Close()
	if dlResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media download status %d", dlResp.StatusCode)
	}

	return io.ReadAll(dlResp.Body)
}

func graphBase(creds *provider.WhatsAppCredentials) string {
	if creds.GraphBaseURL != "" {
		return creds.GraphBaseURL
	}
	return DefaultGraphBaseURL
}
