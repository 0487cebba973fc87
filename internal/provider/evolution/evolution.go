// Package evolution implements the provider capability module for a
// self-hosted Evolution API bridge: inbound webhook message decoding with
// media fetch/upload, and outbound rendering for every canonical send
// kind.
package evolution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"msgbridge/internal/canonical"
	"msgbridge/internal/extract"
	"msgbridge/internal/provider"
)

// Placeholder content used when media extraction cannot run or fails.
const (
	audioFallback       = "Audio message"
	audioFailedFallback = "Audio message (processing failed)"
	imageFallback       = "Image message"
	imageFailedFallback = "Image message (processing failed)"
)

// Provider is the Evolution API capability module.
type Provider struct {
	client *http.Client
	logger *slog.Logger
}

// Options configure an Evolution API provider module.
type Options struct {
	Client *http.Client
	Logger *slog.Logger
}

// New creates the Evolution API provider module.
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

func (p *Provider) Name() string { return string(provider.KindEvolution) }

// decodeRule mirrors the waba decode policy: structural predicate plus
// content builder, evaluated in order, first match wins. mediaURL is set
// by media builders when the upload endpoint accepted the file.
type decodeRule struct {
	kind  canonical.MessageKind
	match func(m *Message) bool
	build func(ctx context.Context, p *Provider, m *Message, env *provider.InboundEnvelope, cfg provider.Config) (content, mediaURL string)
}

var decodeRules = []decodeRule{
	{
		kind:  canonical.KindText,
		match: func(m *Message) bool { return m.Conversation != nil },
		build: func(_ context.Context, _ *Provider, m *Message, _ *provider.InboundEnvelope, _ provider.Config) (string, string) {
			return *m.Conversation, ""
		},
	},
	{
		kind:  canonical.KindAudio,
		match: func(m *Message) bool { return m.AudioMessage != nil },
		build: func(ctx context.Context, p *Provider, _ *Message, env *provider.InboundEnvelope, cfg provider.Config) (string, string) {
			return p.audioToText(ctx, env, cfg)
		},
	},
	{
		kind:  canonical.KindImage,
		match: func(m *Message) bool { return m.ImageMessage != nil },
		build: func(ctx context.Context, p *Provider, _ *Message, env *provider.InboundEnvelope, cfg provider.Config) (string, string) {
			return p.imageToText(ctx, env, cfg)
		},
	},
	{
		kind:  canonical.KindListReply,
		match: func(m *Message) bool { return m.ListResponse != nil },
		build: func(_ context.Context, _ *Provider, m *Message, _ *provider.InboundEnvelope, _ provider.Config) (string, string) {
			return fmt.Sprintf("%s: %s", m.ListResponse.Title, m.ListResponse.Description), ""
		},
	},
}

// DecodeInbound classifies one raw bridge message into a canonical
// inbound message. The envelope supplies the message key and reply
// context, which live above the message in the webhook payload.
func (p *Provider) DecodeInbound(ctx context.Context, raw json.RawMessage, receiverID string, env *provider.InboundEnvelope, cfg provider.Config) (*canonical.InboundMessage, error) {
	creds, ok := cfg.EvolutionCreds()
	if !ok {
		p.logger.Warn("invalid configuration: expected Evolution API provider")
		return nil, nil
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode evolution message: %w", err)
	}
	if env == nil {
		env = &provider.InboundEnvelope{}
	}

	for _, rule := range decodeRules {
		if !rule.match(&msg) {
			continue
		}
		content, mediaURL := rule.build(ctx, p, &msg, env, cfg)

		messageID := env.MessageID
		if messageID == "" {
			messageID = uuid.NewString()
		}
		timestamp := strconv.FormatInt(env.TimestampEpoch, 10)
		if env.TimestampEpoch == 0 {
			timestamp = strconv.FormatInt(time.Now().Unix(), 10)
		}
		receiver := creds.InstanceID
		if receiver == "" {
			receiver = "unknown"
		}
		// The bridge's peer JID travels in the envelope; fall back to the
		// caller-supplied receiver identity when absent.
		sender := env.Sender
		if sender == "" {
			sender = receiverID
		}

		return &canonical.InboundMessage{
			MessageID:        messageID,
			Sender:           sender,
			Receiver:         receiver,
			Timestamp:        timestamp,
			Kind:             rule.kind,
			Content:          content,
			ReplyToMessageID: env.ReplyToMessageID,
			MediaURL:         mediaURL,
		}, nil
	}

	p.logger.Warn("unsupported evolution message shape", "message_id", env.MessageID)
	return nil, nil
}

// audioToText fetches the voice note as base64 from the bridge, uploads
// it when an upload endpoint is configured, and transcribes it. Failures
// degrade to fixed placeholders.
func (p *Provider) audioToText(ctx context.Context, env *provider.InboundEnvelope, cfg provider.Config) (string, string) {
	media, err := p.fetchBase64(ctx, cfg, env.MessageID)
	if err != nil {
		p.logger.Error("audio fetch failed", "message_id", env.MessageID, "err", err)
		return audioFailedFallback, ""
	}

	mediaURL := p.uploadMedia(ctx, cfg, media, "audio", env.MessageID)

	if cfg.Cloudflare == nil {
		return audioFallback, mediaURL
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
	data, err := media.decode()
	if err != nil {
		p.logger.Error("audio base64 decode failed", "message_id", env.MessageID, "err", err)
		return audioFailedFallback, mediaURL
	}
	text, err := extractor.ConvertToText(ctx, data, extract.AudioCloudflareWhisper)
	if err != nil {
		p.logger.Error("audio transcription failed", "message_id", env.MessageID, "err", err)
		return audioFailedFallback, mediaURL
	}
	return text, mediaURL
}

// imageToText fetches the image as base64, uploads it when configured,
// and runs OCR. Failures degrade to fixed placeholders.
func (p *Provider) imageToText(ctx context.Context, env *provider.InboundEnvelope, cfg provider.Config) (string, string) {
	media, err := p.fetchBase64(ctx, cfg, env.MessageID)
	if err != nil {
		p.logger.Error("image fetch failed", "message_id", env.MessageID, "err", err)
		return imageFailedFallback, ""
	}

	mediaURL := p.uploadMedia(ctx, cfg, media, "image", env.MessageID)

	if cfg.AWS == nil {
		return imageFallback, mediaURL
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
	text, err := extractor.ConvertBase64ToText(ctx, media.Base64, extract.ImageAWSTextract)
	if err != nil {
		p.logger.Error("image text extraction failed", "message_id", env.MessageID, "err", err)
		return imageFailedFallback, mediaURL
	}
	return text, mediaURL
}

// fetchBase64 pulls a media message's content from the bridge.
func (p *Provider) fetchBase64(ctx context.Context, cfg provider.Config, messageID string) (*base64Response, error) {
	creds, ok := cfg.EvolutionCreds()
	if !ok {
		return nil, fmt.Errorf("invalid provider configuration for Evolution API")
	}

	url := fmt.Sprintf("%s/chat/getBase64FromMediaMessage/%s", strings.TrimRight(creds.APIURL, "/"), creds.InstanceID)
	reqBody := map[string]any{
		"message":      map[string]any{"key": map[string]string{"id": messageID}},
		"convertToMp4": false,
	}
	var out base64Response
	if err := p.postJSON(ctx, creds, url, reqBody, &out); err != nil {
		return nil, err
	}
	if out.Base64 == "" {
		return nil, fmt.Errorf("bridge returned no media content for %s", messageID)
	}
	return &out, nil
}

// uploadMedia posts the media to the configured upload endpoint and
// returns the stored URL. Upload failure is logged and non-fatal.
func (p *Provider) uploadMedia(ctx context.Context, cfg provider.Config, media *base64Response, kind, messageID string) string {
	if cfg.UploadEndpoint == "" {
		return ""
	}

	filename := media.FileName
	if filename == "" {
		ext := "bin"
		if parts := strings.SplitN(media.MimeType, "/", 2); len(parts) == 2 && parts[1] != "" {
			ext = parts[1]
		}
		filename = fmt.Sprintf("%s_%s.%s", kind, messageID, ext)
	}

	body := map[string]string{
		"base64":      media.Base64,
		"filename":    filename,
		"contentType": media.MimeType,
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := p.postJSONNoAuth(ctx, cfg.UploadEndpoint, body, &out); err != nil {
		p.logger.Error("media upload failed", "message_id", messageID, "err", err)
		return ""
	}
	p.logger.Info("media uploaded", "message_id", messageID, "url", out.URL)
	return out.URL
}
