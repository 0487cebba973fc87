// Package provider defines the capability contract every messaging
// provider module implements, and the tagged-union configuration that
// selects between them at runtime.
package provider

import (
	"context"
	"encoding/json"

	"msgbridge/internal/canonical"
)

// Kind tags a configured provider.
type Kind string

const (
	KindWhatsApp  Kind = "whatsapp"
	KindEvolution Kind = "evolutionAPI"
)

// WhatsAppCredentials configure the WhatsApp Business Cloud API.
type WhatsAppCredentials struct {
	Token         string
	PhoneNumberID string
	// GraphBaseURL overrides the Graph API base, mainly for tests.
	GraphBaseURL string
}

// EvolutionCredentials configure a self-hosted Evolution API bridge.
type EvolutionCredentials struct {
	APIURL     string
	APIKey     string
	InstanceID string
}

// CloudflareCredentials configure the Workers AI Whisper backend.
type CloudflareCredentials struct {
	AccountID string
	APIToken  string
	// Endpoint overrides the Workers AI run URL, mainly for tests.
	Endpoint string
}

// AWSCredentials configure the Textract backend.
type AWSCredentials struct {
	AccessKey string
	SecretKey string
	Region    string
	// Endpoint overrides the Textract endpoint, mainly for tests.
	Endpoint string
}

// Config is the tagged union of provider configurations. Selected names
// the variant; only the matching credential struct is meaningful. The
// cross-cutting extractor credentials and upload endpoint are shared by
// both variants. A Config is constructed once per request scope and is
// read-only for its lifetime.
type Config struct {
	Selected   Kind
	WhatsApp   *WhatsAppCredentials
	Evolution  *EvolutionCredentials
	Cloudflare *CloudflareCredentials
	AWS        *AWSCredentials
	// UploadEndpoint optionally receives extracted media before the
	// canonical message is forwarded downstream.
	UploadEndpoint string
}

// WhatsAppCreds narrows the union to the WhatsApp variant. The second
// return is false for any other tag; callers must fail closed.
func (c Config) WhatsAppCreds() (*WhatsAppCredentials, bool) {
	if c.Selected != KindWhatsApp || c.WhatsApp == nil {
		return nil, false
	}
	return c.WhatsApp, true
}

// EvolutionCreds narrows the union to the Evolution API variant.
func (c Config) EvolutionCreds() (*EvolutionCredentials, bool) {
	if c.Selected != KindEvolution || c.Evolution == nil {
		return nil, false
	}
	return c.Evolution, true
}

// InboundEnvelope carries per-event fields the raw message object itself
// does not contain. The bridge provider keys, timestamps, and reply
// context live one level above the message in its webhook payload; the
// adapter shell extracts them so decoders stay payload-shape agnostic.
type InboundEnvelope struct {
	MessageID        string
	Sender           string
	ReplyToMessageID string
	TimestampEpoch   int64
}

// Provider is the capability set one messaging provider implements:
// inbound decoding plus one renderer per send kind. Renderers never return
// an error; every failure is folded into the SendResult. DecodeInbound
// returns (nil, nil) when the message shape is not one it supports —
// absence is distinguishable from a decoding failure.
type Provider interface {
	Name() string
	DecodeInbound(ctx context.Context, raw json.RawMessage, receiverID string, env *InboundEnvelope, cfg Config) (*canonical.InboundMessage, error)
	SendText(ctx context.Context, in canonical.SendText, cfg Config) canonical.SendResult
	SendImage(ctx context.Context, in canonical.SendImage, cfg Config) canonical.SendResult
	SendSticker(ctx context.Context, in canonical.SendSticker, cfg Config) canonical.SendResult
	SendReaction(ctx context.Context, in canonical.SendReaction, cfg Config) canonical.SendResult
	SendList(ctx context.Context, in canonical.SendList, cfg Config) canonical.SendResult
}
