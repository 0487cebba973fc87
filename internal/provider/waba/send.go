package waba

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"msgbridge/internal/canonical"
	"msgbridge/internal/provider"
)

// validateConfig proves the config is the WhatsApp variant with complete
// credentials. Returns a failure result to hand back unchanged, or nil.
func validateConfig(cfg provider.Config) (*provider.WhatsAppCredentials, *canonical.SendResult) {
	creds, ok := cfg.WhatsAppCreds()
	if !ok {
		res := canonical.Failure(canonical.CodeInvalidConfig, "invalid configuration: expected WhatsApp provider")
		return nil, &res
	}
	if creds.Token == "" {
		res := canonical.Failure(canonical.CodeMissingToken, "WhatsApp token is required for sending messages")
		return nil, &res
	}
	if creds.PhoneNumberID == "" {
		res := canonical.Failure(canonical.CodeMissingPhoneNumber, "WhatsApp phone number ID is required for sending messages")
		return nil, &res
	}
	return creds, nil
}

// SendText renders and sends a text message.
func (p *Provider) SendText(ctx context.Context, in canonical.SendText, cfg provider.Config) canonical.SendResult {
	creds, fail := validateConfig(cfg)
	if fail != nil {
		return *fail
	}
	if verr := in.Validate(); verr != nil {
		return canonical.SendResult{Success: false, Error: verr}
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                in.To,
		"type":              "text",
		"text":              map[string]string{"body": in.Message},
	}
	addReplyContext(payload, in.ReplyToMessageID)

	return p.post(ctx, creds, payload, "failed to send message")
}

// SendImage renders and sends an image by link or uploaded media ID.
func (p *Provider) SendImage(ctx context.Context, in canonical.SendImage, cfg provider.Config) canonical.SendResult {
	creds, fail := validateConfig(cfg)
	if fail != nil {
		return *fail
	}
	if verr := in.Validate(); verr != nil {
		return canonical.SendResult{Success: false, Error: verr}
	}

	image := map[string]string{}
	if in.ImageURL != "" {
		image["link"] = in.ImageURL
	} else {
		image["id"] = in.ImageID
	}
	if in.Caption != "" {
		image["caption"] = in.Caption
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                in.To,
		"type":              "image",
		"image":             image,
	}
	addReplyContext(payload, in.ReplyToMessageID)

	return p.post(ctx, creds, payload, "failed to send image")
}

// SendSticker renders and sends a sticker by link or uploaded media ID.
func (p *Provider) SendSticker(ctx context.Context, in canonical.SendSticker, cfg provider.Config) canonical.SendResult {
	creds, fail := validateConfig(cfg)
	if fail != nil {
		return *fail
	}
	if verr := in.Validate(); verr != nil {
		return canonical.SendResult{Success: false, Error: verr}
	}

	sticker := map[string]string{}
	if in.StickerURL != "" {
		sticker["link"] = in.StickerURL
	} else {
		sticker["id"] = in.StickerID
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                in.To,
		"type":              "sticker",
		"sticker":           sticker,
	}
	addReplyContext(payload, in.ReplyToMessageID)

	return p.post(ctx, creds, payload, "failed to send sticker")
}

// SendReaction sends an emoji reaction to a previous message.
func (p *Provider) SendReaction(ctx context.Context, in canonical.SendReaction, cfg provider.Config) canonical.SendResult {
	creds, fail := validateConfig(cfg)
	if fail != nil {
		return *fail
	}
	if verr := in.Validate(); verr != nil {
		return canonical.SendResult{Success: false, Error: verr}
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                in.To,
		"type":              "reaction",
		"reaction": map[string]string{
			"message_id": in.MessageID,
			"emoji":      in.Emoji,
		},
	}

	return p.post(ctx, creds, payload, "failed to send reaction")
}

// SendList renders a native interactive list message.
func (p *Provider) SendList(ctx context.Context, in canonical.SendList, cfg provider.Config) canonical.SendResult {
	creds, fail := validateConfig(cfg)
	if fail != nil {
		return *fail
	}
	if verr := in.Validate(); verr != nil {
		return canonical.SendResult{Success: false, Error: verr}
	}

	sections := make([]map[string]any, 0, len(in.Sections))
	for _, section := range in.Sections {
		rows := make([]map[string]string, 0, len(section.Items))
		for _, item := range section.Items {
			rows = append(rows, map[string]string{
				"id":          item.ID,
				"title":       item.Title,
				"description": item.Description,
			})
		}
		sections = append(sections, map[string]any{
			"title": section.Title,
			"rows":  rows,
		})
	}

	interactive := map[string]any{
		"type":   "list",
		"header": map[string]string{"type": "text", "text": in.HeaderText},
		"body":   map[string]string{"text": in.BodyText},
		"action": map[string]any{
			"button":   in.ButtonText,
			"sections": sections,
		},
	}
	if in.FooterText != "" {
		interactive["footer"] = map[string]string{"text": in.FooterText}
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                in.To,
		"type":              "interactive",
		"interactive":       interactive,
	}
	addReplyContext(payload, in.ReplyToMessageID)

	return p.post(ctx, creds, payload, "failed to send list")
}

func addReplyContext(payload map[string]any, replyTo string) {
	if replyTo != "" {
		payload["context"] = map[string]string{"message_id": replyTo}
	}
}

// post performs the single outbound Graph API call and maps the response
// into a canonical result. No retries, no backoff.
func (p *Provider) post(ctx context.Context, creds *provider.WhatsAppCredentials, payload map[string]any, fallbackMsg string) canonical.SendResult {
	body, err := json.Marshal(payload)
	if err != nil {
		return canonical.Failure(canonical.CodeNetworkError, fmt.Sprintf("marshal payload: %v", err))
	}

	url := fmt.Sprintf("%s/%s/messages", graphBase(creds), creds.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return canonical.Failure(canonical.CodeNetworkError, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.Token)

	resp, err := p.client.Do(req)
	if err != nil {
		return canonical.Failure(canonical.CodeNetworkError, err.Error())
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil && resp.StatusCode < 300 {
		return canonical.Failure(canonical.CodeNetworkError, fmt.Sprintf("decode response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if apiResp.Error != nil {
			return canonical.ProviderFailure(apiResp.Error.Message, apiResp.Error.Code, fallbackMsg)
		}
		return canonical.ProviderFailure(fallbackMsg, resp.StatusCode, fallbackMsg)
	}

	var messageID string
	if len(apiResp.Messages) > 0 {
		messageID = apiResp.Messages[0].ID
	}
	p.logger.Info("waba message sent", "message_id", messageID)
	return canonical.Sent(messageID)
}
