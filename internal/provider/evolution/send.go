package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"msgbridge/internal/canonical"
	"msgbridge/internal/provider"
)

// sendDelayMS and the link-preview/mention flags are what the bridge
// expects on every message verb.
const sendDelayMS = 500

// validateConfig proves the config is the Evolution API variant with
// complete credentials. Returns a failure result to hand back unchanged,
// or nil.
func validateConfig(cfg provider.Config) (*provider.EvolutionCredentials, *canonical.SendResult) {
	creds, ok := cfg.EvolutionCreds()
	if !ok {
		res := canonical.Failure(canonical.CodeInvalidConfig, "invalid configuration: expected Evolution API provider")
		return nil, &res
	}
	if creds.APIKey == "" {
		res := canonical.Failure(canonical.CodeMissingAPIKey, "Evolution API key is required for sending messages")
		return nil, &res
	}
	if creds.APIURL == "" {
		res := canonical.Failure(canonical.CodeMissingAPIURL, "Evolution API URL is required for sending messages")
		return nil, &res
	}
	if creds.InstanceID == "" {
		res := canonical.Failure(canonical.CodeMissingInstanceID, "Evolution API instance ID is required for sending messages")
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
		"number":           in.To,
		"text":             in.Message,
		"delay":            sendDelayMS,
		"linkPreview":      false,
		"mentionsEveryOne": false,
	}
	addQuoted(payload, in.ReplyToMessageID, in.Message)

	return p.send(ctx, creds, "sendText", payload, "failed to send message")
}

// SendImage renders and sends an image via the bridge's media verb.
func (p *Provider) SendImage(ctx context.Context, in canonical.SendImage, cfg provider.Config) canonical.SendResult {
	creds, fail := validateConfig(cfg)
	if fail != nil {
		return *fail
	}
	if verr := in.Validate(); verr != nil {
		return canonical.SendResult{Success: false, Error: verr}
	}

	media := in.ImageURL
	if media == "" {
		media = in.ImageID
	}
	payload := map[string]any{
		"number":           in.To,
		"mediatype":        "image",
		"mimetype":         "image/jpeg",
		"media":            media,
		"delay":            sendDelayMS,
		"linkPreview":      false,
		"mentionsEveryOne": false,
	}
	if in.Caption != "" {
		payload["caption"] = in.Caption
	}
	quotedText := in.Caption
	if quotedText == "" {
		quotedText = "Image"
	}
	addQuoted(payload, in.ReplyToMessageID, quotedText)

	return p.send(ctx, creds, "sendMedia", payload, "failed to send image")
}

// SendSticker renders and sends a sticker.
func (p *Provider) SendSticker(ctx context.Context, in canonical.SendSticker, cfg provider.Config) canonical.SendResult {
	creds, fail := validateConfig(cfg)
	if fail != nil {
		return *fail
	}
	if verr := in.Validate(); verr != nil {
		return canonical.SendResult{Success: false, Error: verr}
	}

	sticker := in.StickerURL
	if sticker == "" {
		sticker = in.StickerID
	}
	payload := map[string]any{
		"number":           in.To,
		"sticker":          sticker,
		"delay":            sendDelayMS,
		"linkPreview":      false,
		"mentionsEveryOne": false,
	}
	addQuoted(payload, in.ReplyToMessageID, "Sticker")

	return p.send(ctx, creds, "sendSticker", payload, "failed to send sticker")
}

// SendReaction sends an emoji reaction keyed by the target message ID.
func (p *Provider) SendReaction(ctx context.Context, in canonical.SendReaction, cfg provider.Config) canonical.SendResult {
	creds, fail := validateConfig(cfg)
	if fail != nil {
		return *fail
	}
	if verr := in.Validate(); verr != nil {
		return canonical.SendResult{Success: false, Error: verr}
	}

	payload := map[string]any{
		"key": map[string]any{
			"remoteJid": in.To + "@s.whatsapp.net",
			"fromMe":    true,
			"id":        in.MessageID,
		},
		"reaction": in.Emoji,
	}

	return p.send(ctx, creds, "sendReaction", payload, "failed to send reaction")
}

// SendList renders the list as a single-select poll: the bridge has no
// native list message, so sections are flattened into poll options (one
// per item title) and header/body/footer fold into the poll name.
func (p *Provider) SendList(ctx context.Context, in canonical.SendList, cfg provider.Config) canonical.SendResult {
	creds, fail := validateConfig(cfg)
	if fail != nil {
		return *fail
	}
	if verr := in.Validate(); verr != nil {
		return canonical.SendResult{Success: false, Error: verr}
	}

	var options []string
	for _, section := range in.Sections {
		for _, item := range section.Items {
			options = append(options, item.Title)
		}
	}

	name := in.HeaderText
	if in.BodyText != "" {
		name += "\n\n" + in.BodyText
	}
	if in.FooterText != "" {
		name += "\n\n" + in.FooterText
	}

	payload := map[string]any{
		"number":           in.To,
		"name":             name,
		"selectableCount":  1,
		"values":           options,
		"delay":            sendDelayMS,
		"linkPreview":      false,
		"mentionsEveryOne": false,
	}
	addQuoted(payload, in.ReplyToMessageID, in.BodyText)

	return p.send(ctx, creds, "sendPoll", payload, "failed to send list")
}

func addQuoted(payload map[string]any, replyTo, text string) {
	if replyTo == "" {
		return
	}
	payload["quoted"] = map[string]any{
		"key":     map[string]string{"id": replyTo},
		"message": map[string]string{"conversation": text},
	}
}

// send performs the single outbound bridge call and maps the response
// into a canonical result. No retries, no backoff.
func (p *Provider) send(ctx context.Context, creds *provider.EvolutionCredentials, verb string, payload map[string]any, fallbackMsg string) canonical.SendResult {
	url := fmt.Sprintf("%s/message/%s/%s", strings.TrimRight(creds.APIURL, "/"), verb, creds.InstanceID)

	body, err := json.Marshal(payload)
	if err != nil {
		return canonical.Failure(canonical.CodeNetworkError, fmt.Sprintf("marshal payload: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return canonical.Failure(canonical.CodeNetworkError, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", creds.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return canonical.Failure(canonical.CodeNetworkError, err.Error())
	}
	defer resp.Body.Close()

	var apiResp sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil && resp.StatusCode < 300 {
		return canonical.Failure(canonical.CodeNetworkError, fmt.Sprintf("decode response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if apiResp.Error != nil {
			return canonical.ProviderFailure(apiResp.Error.Message, apiResp.Error.Code, fallbackMsg)
		}
		msg := apiResp.Message
		if msg == "" {
			msg = fallbackMsg
		}
		return canonical.ProviderFailure(msg, resp.StatusCode, fallbackMsg)
	}

	messageID := ""
	switch {
	case apiResp.Key != nil:
		messageID = apiResp.Key.ID
	case apiResp.Data != nil && apiResp.Data.Key != nil:
		messageID = apiResp.Data.Key.ID
	}
	p.logger.Info("evolution message sent", "verb", verb, "message_id", messageID)
	return canonical.Sent(messageID)
}

// postJSON issues an authenticated JSON POST against the bridge and
// decodes the response into out.
func (p *Provider) postJSON(ctx context.Context, creds *provider.EvolutionCredentials, url string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", creds.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("bridge request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bridge status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// postJSONNoAuth issues a plain JSON POST, used for the upload endpoint.
func (p *Provider) postJSONNoAuth(ctx context.Context, url string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
