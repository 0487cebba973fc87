package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"msgbridge/internal/canonical"
	"msgbridge/internal/metrics"
	"msgbridge/internal/provider"
	"msgbridge/internal/provider/evolution"
	"msgbridge/internal/provider/waba"
)

const maxWebhookBody = 1 << 20 // 1MB

// wabaWebhook mirrors the Cloud API envelope but keeps each message raw
// so decoding stays with the provider module.
type wabaWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Metadata waba.Metadata     `json:"metadata"`
				Messages []json.RawMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// evolutionWebhook mirrors the bridge envelope with the message kept raw.
type evolutionWebhook struct {
	Event    string `json:"event"`
	Instance string `json:"instance"`
	Data     struct {
		Key              evolution.Key   `json:"key"`
		Message          json.RawMessage `json:"message"`
		MessageTimestamp int64           `json:"messageTimestamp"`
		ContextInfo      *struct {
			StanzaID string `json:"stanzaId"`
		} `json:"contextInfo"`
	} `json:"data"`
}

// handleWhatsAppWebhook serves Meta's subscription handshake on GET and
// message events on POST.
func (s *Server) handleWhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.verifyWhatsAppSubscription(w, r)
	case http.MethodPost:
		s.receiveWhatsAppEvent(w, r)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) verifyWhatsAppSubscription(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && s.cfg.Provider.WhatsApp.VerifyToken != "" && token == s.cfg.Provider.WhatsApp.VerifyToken {
		s.logger.Info("webhook subscription verified")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, challenge)
		return
	}
	http.Error(w, "Forbidden", http.StatusForbidden)
}

func (s *Server) receiveWhatsAppEvent(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	// Verify Meta's payload signature when an app secret is configured.
	if secret := s.cfg.Provider.WhatsApp.AppSecret; secret != "" {
		sig := r.Header.Get("X-Hub-Signature-256")
		if sig == "" {
			http.Error(w, "Missing signature", http.StatusUnauthorized)
			return
		}
		if !verifyHMAC(body, secret, sig) {
			http.Error(w, "Invalid signature", http.StatusForbidden)
			return
		}
	}

	var payload wabaWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	metrics.Collector.Counter("msgbridge_webhook_events_total",
		"Webhook events received by provider.", `provider="whatsapp"`).Inc()

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "" && change.Field != "messages" {
				continue
			}
			receiver := change.Value.Metadata.DisplayPhoneNumber
			if receiver == "" {
				receiver = change.Value.Metadata.PhoneNumberID
			}
			for _, raw := range change.Value.Messages {
				s.dispatchInbound(raw, receiver, nil)
			}
		}
	}

	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "EVENT_RECEIVED")
}

// handleEvolutionWebhook accepts bridge events. Only messages.upsert is
// consumed; everything else is acknowledged and dropped, as are
// self-sent messages.
func (s *Server) handleEvolutionWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	var payload evolutionWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	metrics.Collector.Counter("msgbridge_webhook_events_total",
		"Webhook events received by provider.", `provider="evolutionAPI"`).Inc()

	if payload.Event != "messages.upsert" || payload.Data.Key.FromMe || len(payload.Data.Message) == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	env := &provider.InboundEnvelope{
		MessageID:      payload.Data.Key.ID,
		Sender:         payload.Data.Key.RemoteJID,
		TimestampEpoch: payload.Data.MessageTimestamp,
	}
	if payload.Data.ContextInfo != nil {
		env.ReplyToMessageID = payload.Data.ContextInfo.StanzaID
	}

	s.dispatchInbound(payload.Data.Message, payload.Instance, env)

	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// dispatchInbound standardizes and forwards one raw message off the
// request path. The webhook response never waits on extraction or the
// downstream consumer.
func (s *Server) dispatchInbound(raw json.RawMessage, receiverID string, env *provider.InboundEnvelope) {
	s.runner.Go(context.Background(), "inbound-message", func(ctx context.Context) error {
		msg, err := s.engine.StandardizeInbound(ctx, raw, receiverID, env)
		if err != nil {
			return err
		}
		if msg == nil {
			return nil
		}
		s.logger.Info("message standardized",
			"message_id", msg.MessageID,
			"kind", msg.Kind,
			"sender", msg.Sender,
		)
		return s.forwardToCore(ctx, msg)
	})
}

// forwardToCore delivers the standardized message to the configured
// downstream consumer. With no consumer configured the message is only
// logged.
func (s *Server) forwardToCore(ctx context.Context, msg *canonical.InboundMessage) error {
	if s.cfg.Core.APIURL == "" {
		s.logger.Debug("no core endpoint configured, message not forwarded", "message_id", msg.MessageID)
		return nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal standardized message: %w", err)
	}

	url := strings.TrimSuffix(s.cfg.Core.APIURL, "/") + "/eventHandler/standarizedInput"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build core request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("forward to core: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("core returned status %d", resp.StatusCode)
	}

	metrics.Collector.Counter("msgbridge_core_forward_total",
		"Standardized messages forwarded downstream.", "").Inc()
	return nil
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

// verifyHMAC checks an X-Hub-Signature-256 style sha256= HMAC signature.
func verifyHMAC(body []byte, secret, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
