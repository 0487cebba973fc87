package waba

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"msgbridge/internal/canonical"
	"msgbridge/internal/provider"
)

// graphStub records decoded send payloads and answers with a fixed wamid.
func graphStub(t *testing.T) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var payloads []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1234567890/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("auth header = %q", got)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		payloads = append(payloads, payload)
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"id": "wamid.sent"}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &payloads
}

func TestSendTextSuccess(t *testing.T) {
	srv, payloads := graphStub(t)
	p := New(Options{Logger: testLogger()})

	res := p.SendText(context.Background(), canonical.SendText{
		To:      "15551234567",
		Message: "hello",
	}, whatsappConfig(srv.URL))

	if !res.Success {
		t.Fatalf("send failed: %+v", res.Error)
	}
	if res.MessageID != "wamid.sent" {
		t.Errorf("MessageID = %q, want wamid.sent", res.MessageID)
	}

	payload := (*payloads)[0]
	if payload["type"] != "text" || payload["to"] != "15551234567" {
		t.Errorf("payload = %+v", payload)
	}
	if payload["messaging_product"] != "whatsapp" {
		t.Errorf("messaging_product = %v", payload["messaging_product"])
	}
	text := payload["text"].(map[string]any)
	if text["body"] != "hello" {
		t.Errorf("text body = %v", text["body"])
	}
}

func TestSendTextReplyContext(t *testing.T) {
	srv, payloads := graphStub(t)
	p := New(Options{Logger: testLogger()})

	res := p.SendText(context.Background(), canonical.SendText{
		To:               "15551234567",
		Message:          "hello",
		ReplyToMessageID: "wamid.original",
	}, whatsappConfig(srv.URL))
	if !res.Success {
		t.Fatalf("send failed: %+v", res.Error)
	}

	msgContext, ok := (*payloads)[0]["context"].(map[string]any)
	if !ok {
		t.Fatal("reply context missing from payload")
	}
	if msgContext["message_id"] != "wamid.original" {
		t.Errorf("context.message_id = %v", msgContext["message_id"])
	}
}

func TestSendMissingCredentialsSkipsNetwork(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	p := New(Options{Logger: testLogger()})
	in := canonical.SendText{To: "15551234567", Message: "hello"}

	tests := []struct {
		name     string
		cfg      provider.Config
		wantCode string
	}{
		{
			"wrong provider variant",
			provider.Config{Selected: provider.KindEvolution},
			canonical.CodeInvalidConfig,
		},
		{
			"missing token",
			provider.Config{Selected: provider.KindWhatsApp, WhatsApp: &provider.WhatsAppCredentials{PhoneNumberID: "1", GraphBaseURL: srv.URL}},
			canonical.CodeMissingToken,
		},
		{
			"missing phone number id",
			provider.Config{Selected: provider.KindWhatsApp, WhatsApp: &provider.WhatsAppCredentials{Token: "t", GraphBaseURL: srv.URL}},
			canonical.CodeMissingPhoneNumber,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.SendText(context.Background(), in, tt.cfg)
			if res.Success {
				t.Fatal("send must fail")
			}
			if res.Error.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", res.Error.Code, tt.wantCode)
			}
		})
	}
	if calls != 0 {
		t.Errorf("credential failures must not reach the network, saw %d calls", calls)
	}
}

func TestSendValidationBeforeNetwork(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	p := New(Options{Logger: testLogger()})
	res := p.SendText(context.Background(), canonical.SendText{To: "15551234567"}, whatsappConfig(srv.URL))
	if res.Success || res.Error.Code != canonical.CodeInvalidInput {
		t.Errorf("result = %+v, want INVALID_INPUT", res)
	}
	if calls != 0 {
		t.Errorf("validation failures must not reach the network, saw %d calls", calls)
	}
}

func TestSendMapsGraphError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Invalid recipient", "type": "OAuthException", "code": 131026},
		})
	}))
	defer srv.Close()

	p := New(Options{Logger: testLogger()})
	res := p.SendText(context.Background(), canonical.SendText{To: "15551234567", Message: "hi"}, whatsappConfig(srv.URL))

	if res.Success {
		t.Fatal("send must fail")
	}
	if res.Error.Message != "Invalid recipient" {
		t.Errorf("message = %q", res.Error.Message)
	}
	if res.Error.Code != "131026" {
		t.Errorf("code = %q, want provider code as string", res.Error.Code)
	}
}

func TestSendMapsBareHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := New(Options{Logger: testLogger()})
	res := p.SendText(context.Background(), canonical.SendText{To: "15551234567", Message: "hi"}, whatsappConfig(srv.URL))

	if res.Success {
		t.Fatal("send must fail")
	}
	if res.Error.Code != "503" {
		t.Errorf("code = %q, want HTTP status fallback", res.Error.Code)
	}
	if res.Error.Message != "failed to send message" {
		t.Errorf("message = %q, want fallback text", res.Error.Message)
	}
}

func TestSendListRendersInteractiveList(t *testing.T) {
	srv, payloads := graphStub(t)
	p := New(Options{Logger: testLogger()})

	res := p.SendList(context.Background(), canonical.SendList{
		To:         "15551234567",
		HeaderText: "Menu",
		BodyText:   "Pick one",
		FooterText: "Kitchen closes at 10",
		ButtonText: "Open menu",
		Sections: []canonical.ListSection{
			{Title: "Mains", Items: []canonical.ListItem{
				{ID: "m1", Title: "Pizza", Description: "Margherita"},
				{ID: "m2", Title: "Pasta"},
			}},
		},
	}, whatsappConfig(srv.URL))
	if !res.Success {
		t.Fatalf("send failed: %+v", res.Error)
	}

	payload := (*payloads)[0]
	if payload["type"] != "interactive" {
		t.Fatalf("type = %v, want interactive", payload["type"])
	}
	interactive := payload["interactive"].(map[string]any)
	if interactive["type"] != "list" {
		t.Errorf("interactive type = %v", interactive["type"])
	}
	header := interactive["header"].(map[string]any)
	if header["text"] != "Menu" {
		t.Errorf("header = %v", header)
	}
	footer := interactive["footer"].(map[string]any)
	if footer["text"] != "Kitchen closes at 10" {
		t.Errorf("footer = %v", footer)
	}
	action := interactive["action"].(map[string]any)
	if action["button"] != "Open menu" {
		t.Errorf("button = %v", action["button"])
	}
	sections := action["sections"].([]any)
	rows := sections[0].(map[string]any)["rows"].([]any)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].(map[string]any)["id"] != "m1" {
		t.Errorf("first row = %v", rows[0])
	}
}

func TestSendListOmitsEmptyFooter(t *testing.T) {
	srv, payloads := graphStub(t)
	p := New(Options{Logger: testLogger()})

	in := canonical.SendList{
		To:         "15551234567",
		HeaderText: "Menu",
		BodyText:   "Pick one",
		ButtonText: "Open",
		Sections: []canonical.ListSection{
			{Title: "Mains", Items: []canonical.ListItem{{ID: "m1", Title: "Pizza"}}},
		},
	}
	if res := p.SendList(context.Background(), in, whatsappConfig(srv.URL)); !res.Success {
		t.Fatalf("send failed: %+v", res.Error)
	}

	interactive := (*payloads)[0]["interactive"].(map[string]any)
	if _, present := interactive["footer"]; present {
		t.Error("empty footer must be omitted from the payload")
	}
}

func TestSendReactionPayload(t *testing.T) {
	srv, payloads := graphStub(t)
	p := New(Options{Logger: testLogger()})

	res := p.SendReaction(context.Background(), canonical.SendReaction{
		To:        "15551234567",
		Emoji:     "👍",
		MessageID: "wamid.target",
	}, whatsappConfig(srv.URL))
	if !res.Success {
		t.Fatalf("send failed: %+v", res.Error)
	}

	payload := (*payloads)[0]
	if payload["type"] != "reaction" {
		t.Errorf("type = %v", payload["type"])
	}
	reaction := payload["reaction"].(map[string]any)
	if reaction["message_id"] != "wamid.target" || reaction["emoji"] != "👍" {
		t.Errorf("reaction = %v", reaction)
	}
}

func TestSendImageByMediaID(t *testing.T) {
	srv, payloads := graphStub(t)
	p := New(Options{Logger: testLogger()})

	res := p.SendImage(context.Background(), canonical.SendImage{
		To:      "15551234567",
		ImageID: "media-9",
		Caption: "hi",
	}, whatsappConfig(srv.URL))
	if !res.Success {
		t.Fatalf("send failed: %+v", res.Error)
	}

	image := (*payloads)[0]["image"].(map[string]any)
	if image["id"] != "media-9" {
		t.Errorf("image id = %v", image["id"])
	}
	if _, present := image["link"]; present {
		t.Error("link must be absent when sending by media id")
	}
	if image["caption"] != "hi" {
		t.Errorf("caption = %v", image["caption"])
	}
}
