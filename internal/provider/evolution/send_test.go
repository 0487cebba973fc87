package evolution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"msgbridge/internal/canonical"
	"msgbridge/internal/provider"
)

// bridgeStub records the last verb and payload and answers with a fixed
// message key.
func bridgeStub(t *testing.T) (*httptest.Server, *string, *map[string]any) {
	t.Helper()
	var verb string
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("apikey"); got != "test-key" {
			t.Errorf("apikey header = %q", got)
		}
		// /message/{verb}/my-instance
		parts := r.URL.Path
		verb = parts[len("/message/") : len(parts)-len("/my-instance")]
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"key": map[string]any{"remoteJid": "x", "fromMe": true, "id": "3EB0SENT"},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &verb, &payload
}

func TestSendTextSuccess(t *testing.T) {
	srv, verb, payload := bridgeStub(t)
	p := New(Options{Logger: testLogger()})

	res := p.SendText(context.Background(), canonical.SendText{
		To:      "5511999999999",
		Message: "hello",
	}, evolutionConfig(srv.URL))

	if !res.Success {
		t.Fatalf("send failed: %+v", res.Error)
	}
	if res.MessageID != "3EB0SENT" {
		t.Errorf("MessageID = %q", res.MessageID)
	}
	if *verb != "sendText" {
		t.Errorf("verb = %q, want sendText", *verb)
	}

	got := *payload
	if got["number"] != "5511999999999" || got["text"] != "hello" {
		t.Errorf("payload = %+v", got)
	}
	if got["delay"] != float64(500) {
		t.Errorf("delay = %v, want 500", got["delay"])
	}
	if got["linkPreview"] != false || got["mentionsEveryOne"] != false {
		t.Errorf("flags = %+v", got)
	}
}

func TestSendTextQuotedReply(t *testing.T) {
	srv, _, payload := bridgeStub(t)
	p := New(Options{Logger: testLogger()})

	res := p.SendText(context.Background(), canonical.SendText{
		To:               "5511999999999",
		Message:          "hello",
		ReplyToMessageID: "3EB0ORIGINAL",
	}, evolutionConfig(srv.URL))
	if !res.Success {
		t.Fatalf("send failed: %+v", res.Error)
	}

	quoted, ok := (*payload)["quoted"].(map[string]any)
	if !ok {
		t.Fatal("quoted block missing")
	}
	key := quoted["key"].(map[string]any)
	if key["id"] != "3EB0ORIGINAL" {
		t.Errorf("quoted key = %v", key)
	}
}

func TestSendCredentialChecksInOrder(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	p := New(Options{Logger: testLogger()})
	in := canonical.SendText{To: "5511999999999", Message: "hi"}

	tests := []struct {
		name     string
		creds    provider.EvolutionCredentials
		wantCode string
	}{
		{"missing api key", provider.EvolutionCredentials{APIURL: srv.URL, InstanceID: "i"}, canonical.CodeMissingAPIKey},
		{"missing api url", provider.EvolutionCredentials{APIKey: "k", InstanceID: "i"}, canonical.CodeMissingAPIURL},
		{"missing instance", provider.EvolutionCredentials{APIKey: "k", APIURL: srv.URL}, canonical.CodeMissingInstanceID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := tt.creds
			cfg := provider.Config{Selected: provider.KindEvolution, Evolution: &creds}
			res := p.SendText(context.Background(), in, cfg)
			if res.Success {
				t.Fatal("send must fail")
			}
			if res.Error.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", res.Error.Code, tt.wantCode)
			}
		})
	}

	t.Run("wrong provider variant", func(t *testing.T) {
		res := p.SendText(context.Background(), in, provider.Config{Selected: provider.KindWhatsApp})
		if res.Success || res.Error.Code != canonical.CodeInvalidConfig {
			t.Errorf("result = %+v, want INVALID_CONFIG", res)
		}
	})

	if calls != 0 {
		t.Errorf("credential failures must not reach the network, saw %d calls", calls)
	}
}

func TestSendReactionPayload(t *testing.T) {
	srv, verb, payload := bridgeStub(t)
	p := New(Options{Logger: testLogger()})

	res := p.SendReaction(context.Background(), canonical.SendReaction{
		To:        "5511999999999",
		Emoji:     "🔥",
		MessageID: "3EB0TARGET",
	}, evolutionConfig(srv.URL))
	if !res.Success {
		t.Fatalf("send failed: %+v", res.Error)
	}
	if *verb != "sendReaction" {
		t.Errorf("verb = %q", *verb)
	}

	key := (*payload)["key"].(map[string]any)
	if key["remoteJid"] != "5511999999999@s.whatsapp.net" {
		t.Errorf("remoteJid = %v", key["remoteJid"])
	}
	if key["fromMe"] != true || key["id"] != "3EB0TARGET" {
		t.Errorf("key = %v", key)
	}
	if (*payload)["reaction"] != "🔥" {
		t.Errorf("reaction = %v", (*payload)["reaction"])
	}
}

func TestSendListRendersPoll(t *testing.T) {
	srv, verb, payload := bridgeStub(t)
	p := New(Options{Logger: testLogger()})

	res := p.SendList(context.Background(), canonical.SendList{
		To:         "5511999999999",
		HeaderText: "Menu",
		BodyText:   "Pick one",
		FooterText: "Closes at 10",
		ButtonText: "Open",
		Sections: []canonical.ListSection{
			{Title: "Mains", Items: []canonical.ListItem{
				{ID: "m1", Title: "Pizza", Description: "ignored in polls"},
				{ID: "m2", Title: "Pasta"},
			}},
			{Title: "Drinks", Items: []canonical.ListItem{
				{ID: "d1", Title: "Juice"},
			}},
		},
	}, evolutionConfig(srv.URL))
	if !res.Success {
		t.Fatalf("send failed: %+v", res.Error)
	}
	if *verb != "sendPoll" {
		t.Errorf("verb = %q, want sendPoll", *verb)
	}

	got := *payload
	if got["name"] != "Menu\n\nPick one\n\nCloses at 10" {
		t.Errorf("poll name = %q", got["name"])
	}
	if got["selectableCount"] != float64(1) {
		t.Errorf("selectableCount = %v", got["selectableCount"])
	}
	values := got["values"].([]any)
	if len(values) != 3 || values[0] != "Pizza" || values[2] != "Juice" {
		t.Errorf("values = %v", values)
	}
}

func TestSendMapsBridgeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "number not on whatsapp", "code": 400},
		})
	}))
	defer srv.Close()

	p := New(Options{Logger: testLogger()})
	res := p.SendText(context.Background(), canonical.SendText{To: "5511999999999", Message: "hi"}, evolutionConfig(srv.URL))

	if res.Success {
		t.Fatal("send must fail")
	}
	if res.Error.Message != "number not on whatsapp" || res.Error.Code != "400" {
		t.Errorf("error = %+v", res.Error)
	}
}

func TestSendMessageIDFromNestedKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"key": map[string]any{"id": "3EB0NESTED"}},
		})
	}))
	defer srv.Close()

	p := New(Options{Logger: testLogger()})
	res := p.SendText(context.Background(), canonical.SendText{To: "5511999999999", Message: "hi"}, evolutionConfig(srv.URL))
	if !res.Success {
		t.Fatalf("send failed: %+v", res.Error)
	}
	if res.MessageID != "3EB0NESTED" {
		t.Errorf("MessageID = %q, want nested key id", res.MessageID)
	}
}

func TestSendImageByURL(t *testing.T) {
	srv, verb, payload := bridgeStub(t)
	p := New(Options{Logger: testLogger()})

	res := p.SendImage(context.Background(), canonical.SendImage{
		To:       "5511999999999",
		ImageURL: "https://cdn.example/img.jpg",
		Caption:  "look",
	}, evolutionConfig(srv.URL))
	if !res.Success {
		t.Fatalf("send failed: %+v", res.Error)
	}
	if *verb != "sendMedia" {
		t.Errorf("verb = %q", *verb)
	}

	got := *payload
	if got["mediatype"] != "image" || got["media"] != "https://cdn.example/img.jpg" {
		t.Errorf("payload = %+v", got)
	}
	if got["caption"] != "look" {
		t.Errorf("caption = %v", got["caption"])
	}
}
