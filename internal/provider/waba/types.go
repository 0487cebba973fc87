package waba

// Wire types for the WhatsApp Business Cloud API, reduced to the fields
// this adapter reads and writes.

// Message is one entry of value.messages[] in a webhook event.
type Message struct {
	From        string       `json:"from"`
	ID          string       `json:"id"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *Text        `json:"text,omitempty"`
	Audio       *Media       `json:"audio,omitempty"`
	Image       *Media       `json:"image,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
	Context     *MsgContext  `json:"context,omitempty"`
}

type Text struct {
	Body string `json:"body"`
}

type Media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Voice    bool   `json:"voice,omitempty"`
}

type Interactive struct {
	Type      string     `json:"type"`
	ListReply *ListReply `json:"list_reply,omitempty"`
}

type ListReply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// MsgContext is present when a message replies to or forwards another.
type MsgContext struct {
	From string `json:"from"`
	ID   string `json:"id"`
}

// WebhookPayload is the Cloud API webhook envelope
// (entry[].changes[].value.messages[]).
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Value Value  `json:"value"`
	Field string `json:"field"`
}

type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Messages         []Message `json:"messages"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// apiResponse is the Graph API response to a send call.
type apiResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// mediaLookup is the Graph API response to a media metadata request.
type mediaLookup struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}
