package evolution

import "encoding/base64"

// Wire types for the Evolution API bridge, reduced to the fields this
// adapter reads and writes.

// Message is the data.message object of a webhook event. The bridge has
// no type tag; the populated field is the discriminator.
type Message struct {
	Conversation *string       `json:"conversation,omitempty"`
	AudioMessage *AudioMessage `json:"audioMessage,omitempty"`
	ImageMessage *ImageMessage `json:"imageMessage,omitempty"`
	ListResponse *ListResponse `json:"listResponseMessage,omitempty"`
}

type AudioMessage struct {
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimetype"`
	Seconds  int    `json:"seconds,omitempty"`
	PTT      bool   `json:"ptt,omitempty"`
}

type ImageMessage struct {
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimetype"`
	Caption  string `json:"caption,omitempty"`
}

type ListResponse struct {
	Title             string `json:"title"`
	Description       string `json:"description,omitempty"`
	SingleSelectReply struct {
		SelectedRowID string `json:"selectedRowId"`
	} `json:"singleSelectReply"`
}

// WebhookPayload is the bridge's flat {event, data} envelope. Only
// messages.upsert events are consumed.
type WebhookPayload struct {
	Event    string `json:"event"`
	Instance string `json:"instance"`
	Data     Data   `json:"data"`
}

type Data struct {
	Key              Key      `json:"key"`
	Message          *Message `json:"message,omitempty"`
	MessageTimestamp int64    `json:"messageTimestamp,omitempty"`
	PushName         string   `json:"pushName,omitempty"`
	ContextInfo      *struct {
		StanzaID string `json:"stanzaId,omitempty"`
	} `json:"contextInfo,omitempty"`
}

type Key struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

// sendResponse is the bridge's response to a send call. Depending on the
// verb the key lands at the top level or under data.
type sendResponse struct {
	Key  *Key `json:"key,omitempty"`
	Data *struct {
		Key *Key `json:"key,omitempty"`
	} `json:"data,omitempty"`
	Message string     `json:"message,omitempty"`
	Error   *sendError `json:"error,omitempty"`
}

type sendError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// base64Response is the /chat/getBase64FromMediaMessage response.
type base64Response struct {
	MediaType string `json:"mediaType"`
	FileName  string `json:"fileName"`
	MimeType  string `json:"mimetype"`
	Base64    string `json:"base64"`
}

func (b *base64Response) decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(b.Base64)
}
