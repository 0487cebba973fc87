package canonical

// Send inputs, one variant per message kind. Every variant carries a
// required destination; Validate reports the first missing required field
// so validation failures never reach a provider renderer.

// SendText is a canonical text send request.
type SendText struct {
	To               string `json:"to"`
	Message          string `json:"message"`
	ReplyToMessageID string `json:"replyToMessageId,omitempty"`
}

func (in SendText) Validate() *SendError {
	if in.To == "" {
		return &SendError{Message: "recipient is required", Code: CodeInvalidInput}
	}
	if in.Message == "" {
		return &SendError{Message: "message content is required", Code: CodeInvalidInput}
	}
	return nil
}

// SendImage is a canonical image send request. Either an image URL or a
// provider media ID must be supplied.
type SendImage struct {
	To               string `json:"to"`
	ImageURL         string `json:"imageUrl,omitempty"`
	ImageID          string `json:"imageId,omitempty"`
	Caption          string `json:"caption,omitempty"`
	ReplyToMessageID string `json:"replyToMessageId,omitempty"`
}

func (in SendImage) Validate() *SendError {
	if in.To == "" {
		return &SendError{Message: "recipient is required", Code: CodeInvalidInput}
	}
	if in.ImageURL == "" && in.ImageID == "" {
		return &SendError{Message: "either image URL or image ID is required", Code: CodeInvalidInput}
	}
	return nil
}

// SendSticker is a canonical sticker send request.
type SendSticker struct {
	To               string `json:"to"`
	StickerURL       string `json:"stickerUrl,omitempty"`
	StickerID        string `json:"stickerId,omitempty"`
	ReplyToMessageID string `json:"replyToMessageId,omitempty"`
}

func (in SendSticker) Validate() *SendError {
	if in.To == "" {
		return &SendError{Message: "recipient is required", Code: CodeInvalidInput}
	}
	if in.StickerURL == "" && in.StickerID == "" {
		return &SendError{Message: "either sticker URL or sticker ID is required", Code: CodeInvalidInput}
	}
	return nil
}

// SendReaction is a canonical emoji reaction to a previous message.
type SendReaction struct {
	To        string `json:"to"`
	Emoji     string `json:"emoji"`
	MessageID string `json:"messageId"`
}

func (in SendReaction) Validate() *SendError {
	if in.To == "" {
		return &SendError{Message: "recipient is required", Code: CodeInvalidInput}
	}
	if in.Emoji == "" {
		return &SendError{Message: "emoji is required for reactions", Code: CodeInvalidInput}
	}
	if in.MessageID == "" {
		return &SendError{Message: "message ID is required for reactions", Code: CodeInvalidInput}
	}
	return nil
}

// ListItem is one selectable row of a single-select list.
type ListItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ListSection groups list items under a title.
type ListSection struct {
	Title string     `json:"title"`
	Items []ListItem `json:"items"`
}

// SendList is a canonical single-select list send request.
type SendList struct {
	To               string        `json:"to"`
	HeaderText       string        `json:"headerText"`
	BodyText         string        `json:"bodyText"`
	FooterText       string        `json:"footerText,omitempty"`
	ButtonText       string        `json:"buttonText"`
	Sections         []ListSection `json:"sections"`
	ReplyToMessageID string        `json:"replyToMessageId,omitempty"`
}

func (in SendList) Validate() *SendError {
	if in.To == "" {
		return &SendError{Message: "recipient is required", Code: CodeInvalidInput}
	}
	if in.HeaderText == "" || in.BodyText == "" || in.ButtonText == "" {
		return &SendError{Message: "header text, body text, and button text are required", Code: CodeInvalidInput}
	}
	if len(in.Sections) == 0 {
		return &SendError{Message: "at least one section is required", Code: CodeInvalidInput}
	}
	for _, section := range in.Sections {
		if section.Title == "" || len(section.Items) == 0 {
			return &SendError{Message: "each section must have a title and at least one item", Code: CodeInvalidSection}
		}
		for _, item := range section.Items {
			if item.ID == "" || item.Title == "" {
				return &SendError{Message: "each list item must have an id and title", Code: CodeInvalidItem}
			}
		}
	}
	return nil
}
