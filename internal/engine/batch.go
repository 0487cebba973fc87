package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"msgbridge/internal/canonical"
)

// BatchItem is one member of a batch send: a kind tag plus the kind's
// canonical fields, kept raw until dispatch so heterogeneous kinds can
// share one array.
type BatchItem struct {
	Kind string
	Raw  json.RawMessage
}

// UnmarshalJSON keeps the full item payload alongside its kind tag.
func (b *BatchItem) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	b.Kind = probe.Type
	b.Raw = append(b.Raw[:0], data...)
	return nil
}

// BatchItemResult reports the outcome of one batch member at its index.
type BatchItemResult struct {
	Index   int                   `json:"index"`
	Type    string                `json:"type"`
	Success bool                  `json:"success"`
	Data    *canonical.SendResult `json:"data,omitempty"`
	Error   *canonical.SendError  `json:"error,omitempty"`
}

// BatchResult is the aggregate outcome of a batch send. Success is false
// when any member failed.
type BatchResult struct {
	Success bool              `json:"success"`
	Results []BatchItemResult `json:"results"`
}

// SendBatch processes batch members strictly sequentially. One member's
// failure never cancels the rest; each index gets exactly one result.
func (e *Engine) SendBatch(ctx context.Context, items []BatchItem) BatchResult {
	out := BatchResult{Success: true, Results: make([]BatchItemResult, 0, len(items))}

	for i, item := range items {
		res := e.sendBatchItem(ctx, item)
		entry := BatchItemResult{Index: i, Type: item.Kind, Success: res.Success}
		if res.Success {
			entry.Data = &res
		} else {
			entry.Error = res.Error
			out.Success = false
		}
		out.Results = append(out.Results, entry)
	}

	return out
}

func (e *Engine) sendBatchItem(ctx context.Context, item BatchItem) canonical.SendResult {
	switch item.Kind {
	case "text":
		var in canonical.SendText
		if err := json.Unmarshal(item.Raw, &in); err != nil {
			return canonical.Failure(canonical.CodeInvalidInput, fmt.Sprintf("malformed text item: %v", err))
		}
		return e.SendText(ctx, in)
	case "image":
		var in canonical.SendImage
		if err := json.Unmarshal(item.Raw, &in); err != nil {
			return canonical.Failure(canonical.CodeInvalidInput, fmt.Sprintf("malformed image item: %v", err))
		}
		return e.SendImage(ctx, in)
	case "sticker":
		var in canonical.SendSticker
		if err := json.Unmarshal(item.Raw, &in); err != nil {
			return canonical.Failure(canonical.CodeInvalidInput, fmt.Sprintf("malformed sticker item: %v", err))
		}
		return e.SendSticker(ctx, in)
	case "reaction":
		var in canonical.SendReaction
		if err := json.Unmarshal(item.Raw, &in); err != nil {
			return canonical.Failure(canonical.CodeInvalidInput, fmt.Sprintf("malformed reaction item: %v", err))
		}
		return e.SendReaction(ctx, in)
	case "list":
		var in canonical.SendList
		if err := json.Unmarshal(item.Raw, &in); err != nil {
			return canonical.Failure(canonical.CodeInvalidInput, fmt.Sprintf("malformed list item: %v", err))
		}
		return e.SendList(ctx, in)
	default:
		return canonical.Failure(canonical.CodeInvalidInput, fmt.Sprintf("unknown message type: %q", item.Kind))
	}
}
