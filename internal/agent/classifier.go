package agent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	corepkg "mizan/internal/notifications/core"
	"mizan/internal/types"
)

// WebhookEvents is the normalized content of one webhook POST: user messages
// for the conversation engine plus delivery receipts for the reconciler.
type WebhookEvents struct {
	Messages []Message
	Statuses []corepkg.StatusCallback
}

// Provider webhook envelope. Only the fields the engine consumes are mapped;
// everything else passes through json.Unmarshal unread.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string       `json:"field"`
			Value webhookValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookValue struct {
	Messages []providerMessage `json:"messages"`
	Statuses []providerStatus  `json:"statuses"`
}

type providerMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`

	Text *struct {
		Body string `json:"body"`
	} `json:"text"`

	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
		NFMReply *struct {
			Name         string `json:"name"`
			Body         string `json:"body"`
			ResponseJSON string `json:"response_json"`
		} `json:"nfm_reply"`
	} `json:"interactive"`

	// Button is the quick-reply variant templates produce.
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button"`

	Location *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`

	Image *struct {
		ID       string `json:"id"`
		MimeType string `json:"mime_type"`
		Caption  string `json:"caption"`
	} `json:"image"`

	Audio *struct {
		ID       string `json:"id"`
		MimeType string `json:"mime_type"`
		Voice    bool   `json:"voice"`
	} `json:"audio"`
}

type providerStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// ParseWebhook decodes a webhook POST body. Only a body that fails to parse
// at the top level is an error; individual entries that are malformed or of
// an unsupported type are dropped so one bad entry cannot block the rest of
// the batch (the provider will not redeliver a batch we acknowledged).
func ParseWebhook(body []byte) (*WebhookEvents, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("ParseWebhook: decoding payload: %w", err)
	}

	events := &WebhookEvents{}
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, pm := range change.Value.Messages {
				if msg, ok := normalizeMessage(pm); ok {
					events.Messages = append(events.Messages, msg)
				}
			}
			for _, ps := range change.Value.Statuses {
				if cb, ok := normalizeStatus(ps); ok {
					events.Statuses = append(events.Statuses, cb)
				}
			}
		}
	}
	return events, nil
}

func normalizeMessage(pm providerMessage) (Message, bool) {
	if pm.ID == "" || pm.From == "" {
		return Message{}, false
	}

	msg := Message{
		WAMID:     pm.ID,
		From:      pm.From,
		Timestamp: parseUnixSeconds(pm.Timestamp),
	}

	switch pm.Type {
	case "text":
		if pm.Text == nil {
			return Message{}, false
		}
		msg.Kind = EventText
		msg.Text = pm.Text.Body

	case "interactive":
		if pm.Interactive == nil {
			return Message{}, false
		}
		msg.Kind = EventButton
		switch {
		case pm.Interactive.ButtonReply != nil:
			msg.ButtonID = pm.Interactive.ButtonReply.ID
			msg.Text = pm.Interactive.ButtonReply.Title
		case pm.Interactive.ListReply != nil:
			msg.ButtonID = pm.Interactive.ListReply.ID
			msg.Text = pm.Interactive.ListReply.Title
		case pm.Interactive.NFMReply != nil:
			msg.Kind = EventFlow
			msg.Text = pm.Interactive.NFMReply.Body
			msg.FlowResponse = pm.Interactive.NFMReply.ResponseJSON
		default:
			return Message{}, false
		}

	case "button":
		if pm.Button == nil {
			return Message{}, false
		}
		msg.Kind = EventButton
		msg.ButtonID = pm.Button.Payload
		msg.Text = pm.Button.Text

	case "location":
		if pm.Location == nil {
			return Message{}, false
		}
		msg.Kind = EventLocation
		msg.Latitude = pm.Location.Latitude
		msg.Longitude = pm.Location.Longitude

	case "image":
		if pm.Image == nil {
			return Message{}, false
		}
		msg.Kind = EventImage
		msg.MediaID = pm.Image.ID
		msg.MimeType = pm.Image.MimeType
		msg.Caption = pm.Image.Caption

	case "audio":
		if pm.Audio == nil {
			return Message{}, false
		}
		msg.Kind = EventAudio
		msg.MediaID = pm.Audio.ID
		msg.MimeType = pm.Audio.MimeType

	default:
		// Stickers, reactions, contacts, system messages: nothing to do.
		return Message{}, false
	}

	return msg, true
}

// providerStatusMap translates the provider's status strings to the delivery
// lifecycle. Unknown strings are dropped rather than guessed at.
var providerStatusMap = map[string]types.DeliveryStatus{
	"sent":      types.DeliverySent,
	"delivered": types.DeliveryDelivered,
	"read":      types.DeliveryRead,
	"failed":    types.DeliveryFailed,
}

func normalizeStatus(ps providerStatus) (corepkg.StatusCallback, bool) {
	status, ok := providerStatusMap[ps.Status]
	if !ok || ps.ID == "" {
		return corepkg.StatusCallback{}, false
	}
	return corepkg.StatusCallback{
		ExternalID: ps.ID,
		Channel:    types.ChannelWhatsApp,
		Status:     status,
		Timestamp:  parseUnixSeconds(ps.Timestamp),
	}, true
}

func parseUnixSeconds(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}
