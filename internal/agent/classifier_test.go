package agent

import (
	"testing"
	"time"

	"mizan/internal/types"
)

const webhookBatch = `{
  "object": "whatsapp_business_account",
  "entry": [
    {
      "id": "WABA_ID",
      "changes": [
        {
          "field": "messages",
          "value": {
            "messaging_product": "whatsapp",
            "metadata": {"display_phone_number": "212500000000", "phone_number_id": "PHONE_ID"},
            "contacts": [{"profile": {"name": "Amina"}, "wa_id": "212600000001"}],
            "messages": [
              {
                "from": "212600000001",
                "id": "wamid.text-1",
                "timestamp": "1756100000",
                "type": "text",
                "text": {"body": "clock in"}
              },
              {
                "from": "212600000001",
                "id": "wamid.button-1",
                "timestamp": "1756100010",
                "type": "interactive",
                "interactive": {
                  "type": "button_reply",
                  "button_reply": {"id": "task_yes:task-1", "title": "Yes, done"}
                }
              },
              {
                "from": "212600000001",
                "id": "wamid.loc-1",
                "timestamp": "1756100020",
                "type": "location",
                "location": {"latitude": 33.5731, "longitude": -7.5898}
              },
              {
                "from": "212600000001",
                "id": "wamid.audio-1",
                "timestamp": "1756100030",
                "type": "audio",
                "audio": {"id": "media-9", "mime_type": "audio/ogg; codecs=opus", "voice": true}
              },
              {
                "from": "212600000001",
                "id": "wamid.sticker-1",
                "timestamp": "1756100040",
                "type": "sticker"
              },
              {
                "from": "",
                "id": "wamid.broken-1",
                "timestamp": "1756100050",
                "type": "text",
                "text": {"body": "missing sender"}
              }
            ],
            "statuses": [
              {
                "id": "wamid.out-1",
                "status": "delivered",
                "timestamp": "1756100060",
                "recipient_id": "212600000001"
              },
              {
                "id": "wamid.out-1",
                "status": "bogus",
                "timestamp": "1756100070",
                "recipient_id": "212600000001"
              }
            ]
          }
        }
      ]
    }
  ]
}`

func TestParseWebhook(t *testing.T) {
	events, err := ParseWebhook([]byte(webhookBatch))
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}

	// The sticker and the sender-less message are dropped; the rest survive.
	if got := len(events.Messages); got != 4 {
		t.Fatalf("expected 4 messages, got %d", got)
	}

	text := events.Messages[0]
	if text.Kind != EventText || text.Text != "clock in" || text.WAMID != "wamid.text-1" {
		t.Errorf("unexpected text message: %+v", text)
	}
	if text.From != "212600000001" {
		t.Errorf("unexpected sender: %s", text.From)
	}
	if want := time.Unix(1756100000, 0).UTC(); !text.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", text.Timestamp, want)
	}

	button := events.Messages[1]
	if button.Kind != EventButton || button.ButtonID != "task_yes:task-1" || button.Text != "Yes, done" {
		t.Errorf("unexpected button message: %+v", button)
	}

	loc := events.Messages[2]
	if loc.Kind != EventLocation || loc.Latitude != 33.5731 || loc.Longitude != -7.5898 {
		t.Errorf("unexpected location message: %+v", loc)
	}

	audio := events.Messages[3]
	if audio.Kind != EventAudio || audio.MediaID != "media-9" {
		t.Errorf("unexpected audio message: %+v", audio)
	}

	// The unknown "bogus" status is dropped.
	if got := len(events.Statuses); got != 1 {
		t.Fatalf("expected 1 status, got %d", got)
	}
	status := events.Statuses[0]
	if status.ExternalID != "wamid.out-1" || status.Status != types.DeliveryDelivered {
		t.Errorf("unexpected status callback: %+v", status)
	}
	if status.Channel != types.ChannelWhatsApp {
		t.Errorf("status channel = %s, want whatsapp", status.Channel)
	}
}

func TestParseWebhookTemplateQuickReply(t *testing.T) {
	payload := `{
	  "entry": [{"changes": [{"value": {"messages": [{
	    "from": "212600000001",
	    "id": "wamid.qr-1",
	    "timestamp": "1756100000",
	    "type": "button",
	    "button": {"text": "OK", "payload": "ack_n-1"}
	  }]}}]}]
	}`

	events, err := ParseWebhook([]byte(payload))
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if len(events.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(events.Messages))
	}
	msg := events.Messages[0]
	if msg.Kind != EventButton || msg.ButtonID != "ack_n-1" || msg.Text != "OK" {
		t.Errorf("unexpected quick reply: %+v", msg)
	}
}

func TestParseWebhookFlowReply(t *testing.T) {
	payload := `{
	  "entry": [{"changes": [{"value": {"messages": [{
	    "from": "212600000001",
	    "id": "wamid.flow-1",
	    "timestamp": "1756100000",
	    "type": "interactive",
	    "interactive": {
	      "type": "nfm_reply",
	      "nfm_reply": {"name": "flow", "body": "Sent", "response_json": "{\"flow_token\":\"tok-1\"}"}
	    }
	  }]}}]}]
	}`

	events, err := ParseWebhook([]byte(payload))
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if len(events.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(events.Messages))
	}
	msg := events.Messages[0]
	if msg.Kind != EventFlow || msg.Text != "Sent" {
		t.Errorf("unexpected flow reply: %+v", msg)
	}
	if msg.FlowResponse != `{"flow_token":"tok-1"}` {
		t.Errorf("flow response = %s", msg.FlowResponse)
	}
}

func TestParseWebhookMalformedBody(t *testing.T) {
	if _, err := ParseWebhook([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed body")
	}
}

func TestParseIntent(t *testing.T) {
	tests := []struct {
		body string
		want intent
	}{
		{"clock in", intentClockIn},
		{"Clock In please", intentClockIn},
		{"pointage", intentClockIn},
		{"دخول", intentClockIn},
		{"clock out", intentClockOut},
		{"pointage sortie", intentClockOut},
		{"خروج", intentClockOut},
		{"checklist", intentChecklist},
		{"مهام", intentChecklist},
		{"report an incident", intentIncident},
		{"signaler un problème", intentIncident},
		{"بلاغ", intentIncident},
		{"hello there", intentNone},
		{"", intentNone},
	}

	for _, tt := range tests {
		if got := parseIntent(tt.body); got != tt.want {
			t.Errorf("parseIntent(%q) = %d, want %d", tt.body, got, tt.want)
		}
	}
}
