package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	corepkg "mizan/internal/notifications/core"
	"mizan/internal/types"
)

// promptIncident opens the incident report flow.
func (e *Engine) promptIncident(ctx context.Context, fc *flowContext) error {
	now := e.clock.Now()
	fc.session.Context.IncidentPromptedAt = &now
	fc.session.State = types.StateAwaitingIncident
	e.reply(ctx, fc.to, text(fc.lang, msgIncidentPrompt))
	return nil
}

// incidentTextReceived files a typed incident description.
func (e *Engine) incidentTextReceived(ctx context.Context, fc *flowContext) error {
	description := strings.TrimSpace(fc.msg.Text)
	if description == "" {
		e.reply(ctx, fc.to, text(fc.lang, msgIncidentPrompt))
		return nil
	}
	return e.fileIncident(ctx, fc, description, false)
}

// incidentAudioReceived transcribes a voice note and files it. When
// transcription is not configured or fails, the user is asked to type the
// report instead; the session stays in awaiting_incident_text.
func (e *Engine) incidentAudioReceived(ctx context.Context, fc *flowContext) error {
	if e.transcriber == nil {
		e.reply(ctx, fc.to, text(fc.lang, msgVoiceFailed))
		return nil
	}

	mediaURL, err := e.wa.FetchMediaURL(ctx, fc.msg.MediaID)
	if err != nil {
		e.logger.Error("failed to resolve voice note media url", "media_id", fc.msg.MediaID, "error", err.Error())
		e.reply(ctx, fc.to, text(fc.lang, msgVoiceFailed))
		return nil
	}
	audio, _, err := e.wa.DownloadMedia(ctx, mediaURL)
	if err != nil {
		e.logger.Error("failed to download voice note", "media_id", fc.msg.MediaID, "error", err.Error())
		e.reply(ctx, fc.to, text(fc.lang, msgVoiceFailed))
		return nil
	}

	description, err := e.transcriber.Transcribe(ctx, audio, voiceFilename(fc.msg.MimeType))
	if err != nil || strings.TrimSpace(description) == "" {
		if err != nil {
			e.logger.Error("voice note transcription failed", "media_id", fc.msg.MediaID, "error", err.Error())
		}
		e.reply(ctx, fc.to, text(fc.lang, msgVoiceFailed))
		return nil
	}

	return e.fileIncident(ctx, fc, description, true)
}

// fileIncident creates the ticket, acknowledges the reporter and notifies
// the restaurant manager. The manager notification is best effort; a
// dispatch failure never loses the ticket.
func (e *Engine) fileIncident(ctx context.Context, fc *flowContext, description string, transcribed bool) error {
	kind, severity := inferIncident(description)
	now := e.clock.Now()

	id := uuid.NewString()
	ticket := fmt.Sprintf("INC-%s-%s", now.Format("20060102"), strings.ToUpper(id[:6]))

	inc := &types.Incident{
		ID:          id,
		TicketID:    ticket,
		ReporterID:  fc.staff.ID,
		Type:        kind,
		Severity:    severity,
		Description: description,
		Transcribed: transcribed,
	}
	if err := e.shifts.CreateIncident(ctx, inc); err != nil {
		return fmt.Errorf("fileIncident: creating incident: %w", err)
	}

	fc.session.Context.IncidentPromptedAt = nil
	fc.session.State = types.StateIdle
	e.reply(ctx, fc.to, text(fc.lang, msgIncidentAck, ticket))

	e.notifyManager(ctx, fc, inc)
	return nil
}

func (e *Engine) notifyManager(ctx context.Context, fc *flowContext, inc *types.Incident) {
	manager, err := e.staff.Manager(ctx, fc.staff.RestaurantID)
	if err != nil {
		e.logger.Error("failed to resolve manager for incident", "ticket_id", inc.TicketID, "error", err.Error())
		return
	}
	if manager == nil {
		e.logger.Warn("no manager configured for restaurant", "restaurant_id", fc.staff.RestaurantID, "ticket_id", inc.TicketID)
		return
	}

	senderID := fc.staff.ID
	target := corepkg.NewNotification{
		RecipientID: manager.ID,
		SenderID:    &senderID,
		Title:       fmt.Sprintf("[%s] %s incident %s", inc.Severity, inc.Type, inc.TicketID),
		Message:     fmt.Sprintf("%s reported: %s", fc.staff.FullName(), inc.Description),
		Type:        types.NotifIncident,
		Priority:    severityPriority(inc.Severity),
	}
	channels := []types.Channel{types.ChannelApp, types.ChannelWhatsApp, types.ChannelPush}

	// Critical incidents override the manager's channel preferences.
	override := inc.Severity == types.SeverityCritical

	if _, err := e.dispatcher.Dispatch(ctx, target, channels, override); err != nil {
		e.logger.Error("failed to notify manager of incident", "ticket_id", inc.TicketID, "error", err.Error())
	}
}

func severityPriority(s types.IncidentSeverity) types.NotificationPriority {
	switch s {
	case types.SeverityCritical:
		return types.PriorityUrgent
	case types.SeverityHigh:
		return types.PriorityHigh
	case types.SeverityLow:
		return types.PriorityLow
	default:
		return types.PriorityNormal
	}
}

func voiceFilename(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return "voice-note.mp3"
	case strings.Contains(mimeType, "mp4"), strings.Contains(mimeType, "m4a"):
		return "voice-note.m4a"
	case strings.Contains(mimeType, "amr"):
		return "voice-note.amr"
	default:
		return "voice-note.ogg"
	}
}
