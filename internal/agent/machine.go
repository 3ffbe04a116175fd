// Package agent implements the WhatsApp conversation engine: a per-phone
// state machine driving clock-in with location verification, checklist
// walkthroughs, incident reporting and post-shift feedback.
//
// Every inbound message follows the same pipeline: claim the provider
// message id (duplicates are dropped), acquire the per-phone lock, load the
// session, route to the handler registered for (state, event kind), then
// persist the session with a version compare-and-swap.
package agent

import (
	"context"
	"fmt"

	"mizan/internal/config"
	corepkg "mizan/internal/notifications/core"
	"mizan/internal/notifications/whatsapp"
	"mizan/internal/types"
)

// CloudAPI is the slice of the Cloud API client the engine needs: the send
// surface shared with the notification channel, plus media retrieval for
// photo verification and voice incident reports.
type CloudAPI interface {
	whatsapp.API
	FetchMediaURL(ctx context.Context, mediaID string) (string, error)
	DownloadMedia(ctx context.Context, mediaURL string) ([]byte, string, error)
}

// Transcriber converts a voice note to text. Nil means transcription is not
// configured and voice incident reports are declined with a typed-text ask.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

type handlerKey struct {
	state types.SessionState
	kind  EventKind
}

type flowContext struct {
	msg     Message
	session *types.Session
	staff   *types.Staff
	lang    string
	// to is the reply address: the sender phone as the provider reported it.
	to string
}

type handlerFunc func(ctx context.Context, fc *flowContext) error

// nopRecorder drops delivery log entries. Conversational replies are not
// notifications; they carry no notification id to audit under.
type nopRecorder struct{}

func (nopRecorder) Record(context.Context, *types.DeliveryLogEntry) {}

// Engine is the conversation state machine.
type Engine struct {
	sessions    types.SessionRepository
	processed   types.ProcessedMessageRepository
	progress    types.ChecklistProgressRepository
	staff       types.StaffDirectory
	shifts      types.ShiftOps
	wa          CloudAPI
	location    *whatsapp.LocationRequester
	dispatcher  corepkg.Dispatcher
	transcriber Transcriber
	locks       *KeyedLock
	clock       types.Clock
	logger      types.Logger

	handlers map[handlerKey]handlerFunc
}

// NewEngine wires the conversation engine. transcriber may be nil.
func NewEngine(
	repos types.RepositoryRegistry,
	wa CloudAPI,
	waCfg config.WhatsAppConfig,
	dispatcher corepkg.Dispatcher,
	transcriber Transcriber,
	clock types.Clock,
	logger types.Logger,
) *Engine {
	if clock == nil {
		clock = types.RealClock{}
	}
	e := &Engine{
		sessions:    repos.Sessions(),
		processed:   repos.ProcessedMessages(),
		progress:    repos.ChecklistProgress(),
		staff:       repos.Staff(),
		shifts:      repos.Shifts(),
		wa:          wa,
		location:    whatsapp.NewLocationRequester(wa, waCfg, clock),
		dispatcher:  dispatcher,
		transcriber: transcriber,
		locks:       NewKeyedLock(),
		clock:       clock,
		logger:      logger,
	}
	e.handlers = map[handlerKey]handlerFunc{
		{types.StateIdle, EventText}:   e.idleText,
		{types.StateIdle, EventButton}: e.idleButton,

		{types.StateAwaitingLocation, EventLocation}: e.locationReceived,

		{types.StateInChecklist, EventButton}:       e.checklistAnswer,
		{types.StateInChecklist, EventText}:         e.checklistTextAnswer,
		{types.StateChecklistFollowup, EventButton}: e.followupAnswer,
		{types.StateChecklistFollowup, EventText}:   e.followupText,
		{types.StateChecklistHelpText, EventText}:   e.helpTextReceived,
		{types.StateAwaitingTaskPhoto, EventImage}:  e.taskPhotoReceived,

		{types.StateAwaitingFeedback, EventText}: e.feedbackReceived,

		{types.StateAwaitingIncident, EventText}:  e.incidentTextReceived,
		{types.StateAwaitingIncident, EventAudio}: e.incidentAudioReceived,
	}
	return e
}

// HandleMessage processes one inbound message end to end. Returning nil
// means the message was consumed (including duplicates and unknown senders);
// an error means infrastructure failed and the message's effects may be
// incomplete.
func (e *Engine) HandleMessage(ctx context.Context, msg Message) error {
	phoneKey := types.NormalizePhone(msg.From)
	if phoneKey == "" || msg.WAMID == "" {
		return nil
	}

	claimed, err := e.processed.Claim(ctx, msg.WAMID, types.ChannelWhatsApp)
	if err != nil {
		return fmt.Errorf("HandleMessage: claiming message id: %w", err)
	}
	if !claimed {
		e.logger.Info("duplicate inbound message dropped", "wamid", msg.WAMID)
		return nil
	}

	unlock := e.locks.Lock(phoneKey)
	defer unlock()

	session, err := e.sessions.GetOrCreate(ctx, phoneKey)
	if err != nil {
		return fmt.Errorf("HandleMessage: loading session: %w", err)
	}

	staff, err := e.staff.FindByPhone(ctx, phoneKey)
	if err != nil {
		return fmt.Errorf("HandleMessage: resolving staff: %w", err)
	}
	if staff == nil {
		e.logger.Warn("inbound message from unregistered phone", "phone_key", phoneKey)
		e.reply(ctx, msg.From, text(langEN, msgUnknownUser))
		return nil
	}
	if session.UserID == nil {
		id := staff.ID
		session.UserID = &id
	}

	fc := &flowContext{
		msg:     msg,
		session: session,
		staff:   staff,
		lang:    e.languageFor(ctx, staff),
		to:      msg.From,
	}

	handler, ok := e.handlers[handlerKey{session.State, msg.Kind}]
	if !ok {
		handler = e.handleUnrecognized
	}
	if err := handler(ctx, fc); err != nil {
		// The user should not be left staring at silence because a
		// collaborator failed. Best effort; the error still propagates for
		// the webhook log.
		e.reply(ctx, fc.to, text(fc.lang, msgSomethingWrong))
		return fmt.Errorf("HandleMessage: state %s, event %s: %w", session.State, msg.Kind, err)
	}

	session.LastInteractionAt = e.clock.Now()
	if err := e.sessions.Save(ctx, session); err != nil {
		if appErr, ok := types.AsAppError(err); ok && appErr.Code == types.ErrCodeConflictConcurrent {
			// A concurrent worker for the same phone won the write. Its view
			// of the conversation is as valid as ours.
			e.logger.Warn("session save lost to concurrent update", "phone_key", phoneKey)
			return nil
		}
		return fmt.Errorf("HandleMessage: saving session: %w", err)
	}
	return nil
}

// reply sends a best-effort plain-text reply. Conversation replies are fire
// and forget; a failed reply is logged, never fatal to the transition.
func (e *Engine) reply(ctx context.Context, to, body string) {
	if _, err := e.wa.SendText(ctx, to, body); err != nil {
		e.logger.Error("failed to send reply", "to", types.NormalizePhone(to), "error", err.Error())
	}
}

// languageFor picks the reply language: the staff member's own setting wins,
// then the restaurant default, then English.
func (e *Engine) languageFor(ctx context.Context, staff *types.Staff) string {
	if staff.Language != "" {
		return staff.Language
	}
	restaurant, err := e.staff.Restaurant(ctx, staff.RestaurantID)
	if err != nil || restaurant == nil || restaurant.Language == "" {
		return langEN
	}
	return restaurant.Language
}

// idleButton routes the reply buttons shift reminders carry; acknowledgement
// taps on other old notification messages are absorbed.
func (e *Engine) idleButton(ctx context.Context, fc *flowContext) error {
	switch fc.msg.ButtonID {
	case btnClockInNow:
		return e.startClockIn(ctx, fc)
	case btnClockOutNow:
		return e.clockOut(ctx, fc)
	default:
		e.logger.Info("button tap in idle state ignored", "button_id", fc.msg.ButtonID)
		return nil
	}
}

// handleUnrecognized is the fallback for (state, event) pairs with no
// registered handler. It re-prompts for what the state is waiting on instead
// of dead-ending the conversation.
func (e *Engine) handleUnrecognized(ctx context.Context, fc *flowContext) error {
	switch fc.session.State {
	case types.StateAwaitingLocation:
		_, err := e.location.Request(ctx, fc.to, text(fc.lang, msgClockInLocation), "", nopRecorder{})
		if err != nil {
			return fmt.Errorf("handleUnrecognized: re-requesting location: %w", err)
		}
		return nil

	case types.StateAwaitingTaskPhoto:
		return e.repromptCurrentTask(ctx, fc)

	case types.StateInChecklist, types.StateChecklistFollowup:
		return e.repromptCurrentTask(ctx, fc)

	case types.StateAwaitingFeedback:
		e.reply(ctx, fc.to, text(fc.lang, msgFeedbackInvalid))
		return nil

	case types.StateAwaitingIncident:
		e.reply(ctx, fc.to, text(fc.lang, msgIncidentPrompt))
		return nil

	default:
		e.reply(ctx, fc.to, text(fc.lang, msgUnrecognized))
		return nil
	}
}
