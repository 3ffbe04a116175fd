package types

import (
	"time"
)

// Session is the per-phone conversational state for the WhatsApp engine.
// There is at most one Session per PhoneKey. Sessions are created lazily on
// the first inbound event for a phone and are never hard-deleted; a reset
// returns the state to idle and clears the context.
type Session struct {
	ID        string       `json:"id" db:"id"`
	PhoneKey  string       `json:"phone_key" db:"phone_key"` // E.164 digits only, unique
	UserID    *string      `json:"user_id,omitempty" db:"user_id"`
	State     SessionState `json:"state" db:"state"`
	Context   SessionContext `json:"context" db:"context"`

	// Version backs optimistic concurrency on Save. It is incremented on
	// every successful write; a stale write fails with
	// conflict_concurrent_modification.
	Version int `json:"-" db:"version"`

	LastInteractionAt time.Time `json:"last_interaction_at" db:"last_interaction_at"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// SessionContext is the structured conversational context stored as JSONB.
// Fields are pointers/omitempty so a reset serializes to an empty object.
type SessionContext struct {
	ActiveShiftID          string            `json:"active_shift_id,omitempty"`
	OpenClockEventID       string            `json:"open_clock_event_id,omitempty"`
	Checklist              *ChecklistContext `json:"checklist,omitempty"`
	PendingFeedbackShiftID string            `json:"pending_feedback_shift_id,omitempty"`
	IncidentPromptedAt     *time.Time        `json:"incident_prompted_at,omitempty"`
}

// ChecklistContext tracks an in-flight checklist walkthrough.
type ChecklistContext struct {
	ProgressID    string   `json:"progress_id"`
	ShiftID       string   `json:"shift_id"`
	TaskIDs       []string `json:"task_ids"`
	CurrentTaskID string   `json:"current_task_id"`

	// AwaitingPhotoTaskID is set while a photo-required task waits for an
	// ImageMessage as verification evidence.
	AwaitingPhotoTaskID string `json:"awaiting_verification_for_task_id,omitempty"`

	// FollowupTaskID is set while a "no" answer is awaiting the need-help /
	// skip decision or the free-text help note.
	FollowupTaskID string `json:"followup_task_id,omitempty"`
}

// ChecklistProgress records a checklist walkthrough for a (shift, staff)
// pair. There is at most one active progress per pair.
type ChecklistProgress struct {
	ID            string            `json:"id" db:"id"`
	ShiftID       string            `json:"shift_id" db:"shift_id"`
	StaffID       string            `json:"staff_id" db:"staff_id"`
	Channel       Channel           `json:"channel" db:"channel"`
	TaskIDs       []string          `json:"task_ids" db:"task_ids"`
	CurrentTaskID string            `json:"current_task_id" db:"current_task_id"`
	Responses     map[string]string `json:"responses" db:"responses"`
	Status        ProgressStatus    `json:"status" db:"status"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
}

// Notification is a logical notification to a recipient. Exactly one row
// exists per delivery request: dispatchers decorate an existing row with
// delivery results rather than creating a duplicate when the row was created
// upstream (announcements, scheduled sends).
type Notification struct {
	ID          string               `json:"id" db:"id"`
	RecipientID string               `json:"recipient_id" db:"recipient_id"`
	SenderID    *string              `json:"sender_id,omitempty" db:"sender_id"`
	Title       string               `json:"title" db:"title"`
	Message     string               `json:"message" db:"message"`
	Type        NotificationType     `json:"notification_type" db:"notification_type"`
	Priority    NotificationPriority `json:"priority" db:"priority"`

	ChannelsSent   ChannelList       `json:"channels_sent" db:"channels_sent"`
	DeliveryStatus DeliveryStatusMap `json:"delivery_status" db:"delivery_status"`

	ReadAt    *time.Time `json:"read_at,omitempty" db:"read_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// ChannelList is the set of channels that succeeded for a notification,
// stored as JSONB.
type ChannelList []Channel

// ChannelDelivery is the per-channel terminal outcome recorded on the
// Notification after fan-out completes.
type ChannelDelivery struct {
	Status     DeliveryStatus `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	ExternalID string         `json:"external_id,omitempty"`
}

// DeliveryStatusMap maps channel -> terminal delivery outcome, stored as JSONB.
type DeliveryStatusMap map[Channel]ChannelDelivery

// DeliveryLogEntry is one outbound delivery attempt on one channel.
// The log is append-only: retries create new rows. The only mutation after
// creation is the monotonic status transition applied when a provider
// callback arrives for the same ExternalID.
type DeliveryLogEntry struct {
	ID               string         `json:"id" db:"id"`
	NotificationID   string         `json:"notification_id" db:"notification_id"`
	Channel          Channel        `json:"channel" db:"channel"`
	RecipientAddress string         `json:"recipient_address" db:"recipient_address"`
	Status           DeliveryStatus `json:"status" db:"status"`
	ExternalID       string         `json:"external_id,omitempty" db:"external_id"`
	ResponseData     ResponseData   `json:"response_data,omitempty" db:"response_data"`
	ErrorMessage     string         `json:"error_message,omitempty" db:"error_message"`
	SentAt           time.Time      `json:"sent_at" db:"sent_at"`
	DeliveredAt      *time.Time     `json:"delivered_at,omitempty" db:"delivered_at"`
}

// ResponseData is the raw provider response captured for audit, stored as JSONB.
type ResponseData map[string]any

// ProcessedMessage records an inbound provider message id that has been
// claimed for processing. Write-once; the unique constraint on
// ExternalMessageID makes Claim atomic under concurrent webhook retries.
type ProcessedMessage struct {
	ExternalMessageID string    `json:"external_message_id" db:"external_message_id"`
	Channel           Channel   `json:"channel" db:"channel"`
	ProcessedAt       time.Time `json:"processed_at" db:"processed_at"`
}

// DeviceToken is a registered push token for a user.
type DeviceToken struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Token     string    `json:"token" db:"token"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ---------------------------------------------------------------------------
// Collaborator views. These entities are owned by the staff/scheduling
// subsystems; the messaging engine reads and writes them only through the
// narrow repository interfaces in interfaces.go.
// ---------------------------------------------------------------------------

// Staff is the projection of a user needed by the conversation engine.
type Staff struct {
	ID           string  `json:"id" db:"id"`
	FirstName    string  `json:"first_name" db:"first_name"`
	LastName     string  `json:"last_name" db:"last_name"`
	Email        string  `json:"email" db:"email"`
	Phone        string  `json:"phone" db:"phone"`
	Role         string  `json:"role" db:"role"`
	RestaurantID string  `json:"restaurant_id" db:"restaurant_id"`
	Language     string  `json:"language" db:"language"` // "en", "fr", "ar"
}

// FullName returns the display name for outbound messages.
func (s *Staff) FullName() string {
	if s.FirstName == "" && s.LastName == "" {
		return s.Email
	}
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// NotificationPreferences gates the whatsapp/email channels per user.
// A missing row defaults to all channels enabled.
type NotificationPreferences struct {
	WhatsAppEnabled bool `json:"whatsapp_enabled"`
	EmailEnabled    bool `json:"email_enabled"`
	PushEnabled     bool `json:"push_enabled"`
}

// Restaurant carries the geofence and language configuration.
type Restaurant struct {
	ID        string   `json:"id" db:"id"`
	Name      string   `json:"name" db:"name"`
	Latitude  *float64 `json:"latitude" db:"latitude"`
	Longitude *float64 `json:"longitude" db:"longitude"`
	// RadiusMeters is the geofence radius; zero means "not configured"
	// and clock-in location checks pass with a warning.
	RadiusMeters float64 `json:"radius_meters" db:"radius_meters"`
	Language     string  `json:"language" db:"language"`
	ManagerID    *string `json:"manager_id,omitempty" db:"manager_id"`
}

// GeofenceConfigured reports whether the restaurant has coordinates set.
func (r *Restaurant) GeofenceConfigured() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Shift is the projection of an assigned shift needed by the engine.
type Shift struct {
	ID           string    `json:"id" db:"id"`
	StaffID      string    `json:"staff_id" db:"staff_id"`
	RestaurantID string    `json:"restaurant_id" db:"restaurant_id"`
	Role         string    `json:"role" db:"role"`
	StartTime    time.Time `json:"start_time" db:"start_time"`
	EndTime      time.Time `json:"end_time" db:"end_time"`
}

// Ended reports whether the shift end time has passed at now.
func (s *Shift) Ended(now time.Time) bool {
	return now.After(s.EndTime)
}

// ShiftTask is one checklist task assigned to a shift.
type ShiftTask struct {
	ID          string       `json:"id" db:"id"`
	ShiftID     string       `json:"shift_id" db:"shift_id"`
	Title       string       `json:"title" db:"title"`
	Description string       `json:"description" db:"description"`
	Priority    TaskPriority `json:"priority" db:"priority"`
	Status      TaskStatus   `json:"status" db:"status"`

	// PhotoRequired tasks are completed by submitting an ImageMessage
	// rather than a yes/no answer.
	PhotoRequired bool `json:"photo_required" db:"photo_required"`

	Notes     string    `json:"notes" db:"notes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ClockEvent is a single clock-in or clock-out record.
type ClockEvent struct {
	ID        string     `json:"id" db:"id"`
	StaffID   string     `json:"staff_id" db:"staff_id"`
	ShiftID   string     `json:"shift_id" db:"shift_id"`
	Kind      ClockKind  `json:"kind" db:"kind"`
	At        time.Time  `json:"at" db:"at"`
	Latitude  float64    `json:"latitude" db:"latitude"`
	Longitude float64    `json:"longitude" db:"longitude"`
	PairID    *string    `json:"pair_id,omitempty" db:"pair_id"` // clock-out references its clock-in
}

// Incident is a staff-reported incident ticket.
type Incident struct {
	ID          string           `json:"id" db:"id"`
	TicketID    string           `json:"ticket_id" db:"ticket_id"`
	ReporterID  string           `json:"reporter_id" db:"reporter_id"`
	Type        IncidentType     `json:"incident_type" db:"incident_type"`
	Severity    IncidentSeverity `json:"severity" db:"severity"`
	Description string           `json:"description" db:"description"`
	// Transcribed marks descriptions produced from a voice note.
	Transcribed bool      `json:"transcribed" db:"transcribed"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ShiftReview is the 1-5 post-shift rating collected over WhatsApp.
type ShiftReview struct {
	ID        string    `json:"id" db:"id"`
	ShiftID   string    `json:"shift_id" db:"shift_id"`
	StaffID   string    `json:"staff_id" db:"staff_id"`
	Rating    int       `json:"rating" db:"rating"` // 1..5
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TaskVerificationRecord stores photo evidence for a verified task.
type TaskVerificationRecord struct {
	ID        string    `json:"id" db:"id"`
	TaskID    string    `json:"task_id" db:"task_id"`
	MediaID   string    `json:"media_id" db:"media_id"`
	MimeType  string    `json:"mime_type" db:"mime_type"`
	Caption   string    `json:"caption" db:"caption"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
