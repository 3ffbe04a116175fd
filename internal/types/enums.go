package types

// SessionState is the conversational state of a WhatsApp session.
type SessionState string

const (
	StateIdle              SessionState = "idle"
	StateAwaitingLocation  SessionState = "awaiting_clock_in_location"
	StateInChecklist       SessionState = "in_checklist"
	StateChecklistFollowup SessionState = "checklist_followup"
	StateChecklistHelpText SessionState = "checklist_help_text"
	StateAwaitingTaskPhoto SessionState = "awaiting_task_photo"
	StateAwaitingFeedback  SessionState = "awaiting_feedback"
	StateAwaitingIncident  SessionState = "awaiting_incident_text"
)

// Channel identifies a notification delivery medium.
type Channel string

const (
	ChannelApp      Channel = "app"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelPush     Channel = "push"
	ChannelEmail    Channel = "email"
)

// NotificationType categorizes the business meaning of a notification.
type NotificationType string

const (
	NotifShiftAssigned  NotificationType = "SHIFT_ASSIGNED"
	NotifShiftUpdated   NotificationType = "SHIFT_UPDATED"
	NotifShiftCancelled NotificationType = "SHIFT_CANCELLED"
	NotifAnnouncement   NotificationType = "ANNOUNCEMENT"
	NotifBreakRequest   NotificationType = "BREAK_REQUEST"
	NotifEmergency      NotificationType = "EMERGENCY"
	NotifIncident       NotificationType = "INCIDENT"
	NotifOther          NotificationType = "OTHER"
)

// NotificationPriority orders notifications for display and queue routing.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "LOW"
	PriorityNormal NotificationPriority = "NORMAL"
	PriorityHigh   NotificationPriority = "HIGH"
	PriorityUrgent NotificationPriority = "URGENT"
)

// DeliveryStatus is the lifecycle state of a single delivery attempt.
// Statuses are ordered: a delivery may only move forward through the
// non-terminal ranks, and the terminal states are never overwritten.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliverySent      DeliveryStatus = "SENT"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryRead      DeliveryStatus = "READ"
	DeliveryFailed    DeliveryStatus = "FAILED"
	DeliveryBounced   DeliveryStatus = "BOUNCED"
)

// deliveryStatusRank backs the monotonic transition rule. FAILED and BOUNCED
// are terminal; they do not participate in the forward ordering.
var deliveryStatusRank = map[DeliveryStatus]int{
	DeliveryPending:   0,
	DeliverySent:      1,
	DeliveryDelivered: 2,
	DeliveryRead:      3,
}

// Terminal reports whether the status permits no further transitions.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryFailed || s == DeliveryBounced
}

// CanTransitionTo reports whether moving from s to next is a legal,
// monotonically increasing status transition. A stale "sent" callback
// arriving after DELIVERED (or after a terminal FAILED) is rejected.
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	if s.Terminal() {
		return false
	}
	if next.Terminal() {
		return true
	}
	return deliveryStatusRank[next] > deliveryStatusRank[s]
}

// TaskStatus is the lifecycle state of a checklist task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskSkipped   TaskStatus = "SKIPPED"
)

// TaskPriority orders checklist tasks within a walkthrough.
type TaskPriority string

const (
	TaskPriorityUrgent TaskPriority = "URGENT"
	TaskPriorityHigh   TaskPriority = "HIGH"
	TaskPriorityMedium TaskPriority = "MEDIUM"
	TaskPriorityLow    TaskPriority = "LOW"
)

// taskPriorityRank: URGENT sorts first.
var taskPriorityRank = map[TaskPriority]int{
	TaskPriorityUrgent: 0,
	TaskPriorityHigh:   1,
	TaskPriorityMedium: 2,
	TaskPriorityLow:    3,
}

// Rank returns the sort rank of the priority (lower sorts first).
// Unknown priorities sort last.
func (p TaskPriority) Rank() int {
	if r, ok := taskPriorityRank[p]; ok {
		return r
	}
	return len(taskPriorityRank)
}

// ProgressStatus is the lifecycle state of a checklist walkthrough.
type ProgressStatus string

const (
	ProgressInProgress ProgressStatus = "IN_PROGRESS"
	ProgressCompleted  ProgressStatus = "COMPLETED"
	ProgressCancelled  ProgressStatus = "CANCELLED"
)

// ClockKind distinguishes clock-in from clock-out events.
type ClockKind string

const (
	ClockIn  ClockKind = "IN"
	ClockOut ClockKind = "OUT"
)

// IncidentType categorizes reported incidents.
type IncidentType string

const (
	IncidentSafety      IncidentType = "Safety"
	IncidentMaintenance IncidentType = "Maintenance"
	IncidentHR          IncidentType = "HR"
	IncidentService     IncidentType = "Service"
	IncidentGeneral     IncidentType = "General"
)

// IncidentSeverity grades reported incidents.
type IncidentSeverity string

const (
	SeverityCritical IncidentSeverity = "CRITICAL"
	SeverityHigh     IncidentSeverity = "HIGH"
	SeverityMedium   IncidentSeverity = "MEDIUM"
	SeverityLow      IncidentSeverity = "LOW"
)
