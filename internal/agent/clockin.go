package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mizan/internal/types"
)

// idleText routes a free-text command from the idle state.
func (e *Engine) idleText(ctx context.Context, fc *flowContext) error {
	switch parseIntent(fc.msg.Text) {
	case intentClockIn:
		return e.startClockIn(ctx, fc)
	case intentClockOut:
		return e.clockOut(ctx, fc)
	case intentChecklist:
		return e.startChecklistCommand(ctx, fc)
	case intentIncident:
		return e.promptIncident(ctx, fc)
	default:
		e.reply(ctx, fc.to, text(fc.lang, msgUnrecognized))
		return nil
	}
}

// startClockIn verifies the preconditions (not already clocked in, a shift
// covering now) and moves the session to awaiting_clock_in_location by
// sending the location request.
func (e *Engine) startClockIn(ctx context.Context, fc *flowContext) error {
	open, err := e.shifts.OpenClockEvent(ctx, fc.staff.ID)
	if err != nil {
		return fmt.Errorf("startClockIn: checking open clock event: %w", err)
	}
	if open != nil {
		e.reply(ctx, fc.to, text(fc.lang, msgAlreadyClockedIn))
		return nil
	}

	shift, err := e.shifts.CurrentShift(ctx, fc.staff.ID, e.clock.Now())
	if err != nil {
		return fmt.Errorf("startClockIn: resolving current shift: %w", err)
	}
	if shift == nil {
		e.reply(ctx, fc.to, text(fc.lang, msgNoActiveShift))
		return nil
	}

	if _, err := e.location.Request(ctx, fc.to, text(fc.lang, msgClockInLocation), "", nopRecorder{}); err != nil {
		return fmt.Errorf("startClockIn: requesting location: %w", err)
	}

	fc.session.Context.ActiveShiftID = shift.ID
	fc.session.State = types.StateAwaitingLocation
	return nil
}

// locationReceived verifies the shared location against the restaurant
// geofence and records the clock-in. A location outside the fence keeps the
// session in awaiting_clock_in_location so the user can move and retry.
func (e *Engine) locationReceived(ctx context.Context, fc *flowContext) error {
	now := e.clock.Now()

	shift, err := e.shifts.GetShift(ctx, fc.session.Context.ActiveShiftID)
	if err != nil {
		return fmt.Errorf("locationReceived: loading shift: %w", err)
	}
	if shift == nil || shift.Ended(now) {
		e.reply(ctx, fc.to, text(fc.lang, msgShiftEnded))
		fc.session.State = types.StateIdle
		fc.session.Context = types.SessionContext{}
		return nil
	}

	restaurant, err := e.staff.Restaurant(ctx, shift.RestaurantID)
	if err != nil {
		return fmt.Errorf("locationReceived: loading restaurant: %w", err)
	}

	if restaurant.GeofenceConfigured() && restaurant.RadiusMeters > 0 {
		dist := haversineMeters(fc.msg.Latitude, fc.msg.Longitude, *restaurant.Latitude, *restaurant.Longitude)
		if dist > restaurant.RadiusMeters {
			e.reply(ctx, fc.to, text(fc.lang, msgOutsideGeofence, dist, restaurant.Name, restaurant.RadiusMeters))
			return nil
		}
	} else {
		e.logger.Warn("geofence not configured, accepting clock-in location unchecked",
			"restaurant_id", restaurant.ID,
		)
	}

	// Re-check under the phone lock: a retried webhook may have clocked the
	// user in already.
	open, err := e.shifts.OpenClockEvent(ctx, fc.staff.ID)
	if err != nil {
		return fmt.Errorf("locationReceived: checking open clock event: %w", err)
	}
	if open != nil {
		e.reply(ctx, fc.to, text(fc.lang, msgAlreadyClockedIn))
		fc.session.State = types.StateIdle
		return nil
	}

	ev := &types.ClockEvent{
		ID:        uuid.NewString(),
		StaffID:   fc.staff.ID,
		ShiftID:   shift.ID,
		Kind:      types.ClockIn,
		At:        now,
		Latitude:  fc.msg.Latitude,
		Longitude: fc.msg.Longitude,
	}
	if err := e.shifts.CreateClockEvent(ctx, ev); err != nil {
		return fmt.Errorf("locationReceived: recording clock-in: %w", err)
	}

	fc.session.Context.OpenClockEventID = ev.ID
	e.reply(ctx, fc.to, text(fc.lang, msgClockInSuccess, restaurant.Name))

	return e.beginChecklist(ctx, fc, shift)
}

// clockOut closes the open clock-in pair and asks for the post-shift rating.
func (e *Engine) clockOut(ctx context.Context, fc *flowContext) error {
	open, err := e.shifts.OpenClockEvent(ctx, fc.staff.ID)
	if err != nil {
		return fmt.Errorf("clockOut: checking open clock event: %w", err)
	}
	if open == nil {
		e.reply(ctx, fc.to, text(fc.lang, msgNotClockedIn))
		return nil
	}

	now := e.clock.Now()
	ev := &types.ClockEvent{
		ID:        uuid.NewString(),
		StaffID:   fc.staff.ID,
		ShiftID:   open.ShiftID,
		Kind:      types.ClockOut,
		At:        now,
		Latitude:  fc.msg.Latitude,
		Longitude: fc.msg.Longitude,
		PairID:    &open.ID,
	}
	if err := e.shifts.CreateClockEvent(ctx, ev); err != nil {
		return fmt.Errorf("clockOut: recording clock-out: %w", err)
	}

	e.reply(ctx, fc.to, text(fc.lang, msgClockOutSuccess, formatWorked(now.Sub(open.At))))

	fc.session.Context = types.SessionContext{PendingFeedbackShiftID: open.ShiftID}
	fc.session.State = types.StateAwaitingFeedback
	e.reply(ctx, fc.to, text(fc.lang, msgFeedbackPrompt))
	return nil
}

// formatWorked renders a worked duration as "7h32m", dropping a zero hour.
func formatWorked(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}
