package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"mizan/internal/types"
)

// feedbackReceived collects the 1-5 post-shift rating. Anything that is not
// a number in range re-prompts without leaving the state; the user can
// always type "clock in" tomorrow because an unanswered prompt ages out with
// the session reset job, not by trapping the conversation.
func (e *Engine) feedbackReceived(ctx context.Context, fc *flowContext) error {
	shiftID := fc.session.Context.PendingFeedbackShiftID
	if shiftID == "" {
		fc.session.State = types.StateIdle
		return e.idleText(ctx, fc)
	}

	// A recognized command takes precedence: the user moved on without
	// rating, and blocking them on the prompt would be worse than the
	// missing review.
	if parseIntent(fc.msg.Text) != intentNone {
		fc.session.Context.PendingFeedbackShiftID = ""
		fc.session.State = types.StateIdle
		return e.idleText(ctx, fc)
	}

	rating, err := strconv.Atoi(strings.TrimSpace(fc.msg.Text))
	if err != nil || rating < 1 || rating > 5 {
		e.reply(ctx, fc.to, text(fc.lang, msgFeedbackInvalid))
		return nil
	}

	review := &types.ShiftReview{
		ID:      uuid.NewString(),
		ShiftID: shiftID,
		StaffID: fc.staff.ID,
		Rating:  rating,
	}
	if err := e.shifts.CreateShiftReview(ctx, review); err != nil {
		return fmt.Errorf("feedbackReceived: creating review: %w", err)
	}

	fc.session.Context.PendingFeedbackShiftID = ""
	fc.session.State = types.StateIdle
	e.reply(ctx, fc.to, text(fc.lang, msgFeedbackThanks))
	return nil
}
