package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"mizan/internal/external"
	"mizan/internal/types"
)

// splitButton decodes a checklist button id of the form "action:taskID".
func splitButton(id string) (action, taskID string) {
	action, taskID, _ = strings.Cut(id, ":")
	return action, taskID
}

// startChecklistCommand handles the explicit "checklist" command: resume the
// active walkthrough or start one for the current shift.
func (e *Engine) startChecklistCommand(ctx context.Context, fc *flowContext) error {
	shift, err := e.shifts.CurrentShift(ctx, fc.staff.ID, e.clock.Now())
	if err != nil {
		return fmt.Errorf("startChecklistCommand: resolving current shift: %w", err)
	}
	if shift == nil {
		e.reply(ctx, fc.to, text(fc.lang, msgNoActiveShift))
		return nil
	}
	return e.beginChecklist(ctx, fc, shift)
}

// beginChecklist starts (or resumes) the walkthrough for a shift. Tasks are
// walked in priority order; a shift with no pending tasks leaves the session
// idle.
func (e *Engine) beginChecklist(ctx context.Context, fc *flowContext, shift *types.Shift) error {
	tasks, err := e.shifts.ChecklistTasks(ctx, shift.ID)
	if err != nil {
		return fmt.Errorf("beginChecklist: loading tasks: %w", err)
	}

	var taskIDs []string
	for _, t := range tasks {
		if t.Status == types.TaskPending {
			taskIDs = append(taskIDs, t.ID)
		}
	}
	if len(taskIDs) == 0 {
		e.reply(ctx, fc.to, text(fc.lang, msgChecklistNone))
		fc.session.State = types.StateIdle
		return nil
	}

	progress, err := e.progress.GetActive(ctx, shift.ID, fc.staff.ID)
	if err != nil {
		return fmt.Errorf("beginChecklist: loading active progress: %w", err)
	}
	if progress == nil {
		progress = &types.ChecklistProgress{
			ID:            uuid.NewString(),
			ShiftID:       shift.ID,
			StaffID:       fc.staff.ID,
			Channel:       types.ChannelWhatsApp,
			TaskIDs:       taskIDs,
			CurrentTaskID: taskIDs[0],
			Responses:     map[string]string{},
			Status:        types.ProgressInProgress,
		}
		if err := e.progress.Create(ctx, progress); err != nil {
			return fmt.Errorf("beginChecklist: creating progress: %w", err)
		}
	}

	fc.session.Context.ActiveShiftID = shift.ID
	fc.session.Context.Checklist = &types.ChecklistContext{
		ProgressID:    progress.ID,
		ShiftID:       shift.ID,
		TaskIDs:       progress.TaskIDs,
		CurrentTaskID: progress.CurrentTaskID,
	}
	fc.session.State = types.StateInChecklist

	e.reply(ctx, fc.to, text(fc.lang, msgChecklistIntro, len(progress.TaskIDs)))
	return e.promptTask(ctx, fc, progress.CurrentTaskID)
}

// promptTask sends the prompt for one task. Photo-required tasks move the
// session to awaiting_task_photo; yes/no tasks get interactive buttons whose
// ids carry the task id so stale taps on older prompts can be detected.
func (e *Engine) promptTask(ctx context.Context, fc *flowContext, taskID string) error {
	task, err := e.shifts.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("promptTask: loading task: %w", err)
	}

	cl := fc.session.Context.Checklist
	idx := taskIndex(cl.TaskIDs, taskID) + 1
	total := len(cl.TaskIDs)

	if task.PhotoRequired {
		cl.AwaitingPhotoTaskID = taskID
		fc.session.State = types.StateAwaitingTaskPhoto
		e.reply(ctx, fc.to, text(fc.lang, msgTaskPhotoPrompt, idx, total, task.Title, task.Description))
		return nil
	}

	fc.session.State = types.StateInChecklist
	body := text(fc.lang, msgTaskPrompt, idx, total, task.Title, task.Description)
	buttons := []external.Button{
		{ID: btnTaskYes + ":" + taskID, Title: text(fc.lang, msgBtnYes)},
		{ID: btnTaskNo + ":" + taskID, Title: text(fc.lang, msgBtnNo)},
	}
	if _, err := e.wa.SendInteractiveButtons(ctx, fc.to, body, buttons); err != nil {
		e.logger.Error("failed to send task prompt", "task_id", taskID, "error", err.Error())
	}
	return nil
}

// repromptCurrentTask re-sends the prompt for whatever the walkthrough is
// currently waiting on. Falls back to the idle menu when the checklist
// context is gone.
func (e *Engine) repromptCurrentTask(ctx context.Context, fc *flowContext) error {
	cl := fc.session.Context.Checklist
	if cl == nil || cl.CurrentTaskID == "" {
		fc.session.State = types.StateIdle
		e.reply(ctx, fc.to, text(fc.lang, msgUnrecognized))
		return nil
	}
	return e.promptTask(ctx, fc, cl.CurrentTaskID)
}

// loadWalkthrough loads the active progress for the session's checklist
// context, cancelling it when the shift has ended mid-walkthrough. A nil
// return with nil error means the walkthrough is over and the session has
// been reset.
func (e *Engine) loadWalkthrough(ctx context.Context, fc *flowContext) (*types.ChecklistProgress, error) {
	cl := fc.session.Context.Checklist
	if cl == nil {
		fc.session.State = types.StateIdle
		e.reply(ctx, fc.to, text(fc.lang, msgUnrecognized))
		return nil, nil
	}

	shift, err := e.shifts.GetShift(ctx, cl.ShiftID)
	if err != nil {
		return nil, fmt.Errorf("loadWalkthrough: loading shift: %w", err)
	}

	progress, err := e.progress.Get(ctx, cl.ProgressID)
	if err != nil {
		return nil, fmt.Errorf("loadWalkthrough: loading progress: %w", err)
	}

	if shift == nil || shift.Ended(e.clock.Now()) {
		if progress != nil && progress.Status == types.ProgressInProgress {
			progress.Status = types.ProgressCancelled
			if err := e.progress.Save(ctx, progress); err != nil {
				return nil, fmt.Errorf("loadWalkthrough: cancelling progress: %w", err)
			}
		}
		fc.session.Context.Checklist = nil
		fc.session.State = types.StateIdle
		e.reply(ctx, fc.to, text(fc.lang, msgShiftEnded))
		return nil, nil
	}

	if progress == nil || progress.Status != types.ProgressInProgress {
		fc.session.Context.Checklist = nil
		fc.session.State = types.StateIdle
		e.reply(ctx, fc.to, text(fc.lang, msgChecklistStopped))
		return nil, nil
	}
	return progress, nil
}

// checklistAnswer handles a yes/no button tap on a task prompt.
func (e *Engine) checklistAnswer(ctx context.Context, fc *flowContext) error {
	progress, err := e.loadWalkthrough(ctx, fc)
	if err != nil || progress == nil {
		return err
	}

	action, taskID := splitButton(fc.msg.ButtonID)
	cl := fc.session.Context.Checklist
	if taskID != cl.CurrentTaskID {
		// A tap on an older prompt's button. Ignore it and restate the
		// current question.
		e.logger.Info("stale task answer ignored",
			"answered_task_id", taskID,
			"current_task_id", cl.CurrentTaskID,
		)
		return e.promptTask(ctx, fc, cl.CurrentTaskID)
	}

	switch action {
	case btnTaskYes:
		return e.completeTask(ctx, fc, progress, taskID)
	case btnTaskNo:
		return e.startFollowup(ctx, fc, taskID)
	default:
		return e.promptTask(ctx, fc, cl.CurrentTaskID)
	}
}

// checklistTextAnswer accepts typed yes/no answers for users who reply in
// text instead of tapping the buttons.
func (e *Engine) checklistTextAnswer(ctx context.Context, fc *flowContext) error {
	progress, err := e.loadWalkthrough(ctx, fc)
	if err != nil || progress == nil {
		return err
	}

	cl := fc.session.Context.Checklist
	switch {
	case isAffirmative(fc.msg.Text):
		return e.completeTask(ctx, fc, progress, cl.CurrentTaskID)
	case isNegative(fc.msg.Text):
		return e.startFollowup(ctx, fc, cl.CurrentTaskID)
	default:
		return e.promptTask(ctx, fc, cl.CurrentTaskID)
	}
}

func (e *Engine) completeTask(ctx context.Context, fc *flowContext, progress *types.ChecklistProgress, taskID string) error {
	if err := e.shifts.SetTaskStatus(ctx, taskID, types.TaskCompleted); err != nil {
		return fmt.Errorf("completeTask: updating task status: %w", err)
	}
	progress.Responses[taskID] = "yes"
	return e.advance(ctx, fc, progress)
}

// startFollowup reacts to a "not yet" answer by offering help or a skip.
func (e *Engine) startFollowup(ctx context.Context, fc *flowContext, taskID string) error {
	task, err := e.shifts.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("startFollowup: loading task: %w", err)
	}

	fc.session.Context.Checklist.FollowupTaskID = taskID
	fc.session.State = types.StateChecklistFollowup

	body := text(fc.lang, msgFollowupPrompt, task.Title)
	buttons := []external.Button{
		{ID: btnTaskHelp + ":" + taskID, Title: text(fc.lang, msgBtnHelp)},
		{ID: btnTaskSkip + ":" + taskID, Title: text(fc.lang, msgBtnSkip)},
	}
	if _, err := e.wa.SendInteractiveButtons(ctx, fc.to, body, buttons); err != nil {
		e.logger.Error("failed to send followup prompt", "task_id", taskID, "error", err.Error())
	}
	return nil
}

// followupAnswer handles the need-help / skip decision.
func (e *Engine) followupAnswer(ctx context.Context, fc *flowContext) error {
	progress, err := e.loadWalkthrough(ctx, fc)
	if err != nil || progress == nil {
		return err
	}

	action, taskID := splitButton(fc.msg.ButtonID)
	cl := fc.session.Context.Checklist
	if taskID != cl.FollowupTaskID {
		e.logger.Info("stale followup answer ignored",
			"answered_task_id", taskID,
			"followup_task_id", cl.FollowupTaskID,
		)
		return nil
	}

	switch action {
	case btnTaskHelp:
		fc.session.State = types.StateChecklistHelpText
		e.reply(ctx, fc.to, text(fc.lang, msgHelpTextPrompt))
		return nil
	case btnTaskSkip:
		return e.skipTask(ctx, fc, progress, taskID)
	default:
		return nil
	}
}

// followupText accepts typed "help" / "skip" answers in the followup state.
func (e *Engine) followupText(ctx context.Context, fc *flowContext) error {
	progress, err := e.loadWalkthrough(ctx, fc)
	if err != nil || progress == nil {
		return err
	}

	cl := fc.session.Context.Checklist
	lower := strings.ToLower(strings.TrimSpace(fc.msg.Text))
	switch {
	case containsAny(lower, []string{"help", "aide", "مساعدة"}):
		fc.session.State = types.StateChecklistHelpText
		e.reply(ctx, fc.to, text(fc.lang, msgHelpTextPrompt))
		return nil
	case containsAny(lower, []string{"skip", "passer", "تجاوز"}):
		return e.skipTask(ctx, fc, progress, cl.FollowupTaskID)
	default:
		// Treat anything else as the help note itself.
		return e.recordHelpNote(ctx, fc, progress, cl.FollowupTaskID, fc.msg.Text)
	}
}

func (e *Engine) skipTask(ctx context.Context, fc *flowContext, progress *types.ChecklistProgress, taskID string) error {
	if err := e.shifts.SetTaskStatus(ctx, taskID, types.TaskSkipped); err != nil {
		return fmt.Errorf("skipTask: updating task status: %w", err)
	}
	progress.Responses[taskID] = "skipped"
	fc.session.Context.Checklist.FollowupTaskID = ""
	e.reply(ctx, fc.to, text(fc.lang, msgTaskSkipped))
	return e.advance(ctx, fc, progress)
}

// helpTextReceived saves the free-text help note against the task for the
// manager and moves on. The task stays pending; it needs human follow-up.
func (e *Engine) helpTextReceived(ctx context.Context, fc *flowContext) error {
	progress, err := e.loadWalkthrough(ctx, fc)
	if err != nil || progress == nil {
		return err
	}
	return e.recordHelpNote(ctx, fc, progress, fc.session.Context.Checklist.FollowupTaskID, fc.msg.Text)
}

func (e *Engine) recordHelpNote(ctx context.Context, fc *flowContext, progress *types.ChecklistProgress, taskID, note string) error {
	if err := e.shifts.AppendTaskNote(ctx, taskID, note); err != nil {
		return fmt.Errorf("recordHelpNote: appending note: %w", err)
	}
	progress.Responses[taskID] = "help: " + note
	fc.session.Context.Checklist.FollowupTaskID = ""
	e.reply(ctx, fc.to, text(fc.lang, msgHelpNoted))
	return e.advance(ctx, fc, progress)
}

// taskPhotoReceived stores the photo as verification evidence and completes
// the task.
func (e *Engine) taskPhotoReceived(ctx context.Context, fc *flowContext) error {
	progress, err := e.loadWalkthrough(ctx, fc)
	if err != nil || progress == nil {
		return err
	}

	cl := fc.session.Context.Checklist
	taskID := cl.AwaitingPhotoTaskID
	if taskID == "" {
		return e.repromptCurrentTask(ctx, fc)
	}

	rec := &types.TaskVerificationRecord{
		ID:       uuid.NewString(),
		TaskID:   taskID,
		MediaID:  fc.msg.MediaID,
		MimeType: fc.msg.MimeType,
		Caption:  fc.msg.Caption,
	}
	if err := e.shifts.CreateVerification(ctx, rec); err != nil {
		return fmt.Errorf("taskPhotoReceived: storing verification: %w", err)
	}
	if err := e.shifts.SetTaskStatus(ctx, taskID, types.TaskCompleted); err != nil {
		return fmt.Errorf("taskPhotoReceived: updating task status: %w", err)
	}

	progress.Responses[taskID] = "photo"
	cl.AwaitingPhotoTaskID = ""
	fc.session.State = types.StateInChecklist
	e.reply(ctx, fc.to, text(fc.lang, msgTaskPhotoSaved))
	return e.advance(ctx, fc, progress)
}

// advance moves the walkthrough to the next task, or closes it when the
// answered task was the last one.
func (e *Engine) advance(ctx context.Context, fc *flowContext, progress *types.ChecklistProgress) error {
	cl := fc.session.Context.Checklist

	idx := taskIndex(progress.TaskIDs, cl.CurrentTaskID)
	if idx < 0 || idx+1 >= len(progress.TaskIDs) {
		now := e.clock.Now()
		progress.Status = types.ProgressCompleted
		progress.CompletedAt = &now
		if err := e.progress.Save(ctx, progress); err != nil {
			return fmt.Errorf("advance: completing progress: %w", err)
		}
		fc.session.Context.Checklist = nil
		fc.session.State = types.StateIdle
		e.reply(ctx, fc.to, text(fc.lang, msgChecklistComplete))
		return nil
	}

	next := progress.TaskIDs[idx+1]
	progress.CurrentTaskID = next
	if err := e.progress.Save(ctx, progress); err != nil {
		return fmt.Errorf("advance: saving progress: %w", err)
	}
	cl.CurrentTaskID = next
	return e.promptTask(ctx, fc, next)
}

func taskIndex(ids []string, id string) int {
	for i, candidate := range ids {
		if candidate == id {
			return i
		}
	}
	return -1
}

var affirmativeWords = []string{"yes", "y", "done", "ok", "oui", "fait", "نعم", "تم"}
var negativeWords = []string{"no", "n", "not yet", "non", "pas encore", "لا", "ليس بعد"}

func isAffirmative(s string) bool {
	return matchesWord(s, affirmativeWords)
}

func isNegative(s string) bool {
	return matchesWord(s, negativeWords)
}

func matchesWord(s string, words []string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, w := range words {
		if lower == w {
			return true
		}
	}
	return false
}
