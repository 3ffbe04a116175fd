package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mizan/internal/types"
)

// clockInGrace is how early before shift start a clock-in is accepted.
const clockInGrace = 30 * time.Minute

// ShiftRepository implements the ShiftOps interface over the shifts,
// shift_tasks, clock_events, incidents, shift_reviews and task_verifications
// tables. These tables belong to the scheduling and timeclock subsystems;
// the conversation engine touches them only through this narrow surface.
type ShiftRepository struct {
	db DBTX
}

var _ types.ShiftOps = (*ShiftRepository)(nil)

// NewShiftRepository creates a new ShiftRepository backed by the given
// database connection (pool or transaction).
func NewShiftRepository(db DBTX) *ShiftRepository {
	return &ShiftRepository{db: db}
}

// CurrentShift returns the staff member's shift covering now, with a grace
// margin for early clock-ins. Returns nil, nil when no shift covers the
// window. Overlapping shifts resolve to the earliest-starting one.
func (r *ShiftRepository) CurrentShift(ctx context.Context, staffID string, now time.Time) (*types.Shift, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, staff_id, restaurant_id, role, start_time, end_time
		 FROM shifts
		 WHERE staff_id = $1
		   AND start_time <= $2
		   AND end_time > $3
		 ORDER BY start_time
		 LIMIT 1`,
		staffID,
		now.Add(clockInGrace),
		now,
	)

	s, err := scanShift(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load current shift", err)
	}
	return s, nil
}

// GetShift retrieves a shift by ID.
func (r *ShiftRepository) GetShift(ctx context.Context, shiftID string) (*types.Shift, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, staff_id, restaurant_id, role, start_time, end_time
		 FROM shifts
		 WHERE id = $1`,
		shiftID,
	)

	s, err := scanShift(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundShift, "shift not found", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load shift", err)
	}
	return s, nil
}

// ChecklistTasks returns the shift's tasks ordered by priority
// (URGENT > HIGH > MEDIUM > LOW) then creation time. The priority ordering
// lives in SQL so the walkthrough order is stable across processes.
func (r *ShiftRepository) ChecklistTasks(ctx context.Context, shiftID string) ([]types.ShiftTask, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, shift_id, title, description, priority, status,
		        photo_required, notes, created_at
		 FROM shift_tasks
		 WHERE shift_id = $1
		 ORDER BY CASE priority
		     WHEN 'URGENT' THEN 0
		     WHEN 'HIGH' THEN 1
		     WHEN 'MEDIUM' THEN 2
		     ELSE 3
		 END, created_at`,
		shiftID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list checklist tasks", err)
	}
	defer rows.Close()

	var tasks []types.ShiftTask
	for rows.Next() {
		t, scanErr := scanShiftTask(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan task row", scanErr)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating task rows", err)
	}

	return tasks, nil
}

// GetTask retrieves a single task by ID.
func (r *ShiftRepository) GetTask(ctx context.Context, taskID string) (*types.ShiftTask, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, shift_id, title, description, priority, status,
		        photo_required, notes, created_at
		 FROM shift_tasks
		 WHERE id = $1`,
		taskID,
	)

	t, err := scanShiftTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundShift, "task not found", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load task", err)
	}
	return t, nil
}

// SetTaskStatus updates a task's lifecycle status.
func (r *ShiftRepository) SetTaskStatus(ctx context.Context, taskID string, status types.TaskStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE shift_tasks SET status = $1 WHERE id = $2`,
		string(status),
		taskID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set task status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundShift, "task not found", nil)
	}
	return nil
}

// AppendTaskNote appends a note line to the task, preserving prior notes.
func (r *ShiftRepository) AppendTaskNote(ctx context.Context, taskID, note string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE shift_tasks SET
			notes = CASE WHEN notes = '' THEN $1 ELSE notes || E'\n' || $1 END
		 WHERE id = $2`,
		note,
		taskID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append task note", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundShift, "task not found", nil)
	}
	return nil
}

// CreateVerification stores photo evidence for a verified task.
func (r *ShiftRepository) CreateVerification(ctx context.Context, rec *types.TaskVerificationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO task_verifications (id, task_id, media_id, mime_type, caption, created_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
		 RETURNING created_at`,
		rec.ID,
		rec.TaskID,
		rec.MediaID,
		rec.MimeType,
		rec.Caption,
		nilIfZeroTime(rec.CreatedAt),
	)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create task verification", err)
	}
	return nil
}

// OpenClockEvent returns the staff member's clock-in with no matching
// clock-out, or nil, nil when not clocked in.
func (r *ShiftRepository) OpenClockEvent(ctx context.Context, staffID string) (*types.ClockEvent, error) {
	row := r.db.QueryRow(ctx,
		`SELECT ci.id, ci.staff_id, ci.shift_id, ci.kind, ci.at,
		        ci.latitude, ci.longitude, ci.pair_id
		 FROM clock_events ci
		 WHERE ci.staff_id = $1
		   AND ci.kind = 'IN'
		   AND NOT EXISTS (
		       SELECT 1 FROM clock_events co
		       WHERE co.kind = 'OUT' AND co.pair_id = ci.id
		   )
		 ORDER BY ci.at DESC
		 LIMIT 1`,
		staffID,
	)

	ev, err := scanClockEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load open clock event", err)
	}
	return ev, nil
}

// CreateClockEvent inserts a clock-in or clock-out record.
func (r *ShiftRepository) CreateClockEvent(ctx context.Context, ev *types.ClockEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO clock_events (id, staff_id, shift_id, kind, at, latitude, longitude, pair_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID,
		ev.StaffID,
		ev.ShiftID,
		string(ev.Kind),
		ev.At,
		ev.Latitude,
		ev.Longitude,
		ev.PairID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create clock event", err)
	}
	return nil
}

// CreateIncident inserts an incident ticket.
func (r *ShiftRepository) CreateIncident(ctx context.Context, inc *types.Incident) error {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO incidents
		 (id, ticket_id, reporter_id, incident_type, severity, description,
		  transcribed, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))
		 RETURNING created_at`,
		inc.ID,
		inc.TicketID,
		inc.ReporterID,
		string(inc.Type),
		string(inc.Severity),
		inc.Description,
		inc.Transcribed,
		nilIfZeroTime(inc.CreatedAt),
	)
	if err := row.Scan(&inc.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create incident", err)
	}
	return nil
}

// CreateShiftReview inserts a post-shift rating.
func (r *ShiftRepository) CreateShiftReview(ctx context.Context, rev *types.ShiftReview) error {
	if rev.ID == "" {
		rev.ID = uuid.NewString()
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO shift_reviews (id, shift_id, staff_id, rating, created_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
		 RETURNING created_at`,
		rev.ID,
		rev.ShiftID,
		rev.StaffID,
		rev.Rating,
		nilIfZeroTime(rev.CreatedAt),
	)
	if err := row.Scan(&rev.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create shift review", err)
	}
	return nil
}

func scanShift(row pgx.Row) (*types.Shift, error) {
	var s types.Shift
	err := row.Scan(&s.ID, &s.StaffID, &s.RestaurantID, &s.Role, &s.StartTime, &s.EndTime)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanShiftTask(row pgx.Row) (*types.ShiftTask, error) {
	var (
		t        types.ShiftTask
		priority string
		status   string
	)
	err := row.Scan(
		&t.ID,
		&t.ShiftID,
		&t.Title,
		&t.Description,
		&priority,
		&status,
		&t.PhotoRequired,
		&t.Notes,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Priority = types.TaskPriority(priority)
	t.Status = types.TaskStatus(status)
	return &t, nil
}

func scanClockEvent(row pgx.Row) (*types.ClockEvent, error) {
	var (
		ev   types.ClockEvent
		kind string
	)
	err := row.Scan(
		&ev.ID,
		&ev.StaffID,
		&ev.ShiftID,
		&kind,
		&ev.At,
		&ev.Latitude,
		&ev.Longitude,
		&ev.PairID,
	)
	if err != nil {
		return nil, err
	}
	ev.Kind = types.ClockKind(kind)
	return &ev, nil
}
