package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mizan/internal/types"
)

// ChecklistProgressRepository provides data access for the
// checklist_progress table, which records checklist walkthroughs per
// (shift, staff) pair. task_ids is a text[] column preserving walkthrough
// order; responses is a JSONB map of task id to answer.
type ChecklistProgressRepository struct {
	db DBTX
}

var _ types.ChecklistProgressRepository = (*ChecklistProgressRepository)(nil)

// NewChecklistProgressRepository creates a new ChecklistProgressRepository
// backed by the given database connection (pool or transaction).
func NewChecklistProgressRepository(db DBTX) *ChecklistProgressRepository {
	return &ChecklistProgressRepository{db: db}
}

// Create inserts a new walkthrough record. If the ID is empty a UUID is
// generated.
func (r *ChecklistProgressRepository) Create(ctx context.Context, p *types.ChecklistProgress) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = types.ProgressInProgress
	}

	responses, err := responsesJSON(p.Responses)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to encode responses", err)
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO checklist_progress
		 (id, shift_id, staff_id, channel, task_ids, current_task_id,
		  responses, status, completed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()))
		 RETURNING created_at`,
		p.ID,
		p.ShiftID,
		p.StaffID,
		string(p.Channel),
		p.TaskIDs,
		nilIfEmpty(p.CurrentTaskID),
		responses,
		string(p.Status),
		p.CompletedAt,
		nilIfZeroTime(p.CreatedAt),
	)
	if err := row.Scan(&p.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create checklist progress", err)
	}
	return nil
}

// Get retrieves a walkthrough by ID.
func (r *ChecklistProgressRepository) Get(ctx context.Context, id string) (*types.ChecklistProgress, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, shift_id, staff_id, channel, task_ids, current_task_id,
		        responses, status, completed_at, created_at
		 FROM checklist_progress
		 WHERE id = $1`,
		id,
	)

	p, err := scanChecklistProgress(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundShift, "checklist progress not found", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load checklist progress", err)
	}
	return p, nil
}

// GetActive returns the IN_PROGRESS walkthrough for (shiftID, staffID), or
// nil, nil when none exists.
func (r *ChecklistProgressRepository) GetActive(ctx context.Context, shiftID, staffID string) (*types.ChecklistProgress, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, shift_id, staff_id, channel, task_ids, current_task_id,
		        responses, status, completed_at, created_at
		 FROM checklist_progress
		 WHERE shift_id = $1 AND staff_id = $2 AND status = $3
		 ORDER BY created_at DESC
		 LIMIT 1`,
		shiftID,
		staffID,
		string(types.ProgressInProgress),
	)

	p, err := scanChecklistProgress(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load active checklist progress", err)
	}
	return p, nil
}

// Save persists the mutable walkthrough fields: current task, responses,
// status and completion time.
func (r *ChecklistProgressRepository) Save(ctx context.Context, p *types.ChecklistProgress) error {
	responses, err := responsesJSON(p.Responses)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to encode responses", err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE checklist_progress SET
			current_task_id = $1,
			responses = $2,
			status = $3,
			completed_at = $4
		 WHERE id = $5`,
		nilIfEmpty(p.CurrentTaskID),
		responses,
		string(p.Status),
		p.CompletedAt,
		p.ID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save checklist progress", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundShift, "checklist progress not found", nil)
	}
	return nil
}

// responsesJSON encodes the responses map for the JSONB column, mapping nil
// to an empty object.
func responsesJSON(m map[string]string) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// scanChecklistProgress scans a checklist_progress row.
func scanChecklistProgress(row pgx.Row) (*types.ChecklistProgress, error) {
	var (
		p             types.ChecklistProgress
		channel       string
		currentTaskID *string
		responsesRaw  []byte
		status        string
	)

	err := row.Scan(
		&p.ID,
		&p.ShiftID,
		&p.StaffID,
		&channel,
		&p.TaskIDs,
		&currentTaskID,
		&responsesRaw,
		&status,
		&p.CompletedAt,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Channel = types.Channel(channel)
	p.Status = types.ProgressStatus(status)
	if currentTaskID != nil {
		p.CurrentTaskID = *currentTaskID
	}
	p.Responses = map[string]string{}
	if len(responsesRaw) > 0 {
		if err := json.Unmarshal(responsesRaw, &p.Responses); err != nil {
			return nil, err
		}
	}
	return &p, nil
}
