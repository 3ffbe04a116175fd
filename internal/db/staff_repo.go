package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mizan/internal/types"
)

// StaffRepository implements the StaffDirectory interface over the staff,
// notification_preferences, device_tokens and restaurants tables. These
// tables are owned by the accounts subsystem; this repository is the
// messaging core's read-mostly view onto them.
type StaffRepository struct {
	db DBTX
}

var _ types.StaffDirectory = (*StaffRepository)(nil)

// NewStaffRepository creates a new StaffRepository backed by the given
// database connection (pool or transaction).
func NewStaffRepository(db DBTX) *StaffRepository {
	return &StaffRepository{db: db}
}

// FindByPhone matches a normalized phone to a staff member. Stored phone
// numbers vary in formatting (plus signs, spaces, local leading zeros), so
// the match strips non-digits on the column and compares against the
// candidate variants of the inbound key. Best effort: a miss returns
// nil, nil, not an error.
func (r *StaffRepository) FindByPhone(ctx context.Context, phoneKey string) (*types.Staff, error) {
	variants := types.PhoneVariants(phoneKey)
	if len(variants) == 0 {
		return nil, nil
	}

	row := r.db.QueryRow(
		ctx,
		`SELECT id, first_name, last_name, email, phone, role, restaurant_id, language
		 FROM staff
		 WHERE regexp_replace(phone, '\D', '', 'g') = ANY($1)
		 ORDER BY created_at
		 LIMIT 1`,
		variants,
	)

	s, err := scanStaff(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to find staff by phone", err)
	}
	return s, nil
}

// Get retrieves a staff member by ID.
func (r *StaffRepository) Get(ctx context.Context, id string) (*types.Staff, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, first_name, last_name, email, phone, role, restaurant_id, language
		 FROM staff
		 WHERE id = $1`,
		id,
	)

	s, err := scanStaff(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "staff member not found", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load staff member", err)
	}
	return s, nil
}

// Preferences returns the user's channel preferences. A missing row defaults
// to all channels enabled: preference rows are created on first opt-out, so
// absence means the user never restricted anything.
func (r *StaffRepository) Preferences(ctx context.Context, userID string) (types.NotificationPreferences, error) {
	row := r.db.QueryRow(ctx,
		`SELECT preferences
		 FROM notification_preferences
		 WHERE user_id = $1`,
		userID,
	)

	var prefs types.NotificationPreferences
	err := row.Scan(&prefs)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.NotificationPreferences{
			WhatsAppEnabled: true,
			EmailEnabled:    true,
			PushEnabled:     true,
		}, nil
	}
	if err != nil {
		return types.NotificationPreferences{}, types.NewAppError(types.ErrCodeInternalDB, "failed to load preferences", err)
	}
	return prefs, nil
}

// DeviceTokens returns the user's registered push tokens.
func (r *StaffRepository) DeviceTokens(ctx context.Context, userID string) ([]types.DeviceToken, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, token, created_at
		 FROM device_tokens
		 WHERE user_id = $1
		 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list device tokens", err)
	}
	defer rows.Close()

	var tokens []types.DeviceToken
	for rows.Next() {
		var t types.DeviceToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan device token", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating device tokens", err)
	}

	return tokens, nil
}

// RegisterDeviceToken stores a push token for the user. Re-registering the
// same token is a no-op, so app restarts do not accumulate duplicates.
func (r *StaffRepository) RegisterDeviceToken(ctx context.Context, userID, token string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO device_tokens (id, user_id, token, created_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (user_id, token) DO NOTHING`,
		uuid.NewString(),
		userID,
		token,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to register device token", err)
	}
	return nil
}

// UnregisterDeviceToken removes a push token. Removing an unknown token is a
// no-op; logout flows fire it unconditionally.
func (r *StaffRepository) UnregisterDeviceToken(ctx context.Context, userID, token string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM device_tokens WHERE user_id = $1 AND token = $2`,
		userID,
		token,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to unregister device token", err)
	}
	return nil
}

// Restaurant retrieves the restaurant's geofence and language configuration.
func (r *StaffRepository) Restaurant(ctx context.Context, id string) (*types.Restaurant, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, name, latitude, longitude, radius_meters, language, manager_id
		 FROM restaurants
		 WHERE id = $1`,
		id,
	)

	var rest types.Restaurant
	err := row.Scan(
		&rest.ID,
		&rest.Name,
		&rest.Latitude,
		&rest.Longitude,
		&rest.RadiusMeters,
		&rest.Language,
		&rest.ManagerID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "restaurant not found", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load restaurant", err)
	}
	return &rest, nil
}

// Manager returns the manager to notify for a restaurant, or nil, nil when
// none is configured.
func (r *StaffRepository) Manager(ctx context.Context, restaurantID string) (*types.Staff, error) {
	row := r.db.QueryRow(ctx,
		`SELECT s.id, s.first_name, s.last_name, s.email, s.phone, s.role,
		        s.restaurant_id, s.language
		 FROM restaurants rst
		 JOIN staff s ON s.id = rst.manager_id
		 WHERE rst.id = $1`,
		restaurantID,
	)

	s, err := scanStaff(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load restaurant manager", err)
	}
	return s, nil
}

// scanStaff scans a staff row.
func scanStaff(row pgx.Row) (*types.Staff, error) {
	var s types.Staff
	err := row.Scan(
		&s.ID,
		&s.FirstName,
		&s.LastName,
		&s.Email,
		&s.Phone,
		&s.Role,
		&s.RestaurantID,
		&s.Language,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
