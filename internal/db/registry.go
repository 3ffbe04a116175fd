package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"mizan/internal/config"
	"mizan/internal/types"
)

// Registry aggregates all repository instances over a shared pgx pool. It
// implements types.RepositoryRegistry and is the single object the API and
// workers receive for data access.
type Registry struct {
	pool *pgxpool.Pool

	sessions          *SessionRepository
	processedMessages *ProcessedMessageRepository
	notifications     *NotificationRepository
	deliveryLog       *DeliveryLogRepository
	checklistProgress *ChecklistProgressRepository
	staff             *StaffRepository
	shifts            *ShiftRepository
}

var _ types.RepositoryRegistry = (*Registry)(nil)

// NewRegistry connects to PostgreSQL with the configured pool tuning and
// builds all repositories over the shared pool.
func NewRegistry(ctx context.Context, cfg config.DatabaseConfig) (*Registry, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("NewRegistry: parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("NewRegistry: creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("NewRegistry: pinging database: %w", err)
	}

	return NewRegistryWithPool(pool), nil
}

// NewRegistryWithPool builds a Registry over an existing pool. Used by tests
// and by workers that manage their own pool lifecycle.
func NewRegistryWithPool(pool *pgxpool.Pool) *Registry {
	return &Registry{
		pool:              pool,
		sessions:          NewSessionRepository(pool),
		processedMessages: NewProcessedMessageRepository(pool),
		notifications:     NewNotificationRepository(pool),
		deliveryLog:       NewDeliveryLogRepository(pool),
		checklistProgress: NewChecklistProgressRepository(pool),
		staff:             NewStaffRepository(pool),
		shifts:            NewShiftRepository(pool),
	}
}

func (r *Registry) Sessions() types.SessionRepository                  { return r.sessions }
func (r *Registry) ProcessedMessages() types.ProcessedMessageRepository { return r.processedMessages }
func (r *Registry) Notifications() types.NotificationRepository        { return r.notifications }
func (r *Registry) DeliveryLog() types.DeliveryLogRepository           { return r.deliveryLog }
func (r *Registry) ChecklistProgress() types.ChecklistProgressRepository {
	return r.checklistProgress
}
func (r *Registry) Staff() types.StaffDirectory { return r.staff }
func (r *Registry) Shifts() types.ShiftOps      { return r.shifts }

// Ping checks database connectivity; used by the health endpoint.
func (r *Registry) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the connection pool.
func (r *Registry) Close() error {
	r.pool.Close()
	return nil
}
