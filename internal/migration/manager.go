// Package migration implements the staged-rename database migration
// protocol every service runs once at start-up: a single lock document
// gates concurrent instances, an ordered list of migration definitions is
// applied into tmp_v{n}_new_* collections, then atomically swapped with
// tmp_v{n}_old_* collections, and a DbVersionRecord documents each step.
package migration

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/marmos91/dittofs/internal/logger"
)

// Direction is the direction a migration run moves the database version.
type Direction string

const (
	Forward  Direction = "FORWARD"
	Backward Direction = "BACKWARD"
)

// DbVersionRecord documents a completed migration step.
type DbVersionRecord struct {
	ID              bson.ObjectID `bson:"_id,omitempty"`
	Version         int           `bson:"version"`
	Direction       Direction     `bson:"direction"`
	CompletedAt     time.Time     `bson:"completed_at"`
	TotalDurationMs int64         `bson:"total_duration_ms"`
}

// Definition is the interface every versioned migration implements. Apply
// performs the forward migration; Unapply, if supported, reverses it — a
// migration that does not support reverse returns an error from Unapply.
type Definition interface {
	// Version is the database version this migration advances to.
	Version() int
	// Apply performs the forward migration using staging helpers bound to db.
	Apply(ctx context.Context, db *mongo.Database, stage *Stage) error
	// Unapply reverses the migration. Migrations that cannot be reversed
	// return an error identifying themselves as non-reversible.
	Unapply(ctx context.Context, db *mongo.Database, stage *Stage) error
}

// Config is the minimal configuration required to run the migration process.
type Config struct {
	LockCollection       string
	DbVersionCollection  string
	MigrationWaitSeconds int
}

type lockDocument struct {
	ID           int    `bson:"_id"`
	LockAcquired bool   `bson:"lock_acquired"`
	AcquiredAt   string `bson:"acquired_at"`
}

// Manager runs the migration protocol for one service's database.
type Manager struct {
	db           *mongo.Database
	cfg          Config
	targetVer    int
	migrations   map[int]Definition
	lockAcquired bool
}

// NewManager builds a Manager for db, targeting targetVersion and using the
// given migration definitions keyed by the version they advance to.
func NewManager(db *mongo.Database, cfg Config, targetVersion int, migrations map[int]Definition) (*Manager, error) {
	if targetVersion < 1 {
		return nil, fmt.Errorf("migration: target version must be 1 or greater")
	}
	return &Manager{db: db, cfg: cfg, targetVer: targetVersion, migrations: migrations}, nil
}

// MigrateOrWait runs migrate_db in a loop, sleeping between attempts, until
// the database reaches the target version. Concurrent instances block on
// the lock document and poll until another instance finishes.
func (m *Manager) MigrateOrWait(ctx context.Context) error {
	for {
		done, err := m.migrateOnce(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(m.cfg.MigrationWaitSeconds) * time.Second):
		}
	}
}

func (m *Manager) migrateOnce(ctx context.Context) (bool, error) {
	version, err := m.currentVersion(ctx)
	if err != nil {
		return false, err
	}

	if version == 0 {
		initialized, err := m.initializeVersioning(ctx)
		if err != nil {
			return false, fmt.Errorf("migration: initializing db versioning: %w", err)
		}
		if !initialized {
			return false, nil
		}
		version = 1
	}

	if version == m.targetVer {
		return true, nil
	}

	acquired, err := m.acquireLock(ctx)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}
	defer m.releaseLock(ctx)

	direction := Forward
	if version > m.targetVer {
		direction = Backward
	}

	start := time.Now()
	if err := m.performMigrations(ctx, version, direction); err != nil {
		logger.ErrorCtx(ctx, "migration step failed", logger.KeyError, err.Error(),
			"current_version", version, "target_version", m.targetVer)
		return false, err
	}

	return true, m.recordMigration(ctx, m.targetVer, direction, time.Since(start))
}

func (m *Manager) currentVersion(ctx context.Context) (int, error) {
	cursor, err := m.db.Collection(m.cfg.DbVersionCollection).Find(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("migration: loading version records: %w", err)
	}
	defer cursor.Close(ctx)

	var latest DbVersionRecord
	found := false
	for cursor.Next(ctx) {
		var rec DbVersionRecord
		if err := cursor.Decode(&rec); err != nil {
			return 0, fmt.Errorf("migration: decoding version record: %w", err)
		}
		if !found || rec.CompletedAt.After(latest.CompletedAt) {
			latest = rec
			found = true
		}
	}
	if !found {
		return 0, nil
	}
	return latest.Version, nil
}

func (m *Manager) initializeVersioning(ctx context.Context) (bool, error) {
	lockColl := m.db.Collection(m.cfg.LockCollection)

	n, err := lockColl.CountDocuments(ctx, bson.M{})
	if err != nil {
		return false, fmt.Errorf("migration: checking lock document: %w", err)
	}
	if n == 0 {
		_, err := lockColl.InsertOne(ctx, lockDocument{ID: 0, LockAcquired: false})
		if err != nil && !mongo.IsDuplicateKeyError(err) {
			return false, fmt.Errorf("migration: creating lock document: %w", err)
		}
		if mongo.IsDuplicateKeyError(err) {
			// Another instance created the lock document first; retry later.
			return false, nil
		}
	}

	acquired, err := m.acquireLock(ctx)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}
	defer m.releaseLock(ctx)

	start := time.Now()
	return true, m.recordMigration(ctx, 1, Forward, time.Since(start))
}

func (m *Manager) acquireLock(ctx context.Context) (bool, error) {
	if m.lockAcquired {
		return true, nil
	}

	lockColl := m.db.Collection(m.cfg.LockCollection)
	res := lockColl.FindOneAndUpdate(ctx,
		bson.M{"lock_acquired": false},
		bson.M{"$set": bson.M{"lock_acquired": true, "acquired_at": time.Now().UTC().Format(time.RFC3339)}},
	)
	if err := res.Err(); err != nil {
		if err == mongo.ErrNoDocuments {
			return false, nil
		}
		return false, fmt.Errorf("migration: acquiring lock: %w", err)
	}

	m.lockAcquired = true
	return true, nil
}

func (m *Manager) releaseLock(ctx context.Context) {
	if !m.lockAcquired {
		return
	}

	lockColl := m.db.Collection(m.cfg.LockCollection)
	_, err := lockColl.UpdateOne(ctx,
		bson.M{"lock_acquired": true},
		bson.M{"$set": bson.M{"lock_acquired": false, "acquired_at": ""}},
	)
	if err != nil {
		logger.ErrorCtx(ctx, "failed to release migration lock", logger.KeyError, err.Error())
		return
	}
	m.lockAcquired = false
}

func (m *Manager) performMigrations(ctx context.Context, currentVer int, direction Direction) error {
	sequence := m.sequence(currentVer, direction)

	for _, v := range sequence {
		def, ok := m.migrations[v]
		if !ok {
			return fmt.Errorf("migration: no definition registered for version %d", v)
		}

		stage := newStage(m.db, v, direction == Backward)

		var err error
		if direction == Backward {
			err = def.Unapply(ctx, m.db, stage)
		} else {
			err = def.Apply(ctx, m.db, stage)
		}
		if err != nil {
			return fmt.Errorf("migration: step to version %d (%s) failed: %w", v, direction, err)
		}
	}

	return nil
}

func (m *Manager) sequence(currentVer int, direction Direction) []int {
	var seq []int
	if direction == Backward {
		for v := currentVer; v > m.targetVer; v-- {
			seq = append(seq, v)
		}
		return seq
	}
	for v := currentVer + 1; v <= m.targetVer; v++ {
		seq = append(seq, v)
	}
	return seq
}

func (m *Manager) recordMigration(ctx context.Context, version int, direction Direction, elapsed time.Duration) error {
	_, err := m.db.Collection(m.cfg.DbVersionCollection).InsertOne(ctx, DbVersionRecord{
		Version:         version,
		Direction:       direction,
		CompletedAt:     time.Now().UTC(),
		TotalDurationMs: elapsed.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("migration: recording version %d: %w", version, err)
	}
	return nil
}
