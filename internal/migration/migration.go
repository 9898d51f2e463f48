package migration

import (
	"context"
	"fmt"

	"github.com/PolarWolf314/nudge/internal/audit"
	"github.com/PolarWolf314/nudge/internal/backoff"
	"github.com/PolarWolf314/nudge/internal/codec"
	"github.com/PolarWolf314/nudge/internal/envelope"
	kerrors "github.com/PolarWolf314/nudge/internal/errors"
	"github.com/PolarWolf314/nudge/internal/keys"
	logger "github.com/PolarWolf314/nudge/internal/logging"
	"github.com/PolarWolf314/nudge/internal/records"
	"github.com/PolarWolf314/nudge/internal/store"
)

// DefaultBatchSize is the number of task updates committed per batch.
const DefaultBatchSize = 500

// Migrator upgrades one user's plaintext tasks to the encrypted format.
type Migrator struct {
	userID    string
	store     store.DocumentStore
	keys      *keys.Custodian
	batchSize int
	clock     backoff.Clock
	log       logger.Logger
	audit     audit.Trail
}

// Config holds the dependencies of a Migrator.
type Config struct {
	UserID    string
	Store     store.DocumentStore
	Keys      *keys.Custodian
	BatchSize int
	Clock     backoff.Clock
	Logger    logger.Logger
	Audit     audit.Trail
}

// New returns a migrator. A zero BatchSize uses DefaultBatchSize.
func New(cfg Config) *Migrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Clock == nil {
		cfg.Clock = backoff.Real{}
	}
	return &Migrator{
		userID:    cfg.UserID,
		store:     cfg.Store,
		keys:      cfg.Keys,
		batchSize: cfg.BatchSize,
		clock:     cfg.Clock,
		log:       cfg.Logger.With("migration"),
		audit:     cfg.Audit,
	}
}

// Options configures a migration run.
type Options struct {
	// DryRun counts what would be encrypted without writing anything.
	DryRun bool

	// Force runs the pass even when the status record says it completed.
	Force bool
}

// Result contains the outcome of a migration run.
type Result struct {
	// AlreadyCompleted is set when the run was skipped by the status record.
	AlreadyCompleted bool

	// TasksScanned is the number of own tasks examined.
	TasksScanned int

	// TasksMigrated is the number of tasks that had a field encrypted.
	TasksMigrated int

	// CommentsMigrated is the number of comments encrypted.
	CommentsMigrated int

	// Batches is the number of batched writes committed.
	Batches int

	// Skipped lists tasks left untouched because they could not be decoded
	// or a key was unavailable. The status record is not marked complete
	// while any remain.
	Skipped []string

	// DryRun indicates whether this was a dry-run.
	DryRun bool
}

// Status returns the user's migration status record and whether it exists.
func (m *Migrator) Status(ctx context.Context) (records.MigrationStatus, bool, error) {
	doc, err := m.store.Get(ctx, records.MigrationStatusCollection, m.userID)
	if kerrors.Is(err, kerrors.ErrNotFound) {
		return records.MigrationStatus{UserID: m.userID}, false, nil
	}
	if err != nil {
		return records.MigrationStatus{}, false, fmt.Errorf("reading migration status: %w", err)
	}
	status, err := records.DecodeMigrationStatus(m.userID, doc.Fields)
	if err != nil {
		return records.MigrationStatus{}, false, err
	}
	return status, true, nil
}

// Run encrypts every text, notes and comment field of the user's tasks that
// is still plaintext, then records the migration as complete. Owner comments
// are encrypted with the master key; comments by peers with the key the peer
// shares with the owner, so the peer can still read them. Notifications are
// left plaintext for the push pipeline.
//
// Returns ErrKeyUnavailable if the custodian is not ready.
func (m *Migrator) Run(ctx context.Context, opts Options) (*Result, error) {
	if !m.keys.Ready() {
		return nil, kerrors.ErrKeyUnavailable
	}

	if !opts.Force {
		status, _, err := m.Status(ctx)
		if err != nil {
			return nil, err
		}
		if status.Completed {
			m.log.Debugf("migration already completed at %s", status.MigratedAt)
			return &Result{AlreadyCompleted: true, DryRun: opts.DryRun}, nil
		}
	}

	q := store.NewQuery(records.TasksCollection).Where(store.Eq("userId", m.userID))
	docs, err := m.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	m.log.Infof("checking %d tasks", len(docs))

	result := &Result{TasksScanned: len(docs), DryRun: opts.DryRun}
	var pending []store.Write
	flush := func() error {
		if len(pending) == 0 || opts.DryRun {
			pending = nil
			return nil
		}
		if err := m.store.Batch(ctx, pending); err != nil {
			return fmt.Errorf("committing batch of %d tasks: %w", len(pending), err)
		}
		result.Batches++
		m.log.Debugf("committed batch of %d tasks", len(pending))
		pending = nil
		return nil
	}

	for _, doc := range docs {
		task, err := records.DecodeTask(doc.ID, doc.Fields)
		if err != nil {
			m.log.Warnf("skipping %s: %v", doc.ID, err)
			result.Skipped = append(result.Skipped, doc.ID)
			continue
		}
		updates, comments, err := m.encryptTask(ctx, task, opts.DryRun)
		if err != nil {
			m.log.Warnf("skipping %s: %v", doc.ID, err)
			result.Skipped = append(result.Skipped, doc.ID)
			continue
		}
		if len(updates) == 0 {
			continue
		}
		result.TasksMigrated++
		result.CommentsMigrated += comments
		pending = append(pending, store.Write{
			Kind:       store.WriteUpdate,
			Collection: records.TasksCollection,
			ID:         doc.ID,
			Fields:     updates,
		})
		if len(pending) >= m.batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if opts.DryRun {
		return result, nil
	}

	if len(result.Skipped) == 0 {
		status := records.MigrationStatus{
			Completed:     true,
			MigratedAt:    m.clock.Now().UTC(),
			TasksMigrated: result.TasksMigrated,
		}
		if err := m.store.Set(ctx, records.MigrationStatusCollection, m.userID, status.Fields(), true); err != nil {
			return nil, fmt.Errorf("writing migration status: %w", err)
		}
	}

	m.audit.Log(audit.Entry{Operation: audit.OpMigration, Count: result.TasksMigrated})
	m.log.Infof("migrated %d tasks and %d comments", result.TasksMigrated, result.CommentsMigrated)
	return result, nil
}

// encryptTask returns the field updates for t and the number of comments
// encrypted. No updates means the task is already encrypted. A dry run only
// marks the plaintext fields: no key is fetched or created.
func (m *Migrator) encryptTask(ctx context.Context, t records.Task, dryRun bool) (map[string]any, int, error) {
	if codec.IsEncrypted(t) {
		return nil, 0, nil
	}
	updates := map[string]any{}

	for field, value := range map[string]string{"text": t.Text, "notes": t.Notes} {
		if value == "" || envelope.LooksEncrypted(value) {
			continue
		}
		if dryRun {
			updates[field] = value
			continue
		}
		ct, err := m.keys.EncryptForSelf(value)
		if err != nil {
			return nil, 0, err
		}
		updates[field] = ct
	}

	encrypted := 0
	comments := make([]records.Comment, len(t.Comments))
	for i, c := range t.Comments {
		comments[i] = c
		if c.Text == "" || envelope.LooksEncrypted(c.Text) {
			continue
		}
		if dryRun {
			encrypted++
			continue
		}
		ct, err := m.encryptComment(ctx, c, t.UserID)
		if err != nil {
			return nil, 0, fmt.Errorf("comment %s: %w", c.ID, err)
		}
		comments[i].Text = ct
		encrypted++
	}
	if encrypted > 0 {
		updates["comments"] = records.CommentsValue(comments)
	}
	return updates, encrypted, nil
}

func (m *Migrator) encryptComment(ctx context.Context, c records.Comment, ownerID string) (string, error) {
	if c.UserID == ownerID {
		return m.keys.EncryptForSelf(c.Text)
	}
	k, err := m.keys.SharedKey(ctx, c.UserID)
	if err != nil {
		return "", err
	}
	return envelope.Encrypt(c.Text, k)
}
