package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Outcome values recorded for terminal results.
const (
	OutcomeOK       = "ok"
	OutcomeInfo     = "info"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Entry is one terminal outcome of an inbound event.
type Entry struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	DeliveryID    string    `gorm:"index"`
	Kind          string    `gorm:"index"`
	ParticipantID string    `gorm:"index"`
	BattleID      string    `gorm:"index"`
	Outcome       string
	Detail        string
	CreatedAt     time.Time `gorm:"index"`
}

// TableName pins the table name.
func (Entry) TableName() string { return "journal_entries" }

// BeforeCreate assigns an id when absent.
func (e *Entry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Filter narrows List and Export queries. Zero fields are ignored.
type Filter struct {
	Since    time.Time
	Until    time.Time
	BattleID string
	Kind     string
	Limit    int
}

// Journal appends and queries entries.
type Journal struct {
	db    *gorm.DB
	clock func() time.Time
}

// Option customises a journal.
type Option func(*Journal)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(j *Journal) {
		if clock != nil {
			j.clock = clock
		}
	}
}

// Open connects to the configured database and migrates the schema.
// Supported drivers are "sqlite" and "postgres".
func Open(driver, dsn string, opts ...Option) (*Journal, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "":
		if strings.TrimSpace(dsn) == "" {
			return nil, errors.New("journal: sqlite dsn required")
		}
		dialector = sqlite.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", driver, err)
	}
	return New(db, opts...)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB, opts ...Option) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: db required")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	j := &Journal{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(j)
		}
	}
	return j, nil
}

// Record appends an entry, stamping CreatedAt when unset.
func (j *Journal) Record(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = j.clock().UTC()
	}
	if err := j.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// List returns entries matching filter, oldest first.
func (j *Journal) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := j.db.WithContext(ctx).Model(&Entry{})
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		query = query.Where("created_at < ?", filter.Until.UTC())
	}
	if id := strings.TrimSpace(filter.BattleID); id != "" {
		query = query.Where("battle_id = ?", id)
	}
	if kind := strings.TrimSpace(filter.Kind); kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var entries []Entry
	if err := query.Order("created_at asc").Order("id asc").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	return entries, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
