package credential

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"gorm.io/gorm"
)

var validTable = regexp.MustCompile(`^[A-Za-z0-9_\.]+$`)

// Repository stores certificate records. Active returns ErrNotRegistered
// when the client has no active record.
type Repository interface {
	Active(ctx context.Context, clientID int64) (*Record, error)
	// Supersede deactivates the client's active record, if any, and stores
	// rec as the new active one.
	Supersede(ctx context.Context, rec *Record) error
	// Deactivate retires the active record; it reports ErrNotRegistered
	// when there is none.
	Deactivate(ctx context.Context, clientID int64) error
}

type GormRepository struct {
	db    *gorm.DB
	table string
	now   func() time.Time
}

func NewGormRepository(db *gorm.DB, table string) (*GormRepository, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTable.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %s", table)
	}
	return &GormRepository{db: db, table: table, now: time.Now}, nil
}

func (r *GormRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).Table(r.table).AutoMigrate(&Record{})
}

func (r *GormRepository) Active(ctx context.Context, clientID int64) (*Record, error) {
	var rec Record
	err := r.db.WithContext(ctx).
		Table(r.table).
		Where("client_id = ? AND active = ?", clientID, true).
		Order("created_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("active certificate of client %d: %w", clientID, err)
	}
	return &rec, nil
}

func (r *GormRepository) Supersede(ctx context.Context, rec *Record) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.retire(tx, rec.ClientID); err != nil {
			return err
		}
		rec.Active = true
		if err := tx.Table(r.table).Create(rec).Error; err != nil {
			return fmt.Errorf("store certificate of client %d: %w", rec.ClientID, err)
		}
		return nil
	})
}

func (r *GormRepository) Deactivate(ctx context.Context, clientID int64) error {
	res := r.db.WithContext(ctx).
		Table(r.table).
		Where("client_id = ? AND active = ?", clientID, true).
		Updates(map[string]any{"active": false, "superseded_at": r.now()})
	if res.Error != nil {
		return fmt.Errorf("deactivate certificate of client %d: %w", clientID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotRegistered
	}
	return nil
}

func (r *GormRepository) retire(tx *gorm.DB, clientID int64) error {
	err := tx.Table(r.table).
		Where("client_id = ? AND active = ?", clientID, true).
		Updates(map[string]any{"active": false, "superseded_at": r.now()}).Error
	if err != nil {
		return fmt.Errorf("retire certificate of client %d: %w", clientID, err)
	}
	return nil
}

// MemoryRepository is an in-process Repository. It keeps superseded
// records, as the SQL one does.
type MemoryRepository struct {
	mu      sync.RWMutex
	records []*Record
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{now: time.Now}
}

func (m *MemoryRepository) Active(_ context.Context, clientID int64) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if rec := m.records[i]; rec.ClientID == clientID && rec.Active {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrNotRegistered
}

func (m *MemoryRepository) Supersede(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retire(rec.ClientID)
	rec.Active = true
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}
	cp := *rec
	m.records = append(m.records, &cp)
	return nil
}

func (m *MemoryRepository) Deactivate(_ context.Context, clientID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.retire(clientID) == 0 {
		return ErrNotRegistered
	}
	return nil
}

// History returns every record of the client, oldest first.
func (m *MemoryRepository) History(clientID int64) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, rec := range m.records {
		if rec.ClientID == clientID {
			out = append(out, *rec)
		}
	}
	return out
}

func (m *MemoryRepository) retire(clientID int64) int {
	n := 0
	now := m.now()
	for _, rec := range m.records {
		if rec.ClientID == clientID && rec.Active {
			rec.Active = false
			rec.SupersededAt = &now
			n++
		}
	}
	return n
}
