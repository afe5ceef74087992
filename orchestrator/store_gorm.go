package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hamshmas/personal-rehabilitation-docs/document"
)

// GormStore keeps required documents and artifacts in SQL. Status changes
// are single conditional UPDATEs so they stay atomic across processes.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(Models()...)
}

func (s *GormStore) Seed(ctx context.Context, caseID int64, types ...document.Type) error {
	if len(types) == 0 {
		return nil
	}
	now := s.now()
	rows := make([]RequiredDocument, 0, len(types))
	for _, dt := range types {
		if !dt.Valid() {
			return fmt.Errorf("seed case %d: unknown document type %q", caseID, dt)
		}
		rows = append(rows, RequiredDocument{
			ID: uuid.New(), CaseID: caseID, DocumentType: dt,
			IsRequired: true, Status: StatusNotStarted,
			CreatedAt: now, UpdatedAt: now,
		})
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "case_id"}, {Name: "document_type"}}, DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("seed case %d: %w", caseID, err)
	}
	return nil
}

func (s *GormStore) Find(ctx context.Context, caseID int64, dt document.Type) (*RequiredDocument, error) {
	var rd RequiredDocument
	err := s.db.WithContext(ctx).
		Where("case_id = ? AND document_type = ?", caseID, dt).
		First(&rd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find case %d %s: %w", caseID, dt, err)
	}
	return &rd, nil
}

func (s *GormStore) ListRequired(ctx context.Context, caseID int64) ([]RequiredDocument, error) {
	var out []RequiredDocument
	err := s.db.WithContext(ctx).
		Where("case_id = ? AND is_required = ?", caseID, true).
		Order("document_type").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list case %d: %w", caseID, err)
	}
	return out, nil
}

func (s *GormStore) Begin(ctx context.Context, caseID int64, dt document.Type) error {
	return s.apply(ctx, caseID, dt, EventBegin, nil)
}

func (s *GormStore) Complete(ctx context.Context, caseID int64, dt document.Type, artifactID uuid.UUID) error {
	return s.apply(ctx, caseID, dt, EventSucceed, map[string]any{"artifact_id": artifactID})
}

func (s *GormStore) Revert(ctx context.Context, caseID int64, dt document.Type) error {
	err := s.apply(ctx, caseID, dt, EventFail, nil)
	if errors.Is(err, ErrInvalidTransition) {
		return nil
	}
	return err
}

// Reset is the manual override back to NOT_STARTED. It detaches any artifact.
func (s *GormStore) Reset(ctx context.Context, caseID int64, dt document.Type) error {
	return s.apply(ctx, caseID, dt, EventReset, map[string]any{"artifact_id": nil})
}

func (s *GormStore) apply(ctx context.Context, caseID int64, dt document.Type, ev Event, extra map[string]any) error {
	from := sources(ev)
	// every event has a single target state
	to, err := Transition(from[0], ev)
	if err != nil {
		return err
	}
	updates := map[string]any{"status": to, "updated_at": s.now()}
	for k, v := range extra {
		updates[k] = v
	}
	res := s.db.WithContext(ctx).Model(&RequiredDocument{}).
		Where("case_id = ? AND document_type = ? AND status IN ?", caseID, dt, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("%s case %d %s: %w", ev, caseID, dt, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// nothing matched: report why
	rd, err := s.Find(ctx, caseID, dt)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, rd.Status)
}

func (s *GormStore) SaveArtifact(ctx context.Context, a *Artifact) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("save artifact %s: %w", a.ID, err)
	}
	return nil
}

func (s *GormStore) FindArtifact(ctx context.Context, id uuid.UUID) (*Artifact, error) {
	var a Artifact
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find artifact %s: %w", id, err)
	}
	return &a, nil
}
