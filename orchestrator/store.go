package orchestrator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamshmas/personal-rehabilitation-docs/document"
)

var (
	ErrNotFound         = errors.New("orchestrator: required document not found")
	ErrArtifactNotFound = errors.New("orchestrator: artifact not found")
)

// StatusStore persists required-document status. Begin, Complete and Revert
// are conditional on the current status so concurrent writers cannot skip a
// state.
type StatusStore interface {
	Find(ctx context.Context, caseID int64, dt document.Type) (*RequiredDocument, error)
	ListRequired(ctx context.Context, caseID int64) ([]RequiredDocument, error)
	Begin(ctx context.Context, caseID int64, dt document.Type) error
	Complete(ctx context.Context, caseID int64, dt document.Type, artifactID uuid.UUID) error
	// Revert moves an IN_PROGRESS record back to NOT_STARTED and is a no-op
	// for any other status.
	Revert(ctx context.Context, caseID int64, dt document.Type) error
}

type ArtifactStore interface {
	SaveArtifact(ctx context.Context, a *Artifact) error
}

type docKey struct {
	caseID int64
	dt     document.Type
}

// MemoryStore is an in-process StatusStore and ArtifactStore.
type MemoryStore struct {
	mu        sync.RWMutex
	docs      map[docKey]*RequiredDocument
	artifacts map[uuid.UUID]*Artifact
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:      make(map[docKey]*RequiredDocument),
		artifacts: make(map[uuid.UUID]*Artifact),
		now:       time.Now,
	}
}

// Put stores a copy of rd as is.
func (m *MemoryStore) Put(rd *RequiredDocument) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rd
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	m.docs[docKey{cp.CaseID, cp.DocumentType}] = &cp
}

// Seed adds NOT_STARTED required entries for types not yet present.
func (m *MemoryStore) Seed(_ context.Context, caseID int64, types ...document.Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, dt := range types {
		if !dt.Valid() {
			return fmt.Errorf("seed case %d: unknown document type %q", caseID, dt)
		}
		k := docKey{caseID, dt}
		if _, ok := m.docs[k]; ok {
			continue
		}
		m.docs[k] = &RequiredDocument{
			ID: uuid.New(), CaseID: caseID, DocumentType: dt,
			IsRequired: true, Status: StatusNotStarted,
			CreatedAt: now, UpdatedAt: now,
		}
	}
	return nil
}

func (m *MemoryStore) Find(_ context.Context, caseID int64, dt document.Type) (*RequiredDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rd, ok := m.docs[docKey{caseID, dt}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rd
	return &cp, nil
}

func (m *MemoryStore) ListRequired(_ context.Context, caseID int64) ([]RequiredDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RequiredDocument
	for k, rd := range m.docs {
		if k.caseID == caseID && rd.IsRequired {
			out = append(out, *rd)
		}
	}
	slices.SortFunc(out, func(a, b RequiredDocument) int {
		return cmp.Compare(a.DocumentType, b.DocumentType)
	})
	return out, nil
}

func (m *MemoryStore) Begin(_ context.Context, caseID int64, dt document.Type) error {
	return m.apply(caseID, dt, EventBegin, nil)
}

func (m *MemoryStore) Complete(_ context.Context, caseID int64, dt document.Type, artifactID uuid.UUID) error {
	return m.apply(caseID, dt, EventSucceed, &artifactID)
}

func (m *MemoryStore) Revert(_ context.Context, caseID int64, dt document.Type) error {
	err := m.apply(caseID, dt, EventFail, nil)
	if errors.Is(err, ErrInvalidTransition) {
		return nil
	}
	return err
}

// Reset is the manual override back to NOT_STARTED. It detaches any artifact.
func (m *MemoryStore) Reset(_ context.Context, caseID int64, dt document.Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rd, ok := m.docs[docKey{caseID, dt}]
	if !ok {
		return ErrNotFound
	}
	to, err := Transition(rd.Status, EventReset)
	if err != nil {
		return err
	}
	rd.Status, rd.ArtifactID, rd.UpdatedAt = to, nil, m.now()
	return nil
}

func (m *MemoryStore) apply(caseID int64, dt document.Type, ev Event, artifactID *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rd, ok := m.docs[docKey{caseID, dt}]
	if !ok {
		return ErrNotFound
	}
	to, err := Transition(rd.Status, ev)
	if err != nil {
		return err
	}
	rd.Status, rd.UpdatedAt = to, m.now()
	if artifactID != nil {
		id := *artifactID
		rd.ArtifactID = &id
	}
	return nil
}

func (m *MemoryStore) SaveArtifact(_ context.Context, a *Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.now()
	}
	cp := *a
	m.artifacts[a.ID] = &cp
	return nil
}

func (m *MemoryStore) FindArtifact(_ context.Context, id uuid.UUID) (*Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.artifacts[id]
	if !ok {
		return nil, ErrArtifactNotFound
	}
	cp := *a
	return &cp, nil
}
