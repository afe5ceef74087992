package orchestrator

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hamshmas/personal-rehabilitation-docs/document"
	"github.com/hamshmas/personal-rehabilitation-docs/gateway"
	"github.com/hamshmas/personal-rehabilitation-docs/vault"
)

// BatchRequest issues every outstanding auto-issuable document of a case
// for one individual.
type BatchRequest struct {
	CaseID              int64
	ClientID            int64
	Name                string
	IdentityRef         vault.EncryptedBlob
	Options             gateway.Options
	CertificatePassword string
	RequestedBy         string
}

type BatchItem struct {
	DocumentType document.Type
	ArtifactID   *uuid.UUID
	ErrorCode    string
	ErrorMessage string
	Err          error
}

type BatchResult struct {
	Succeeded []BatchItem
	Failed    []BatchItem
}

// BatchIssue runs Issue for each required document that is neither
// COMPLETED nor NOT_REQUIRED and can be issued automatically. Items run
// concurrently and fail independently; both lists are sorted by document
// type. The error is non-nil only when the case's documents cannot be
// listed.
func (o *Orchestrator) BatchIssue(ctx context.Context, req BatchRequest) (BatchResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.BatchIssue", trace.WithAttributes(
		attribute.Int64("case_id", req.CaseID),
	))
	defer span.End()

	pending, err := o.pending(ctx, req.CaseID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing required documents")
		return BatchResult{}, fmt.Errorf("orchestrator: batch case %d: %w", req.CaseID, err)
	}
	o.metrics.ObserveBatch(len(pending))

	var (
		mu  sync.Mutex
		out BatchResult
		g   errgroup.Group
	)
	g.SetLimit(o.concurrency)
	for _, dt := range pending {
		g.Go(func() error {
			res := o.Issue(ctx, IssuanceRequest{
				CaseID:              req.CaseID,
				ClientID:            req.ClientID,
				DocumentType:        dt,
				Name:                req.Name,
				IdentityRef:         req.IdentityRef,
				Options:             req.Options,
				CertificatePassword: req.CertificatePassword,
				RequestedBy:         req.RequestedBy,
			})
			item := BatchItem{
				DocumentType: dt,
				ArtifactID:   res.ArtifactID,
				ErrorCode:    res.ErrorCode,
				ErrorMessage: res.ErrorMessage,
				Err:          res.Err,
			}
			mu.Lock()
			defer mu.Unlock()
			if res.Success {
				out.Succeeded = append(out.Succeeded, item)
			} else {
				out.Failed = append(out.Failed, item)
			}
			return nil
		})
	}
	_ = g.Wait()

	byType := func(a, b BatchItem) int { return cmp.Compare(a.DocumentType, b.DocumentType) }
	slices.SortFunc(out.Succeeded, byType)
	slices.SortFunc(out.Failed, byType)

	span.SetAttributes(
		attribute.Int("succeeded", len(out.Succeeded)),
		attribute.Int("failed", len(out.Failed)),
	)
	o.log.WithFields(logrus.Fields{
		"case_id":   req.CaseID,
		"succeeded": len(out.Succeeded),
		"failed":    len(out.Failed),
	}).Info("batch issuance finished")
	return out, nil
}

func (o *Orchestrator) pending(ctx context.Context, caseID int64) ([]document.Type, error) {
	docs, err := o.statuses.ListRequired(ctx, caseID)
	if err != nil {
		return nil, err
	}
	cat := o.gateway.Catalog()
	var out []document.Type
	for _, rd := range docs {
		if rd.Status == StatusCompleted || rd.Status == StatusNotRequired {
			continue
		}
		if cat.AutoIssuable(rd.DocumentType) {
			out = append(out, rd.DocumentType)
		}
	}
	return out, nil
}

// MissingDocument is a required document not yet obtained.
type MissingDocument struct {
	DocumentType document.Type `json:"document_type"`
	Label        string        `json:"label"`
	Status       Status        `json:"status"`
	AutoIssuable bool          `json:"auto_issuable"`
	GuideURL     string        `json:"guide_url,omitempty"`
}

// MissingDocuments lists the case's required documents that are neither
// COMPLETED nor NOT_REQUIRED, sorted by document type.
func (o *Orchestrator) MissingDocuments(ctx context.Context, caseID int64) ([]MissingDocument, error) {
	docs, err := o.statuses.ListRequired(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: missing documents case %d: %w", caseID, err)
	}
	cat := o.gateway.Catalog()
	out := make([]MissingDocument, 0, len(docs))
	for _, rd := range docs {
		if rd.Status == StatusCompleted || rd.Status == StatusNotRequired {
			continue
		}
		guide, _ := rd.DocumentType.GuideURL()
		out = append(out, MissingDocument{
			DocumentType: rd.DocumentType,
			Label:        rd.DocumentType.Label(),
			Status:       rd.Status,
			AutoIssuable: cat.AutoIssuable(rd.DocumentType),
			GuideURL:     guide,
		})
	}
	slices.SortFunc(out, func(a, b MissingDocument) int { return cmp.Compare(a.DocumentType, b.DocumentType) })
	return out, nil
}
