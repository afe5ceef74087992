package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hamshmas/personal-rehabilitation-docs/document"
	"github.com/hamshmas/personal-rehabilitation-docs/gateway"
	"github.com/hamshmas/personal-rehabilitation-docs/vault"
)

const (
	tracerName         = "github.com/hamshmas/personal-rehabilitation-docs/orchestrator"
	defaultConcurrency = 4
	cleanupTimeout     = 10 * time.Second
	apiSource          = "hyphen"
)

// IdentityDecrypter opens stored identity numbers; *vault.Vault satisfies it.
type IdentityDecrypter interface {
	Decrypt(blob vault.EncryptedBlob) (string, error)
}

// Issuer performs issuance calls; *gateway.Client satisfies it.
type Issuer interface {
	Call(ctx context.Context, req gateway.Request) (*gateway.Result, error)
	Catalog() *gateway.Catalog
}

// CertificateSource supplies a client's registered certificate for
// certificate-file authentication.
type CertificateSource interface {
	Material(ctx context.Context, clientID int64, password string) (*gateway.CertificateMaterial, error)
}

type Dependencies struct {
	Identities IdentityDecrypter
	Gateway    Issuer
	Statuses   StatusStore
	Artifacts  ArtifactStore
	// Certificates is optional; without it CERT issuance needs
	// Options.Certificate filled in by the caller.
	Certificates CertificateSource
}

type Option func(*Orchestrator)

func WithLogger(l logrus.FieldLogger) Option { return func(o *Orchestrator) { o.log = l } }

func WithMetrics(m *Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

func WithTracer(t trace.Tracer) Option { return func(o *Orchestrator) { o.tracer = t } }

// WithConcurrency bounds the parallel Issue calls of one BatchIssue.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithRetry retries retryable gateway failures up to attempts calls in
// total, waiting backoff, 2*backoff, ... between them.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(o *Orchestrator) {
		if attempts > 0 {
			o.attempts = attempts
		}
		if backoff >= 0 {
			o.backoff = backoff
		}
	}
}

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// Orchestrator drives the required-document state machine around
// issuance calls.
type Orchestrator struct {
	identities   IdentityDecrypter
	gateway      Issuer
	statuses     StatusStore
	artifacts    ArtifactStore
	certificates CertificateSource

	log         logrus.FieldLogger
	metrics     *Metrics
	tracer      trace.Tracer
	concurrency int
	attempts    int
	backoff     time.Duration
	now         func() time.Time

	locks *keyLocks
}

func New(deps Dependencies, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Identities == nil:
		return nil, errors.New("orchestrator: identity decrypter is required")
	case deps.Gateway == nil:
		return nil, errors.New("orchestrator: gateway is required")
	case deps.Statuses == nil:
		return nil, errors.New("orchestrator: status store is required")
	case deps.Artifacts == nil:
		return nil, errors.New("orchestrator: artifact store is required")
	}
	o := &Orchestrator{
		identities:   deps.Identities,
		gateway:      deps.Gateway,
		statuses:     deps.Statuses,
		artifacts:    deps.Artifacts,
		certificates: deps.Certificates,
		log:          logrus.StandardLogger(),
		tracer:       otel.Tracer(tracerName),
		concurrency:  defaultConcurrency,
		attempts:     1,
		now:          time.Now,
		locks:        newKeyLocks(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.WithField("component", "orchestrator")
	return o, nil
}

// IssuanceRequest asks for one document of a case. IdentityRef is the
// vault-encrypted identity number; it is decrypted only for the call.
type IssuanceRequest struct {
	CaseID       int64
	ClientID     int64
	DocumentType document.Type
	Name         string
	IdentityRef  vault.EncryptedBlob
	Options      gateway.Options
	// CertificatePassword unlocks the client's registered certificate when
	// Options.CertType is CERT.
	CertificatePassword string
	RequestedBy         string
}

// Result is the outcome of Issue. On failure Err is an *OrchestrationError
// and ErrorMessage is suitable for display.
type Result struct {
	DocumentType document.Type
	Success      bool
	ArtifactID   *uuid.UUID
	Artifact     json.RawMessage
	RawResponse  json.RawMessage
	ErrorCode    string
	ErrorMessage string
	Err          error
}

// Issue requests one document and records the outcome. It never returns
// with the document IN_PROGRESS: any failure, panic or cancellation after
// the entry transition reverts it to NOT_STARTED.
func (o *Orchestrator) Issue(ctx context.Context, req IssuanceRequest) (res Result) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.Issue", trace.WithAttributes(
		attribute.Int64("case_id", req.CaseID),
		attribute.String("document_type", string(req.DocumentType)),
	))
	defer span.End()

	start := o.now()
	done := o.metrics.trackInFlight()
	var stage Stage
	log := o.log.WithFields(logrus.Fields{"case_id": req.CaseID, "document_type": req.DocumentType})
	fail := func(err error) Result {
		oe := &OrchestrationError{CaseID: req.CaseID, DocumentType: req.DocumentType, Stage: stage, Err: err}
		log.WithError(err).WithField("stage", stage).Warn("issuance failed")
		return Result{
			DocumentType: req.DocumentType,
			ErrorCode:    gateway.GetCode(err),
			ErrorMessage: userMessage(err),
			Err:          oe,
		}
	}

	// runs last: the status revert below has already happened when a
	// panic reaches here
	defer func() {
		if r := recover(); r != nil {
			log.WithField("stage", stage).Errorf("issuance panicked: %v", r)
			res = fail(fmt.Errorf("panic: %v", r))
		}
		done()
		outcome := "success"
		if !res.Success {
			outcome = string(stage)
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.ErrorMessage)
		}
		o.metrics.ObserveIssue(string(req.DocumentType), outcome, o.now().Sub(start))
	}()

	stage = StageLock
	release, err := o.locks.acquire(ctx, docKey{req.CaseID, req.DocumentType})
	if err != nil {
		return fail(err)
	}
	defer release()

	stage = StageLookup
	rd, err := o.statuses.Find(ctx, req.CaseID, req.DocumentType)
	if err != nil {
		return fail(err)
	}
	if _, err := Transition(rd.Status, EventBegin); err != nil {
		return fail(err)
	}
	if _, ok := o.gateway.Catalog().Lookup(req.DocumentType); !ok {
		return fail(&gateway.Error{Kind: gateway.KindUnsupportedDocument, DocumentType: req.DocumentType})
	}

	stage = StageBegin
	if err := o.statuses.Begin(ctx, req.CaseID, req.DocumentType); err != nil {
		return fail(err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if err := o.statuses.Revert(cctx, req.CaseID, req.DocumentType); err != nil {
			log.WithError(err).Error("reverting status")
		}
	}()

	stage = StageDecrypt
	identity, err := o.identities.Decrypt(req.IdentityRef)
	if err != nil {
		return fail(err)
	}

	opts := req.Options
	if opts.CertType == gateway.CertTypeCertFile && opts.Certificate == nil {
		stage = StageCertificate
		if o.certificates == nil {
			return fail(errors.New("no certificate source configured"))
		}
		mat, err := o.certificates.Material(ctx, req.ClientID, req.CertificatePassword)
		if err != nil {
			return fail(err)
		}
		opts.Certificate = mat
	}

	stage = StageGateway
	out, err := o.call(ctx, gateway.Request{
		DocumentType: req.DocumentType,
		Name:         req.Name,
		Identity:     identity,
		Options:      opts,
	})
	if err != nil {
		return fail(err)
	}

	stage = StagePersist
	payload, err := NewJSON(out.Artifact)
	if err != nil {
		return fail(err)
	}
	envelope, err := NewJSON(out.RawResponse)
	if err != nil {
		return fail(err)
	}
	now := o.now()
	art := &Artifact{
		ID:           uuid.New(),
		CaseID:       req.CaseID,
		DocumentType: req.DocumentType,
		FileName:     fmt.Sprintf("%s_%s.json", now.Format("20060102_150405"), req.DocumentType),
		MimeType:     "application/json",
		APISource:    apiSource,
		Payload:      payload,
		RawResponse:  envelope,
		RequestedBy:  req.RequestedBy,
		IssuedAt:     now,
	}
	if err := o.artifacts.SaveArtifact(ctx, art); err != nil {
		return fail(err)
	}
	if err := o.statuses.Complete(ctx, req.CaseID, req.DocumentType, art.ID); err != nil {
		return fail(err)
	}
	committed = true

	log.WithField("artifact_id", art.ID).Info("document issued")
	span.SetAttributes(attribute.String("artifact_id", art.ID.String()))
	return Result{
		DocumentType: req.DocumentType,
		Success:      true,
		ArtifactID:   &art.ID,
		Artifact:     out.Artifact,
		RawResponse:  out.RawResponse,
	}
}

func (o *Orchestrator) call(ctx context.Context, req gateway.Request) (*gateway.Result, error) {
	for attempt := 1; ; attempt++ {
		res, err := o.gateway.Call(ctx, req)
		if err == nil || attempt >= o.attempts || !gateway.IsRetryable(err) {
			return res, err
		}
		wait := o.backoff * time.Duration(attempt)
		o.log.WithFields(logrus.Fields{
			"document_type": req.DocumentType,
			"attempt":       attempt,
			"wait":          wait,
		}).WithError(err).Info("retrying issuance call")
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(wait):
		}
	}
}
