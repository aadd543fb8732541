package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pacetech/docflow/internal/docflow/auth"
	"github.com/pacetech/docflow/internal/docflow/db"
	"github.com/pacetech/docflow/internal/docflow/docpath"
	"github.com/pacetech/docflow/internal/docflow/formtype"
	"github.com/pacetech/docflow/internal/docflow/remote"
	"github.com/pacetech/docflow/internal/docflow/render"
	"github.com/pacetech/docflow/internal/docflow/schema"
	"github.com/pacetech/docflow/internal/logging"
)

// SkipReason says why a SyncNow call did not run a pass.
type SkipReason string

const (
	SkipInFlight SkipReason = "in_flight"
	SkipOffline  SkipReason = "offline"
)

// Result summarizes one SyncNow call.
type Result struct {
	Attempted  int        `json:"attempted"`
	Successful int        `json:"successful"`
	Failed     int        `json:"failed"`
	Requeued   int        `json:"requeued,omitempty"`
	Skipped    bool       `json:"skipped,omitempty"`
	Reason     SkipReason `json:"reason,omitempty"`
}

// Summary is the user-facing one-line outcome of a pass.
func (r Result) Summary() string {
	switch {
	case r.Skipped:
		return fmt.Sprintf("sync skipped (%s)", r.Reason)
	case r.Attempted == 0:
		return "nothing to sync"
	case r.Failed == 0:
		return fmt.Sprintf("synced %d form(s)", r.Successful)
	case r.Successful == 0:
		return fmt.Sprintf("%d form(s) failed to sync", r.Failed)
	default:
		return fmt.Sprintf("synced %d form(s), %d failed", r.Successful, r.Failed)
	}
}

// Options configures an Engine.
type Options struct {
	// Submitter sends records to the remote. Required.
	Submitter remote.Submitter
	// Tokens supplies a bearer token per record. Required.
	Tokens auth.Provider
	// Renderer produces the attachment when a record has none embedded.
	// Nil submits without one.
	Renderer render.Renderer
	// FormTypes resolves form-type configuration. Defaults to the built-ins.
	FormTypes *formtype.Registry
	// Connectivity gates passes. Defaults to AlwaysOnline.
	Connectivity Connectivity
	// Indicator receives state changes. May be nil.
	Indicator Indicator
	// Session is the single-flight token. A private one is created when nil.
	Session *Session

	// Library and SitePath name the remote document location.
	Library  string
	SitePath string

	// RetryErrored re-queues error records at the start of each pass.
	RetryErrored bool
	// MaxAttempts caps automatic retries; 0 means unbounded.
	MaxAttempts int

	// Logger defaults to the "sync" component logger.
	Logger *zerolog.Logger
	// Clock stamps request metadata. Defaults to time.Now.
	Clock func() time.Time
}

// Engine runs sync passes against a Store.
type Engine struct {
	store     Store
	submitter remote.Submitter
	tokens    auth.Provider
	renderer  render.Renderer
	formTypes *formtype.Registry
	conn      Connectivity
	indicator Indicator
	session   *Session
	paths     docpath.Options

	retryErrored bool
	maxAttempts  int

	logger zerolog.Logger
	now    func() time.Time
}

// New creates an engine over store.
func New(store Store, opts Options) *Engine {
	e := &Engine{
		store:        store,
		submitter:    opts.Submitter,
		tokens:       opts.Tokens,
		renderer:     opts.Renderer,
		formTypes:    opts.FormTypes,
		conn:         opts.Connectivity,
		indicator:    opts.Indicator,
		session:      opts.Session,
		paths:        docpath.Options{Library: opts.Library, SitePath: opts.SitePath},
		retryErrored: opts.RetryErrored,
		maxAttempts:  opts.MaxAttempts,
		now:          opts.Clock,
	}

	if e.formTypes == nil {
		e.formTypes = formtype.Builtin()
	}
	if e.conn == nil {
		e.conn = AlwaysOnline
	}
	if e.session == nil {
		e.session = NewSession()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if opts.Logger != nil {
		e.logger = *opts.Logger
	} else {
		e.logger = logging.Component("sync")
	}

	return e
}

// InFlight reports whether a pass is running on this engine's session.
func (e *Engine) InFlight() bool {
	return e.session.InFlight()
}

// SyncNow runs one pass.
//
// It returns a skipped Result when a pass is already running or the remote is
// offline. Per-record failures are counted in the Result, never returned; the
// error is reserved for failures of the pass itself.
func (e *Engine) SyncNow(ctx context.Context) (Result, error) {
	if !e.session.TryAcquire() {
		e.logger.Debug().Msg("sync already in progress, skipping")
		return Result{Skipped: true, Reason: SkipInFlight}, nil
	}
	defer e.session.Release()

	if !e.conn.Online() {
		e.logger.Debug().Msg("offline, skipping sync")
		return Result{Skipped: true, Reason: SkipOffline}, nil
	}

	log := e.logger.With().Str("pass", uuid.NewString()).Logger()
	e.setIndicator(IndicatorSyncing)

	var res Result

	if e.retryErrored {
		n, err := e.store.RequeueErrored(ctx, e.maxAttempts)
		if err != nil {
			e.setIndicator(IndicatorError)
			return res, fmt.Errorf("failed to requeue errored records: %w", err)
		}
		if n > 0 {
			log.Info().Int("count", n).Msg("re-queued errored records")
		}
		res.Requeued = n
	}

	pending, err := e.store.GetPending(ctx)
	if err != nil {
		e.setIndicator(IndicatorError)
		return res, fmt.Errorf("failed to get pending records: %w", err)
	}

	if len(pending) == 0 {
		e.setIndicator(IndicatorOnline)
		e.complete(res)
		return res, nil
	}

	log.Info().Int("pending", len(pending)).Msg("starting sync pass")

	for _, rec := range pending {
		res.Attempted++
		if e.syncRecord(ctx, rec, log) {
			res.Successful++
		} else {
			res.Failed++
		}
	}

	if res.Failed > 0 {
		e.setIndicator(IndicatorError)
	} else {
		e.setIndicator(IndicatorOnline)
	}

	log.Info().
		Int("attempted", res.Attempted).
		Int("successful", res.Successful).
		Int("failed", res.Failed).
		Msg("sync pass complete")
	e.complete(res)

	return res, nil
}

// syncRecord attempts one record and writes the outcome back. It reports
// whether the remote accepted the record.
func (e *Engine) syncRecord(ctx context.Context, rec *schema.Record, log zerolog.Logger) bool {
	log = log.With().Int64("local_id", rec.LocalID).Str("form_type", rec.FormType).Logger()

	resp, err := e.submit(ctx, rec, log)
	if err != nil {
		log.Warn().Err(err).Msg("failed to sync record")

		uerr := e.store.UpdateStatus(ctx, rec.LocalID, schema.StatusError, db.Patch{LastError: err.Error()})
		e.logUpdateError(log, uerr)
		return false
	}

	uerr := e.store.UpdateStatus(ctx, rec.LocalID, schema.StatusSynced, db.Patch{
		RemoteID:      resp.ID,
		DocumentURL:   resp.PDFURL,
		SignatureURLs: resp.SignatureURLs,
	})
	if uerr != nil && !errors.Is(uerr, db.ErrNotFound) {
		// Accepted remotely but still pending locally; it is resent next pass.
		log.Error().Err(uerr).Str("remote_id", resp.ID).Msg("failed to record sync success")
		return false
	}
	e.logUpdateError(log, uerr)

	log.Info().Str("remote_id", resp.ID).Msg("synced record")
	return true
}

// submit performs the token, shape, render and submit steps for one record.
func (e *Engine) submit(ctx context.Context, rec *schema.Record, log zerolog.Logger) (*remote.SyncResponse, error) {
	token, err := e.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenAcquisition, err)
	}

	cfg, _ := e.formTypes.Get(rec.FormType)

	req, err := BuildRequest(rec, cfg, e.document(rec, cfg, log), e.paths, e.now())
	if err != nil {
		return nil, err
	}

	resp, err := e.submitter.Submit(ctx, token, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteSubmission, err)
	}
	return resp, nil
}

// document returns the attachment for rec, or nil. Render failures are logged
// and never fail the record.
func (e *Engine) document(rec *schema.Record, cfg *formtype.Config, log zerolog.Logger) *schema.Document {
	if rec.Document != nil {
		return rec.Document
	}
	if e.renderer == nil {
		return nil
	}

	doc, err := e.renderer.Render(rec.FormType, rec, cfg)
	if err != nil {
		log.Warn().Err(fmt.Errorf("%w: %w", ErrRender, err)).Msg("submitting without attachment")
		return nil
	}
	return doc
}

func (e *Engine) logUpdateError(log zerolog.Logger, err error) {
	switch {
	case err == nil:
	case errors.Is(err, db.ErrNotFound):
		log.Info().Msg("record deleted during sync, outcome dropped")
	default:
		log.Error().Err(err).Msg("failed to record sync outcome")
	}
}

func (e *Engine) setIndicator(state IndicatorState) {
	if e.indicator != nil {
		e.indicator.SetIndicator(state)
	}
}

func (e *Engine) complete(res Result) {
	if obs, ok := e.indicator.(ResultObserver); ok {
		obs.SyncComplete(res)
	}
}
