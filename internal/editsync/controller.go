// Package editsync drives a staging session through submission:
//
//	Idle -> Submitting -> cleared (success) | Failed (session kept)
//
// Submission is split into BeginSubmit, Transmit and FinishSubmit so an
// event loop can run the network step elsewhere and report back. Only
// Transmit does I/O; session state changes happen in the other two.
package editsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"wafer-defects/internal/api"
	"wafer-defects/internal/encode"
	"wafer-defects/internal/logging"
	"wafer-defects/internal/model"
	"wafer-defects/internal/mutate"
	"wafer-defects/internal/staging"
)

var (
	ErrNoSession     = errors.New("no edit session")
	ErrOperationBusy = errors.New("operation already in progress")
)

// Backend is the part of the REST API the controller writes to.
type Backend interface {
	CreateDefect(ctx context.Context, p encode.Payload) error
	UpdateDefect(ctx context.Context, id int, p encode.Payload) error
	DeleteDefect(ctx context.Context, id int) error
	AddMode(ctx context.Context, defectID int, p encode.Payload) error
	UpdateMode(ctx context.Context, modeID int, p encode.Payload) error
	DeleteMode(ctx context.Context, modeID int) error
}

// Reloader reissues the listing query after a successful write.
type Reloader interface {
	Reload(ctx context.Context) error
}

type Controller struct {
	backend  Backend
	reloader Reloader
	log      *logging.Logger

	mu       sync.Mutex
	session  *staging.Session
	inflight map[string]bool
}

type Option func(*Controller)

func WithReloader(r Reloader) Option {
	return func(c *Controller) { c.reloader = r }
}

func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

func New(b Backend, opts ...Option) *Controller {
	c := &Controller{backend: b, log: logging.Nop(), inflight: map[string]bool{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open starts an edit session seeded from a listed defect.
func (c *Controller) Open(d model.Defect) (staging.Session, error) {
	return c.install(staging.InitFromPersisted(d))
}

// OpenNew starts an upload session.
func (c *Controller) OpenNew() (staging.Session, error) {
	return c.install(staging.InitEmpty())
}

func (c *Controller) install(s staging.Session) (staging.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		if c.session.Submitting() {
			return staging.Session{}, mutate.ErrSessionBusy
		}
		c.session.Release()
	}
	c.session = &s
	c.log.Debug("session opened", "session", s.ID, "flow", string(s.Flow), "defect", s.Defect.Identity.String())
	return s, nil
}

// Cancel discards the session and its staged files.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ErrNoSession
	}
	if c.session.Submitting() {
		return mutate.ErrSessionBusy
	}
	c.session.Release()
	c.log.Debug("session cancelled", "session", c.session.ID)
	c.session = nil
	return nil
}

// Session returns the current snapshot.
func (c *Controller) Session() (staging.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return staging.Session{}, false
	}
	return *c.session, true
}

// Apply runs op on the current snapshot and installs the result. Staged
// files the new snapshot no longer references are released.
func (c *Controller) Apply(op mutate.Op) (mutate.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return mutate.Result{}, ErrNoSession
	}
	prev := *c.session
	res, err := op(prev)
	if err != nil {
		return mutate.Result{Session: prev}, err
	}
	if !res.Changed {
		return res, nil
	}
	for _, f := range staging.Superseded(prev, res.Session) {
		f.Release()
	}
	next := res.Session
	c.session = &next
	return res, nil
}

// Submission is an encoded session on its way to the backend.
type Submission struct {
	SessionID string
	Flow      staging.Flow
	DefectID  int
	Payload   encode.Payload
}

func (s Submission) Describe() string {
	if s.Flow == staging.FlowUpload {
		return "POST /admin/upload"
	}
	return fmt.Sprintf("PUT /defect/%d", s.DefectID)
}

// BeginSubmit validates and encodes the session and marks it Submitting.
// On a validation error nothing changes and the backend is not contacted.
func (c *Controller) BeginSubmit() (Submission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Submission{}, ErrNoSession
	}
	s := *c.session
	if s.Submitting() {
		return Submission{}, mutate.ErrSessionBusy
	}
	if err := s.Validate(); err != nil {
		return Submission{}, err
	}
	p, err := encode.EncodeDefect(s)
	if err != nil {
		return Submission{}, err
	}
	sub := Submission{SessionID: s.ID, Flow: s.Flow, Payload: p}
	if id, ok := s.Defect.Identity.ID(); ok {
		sub.DefectID = id
	}
	s.Status = staging.StatusSubmitting
	s.LastError = ""
	c.session = &s
	c.log.Info("submit started", "session", s.ID, "target", sub.Describe(), "parts", len(p.Parts))
	return sub, nil
}

// Transmit sends sub. It touches no controller state.
func (c *Controller) Transmit(ctx context.Context, sub Submission) error {
	if sub.Flow == staging.FlowUpload {
		return c.backend.CreateDefect(ctx, sub.Payload)
	}
	return c.backend.UpdateDefect(ctx, sub.DefectID, sub.Payload)
}

// Outcome is the result of a finished submission.
type Outcome struct {
	Cleared bool
	// Message is the single line to show on failure.
	Message string
}

// FinishSubmit records the result of Transmit. Success discards the session
// and releases its files; failure keeps every staged edit for a retry.
func (c *Controller) FinishSubmit(sub Submission, err error) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.ID != sub.SessionID {
		// The session is gone; nothing to update.
		return Outcome{Cleared: err == nil, Message: Message(err)}
	}
	if err == nil {
		c.session.Release()
		c.log.Info("submit succeeded", "session", sub.SessionID, "target", sub.Describe())
		c.session = nil
		return Outcome{Cleared: true}
	}
	s := *c.session
	s.Status = staging.StatusFailed
	s.LastError = Message(err)
	c.session = &s
	c.log.Warn("submit failed", "session", sub.SessionID, "target", sub.Describe(), "error", err.Error())
	return Outcome{Message: s.LastError}
}

// Submit runs the whole submission and, when a Reloader is registered,
// reloads the listing on success.
func (c *Controller) Submit(ctx context.Context) error {
	sub, err := c.BeginSubmit()
	if err != nil {
		return err
	}
	err = c.Transmit(ctx, sub)
	c.FinishSubmit(sub, err)
	if err != nil {
		return err
	}
	c.Reload(ctx)
	return nil
}

// Reload asks the listing to reissue its query. Listing failures show up in
// the listing itself.
func (c *Controller) Reload(ctx context.Context) {
	if c.reloader == nil {
		return
	}
	if err := c.reloader.Reload(ctx); err != nil {
		c.log.Warn("reload failed", "error", err.Error())
	}
}

// Message is the user-facing line for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var te *api.TransportError
	if errors.As(err, &te) {
		return te.UserMessage()
	}
	return err.Error()
}
