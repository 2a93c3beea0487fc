package editsync

import (
	"context"
	"fmt"
	"strings"

	"wafer-defects/internal/encode"
	"wafer-defects/internal/staging"
)

// Direct operations write one record outside an edit session. They have no
// staged data to keep; a failure is just an error. At most one operation
// per target runs at a time. They do not reload the listing.

func (c *Controller) begin(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[key] {
		return fmt.Errorf("%s: %w", key, ErrOperationBusy)
	}
	c.inflight[key] = true
	return nil
}

func (c *Controller) end(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, key)
}

// Busy reports whether a direct operation on key is in flight.
func (c *Controller) Busy(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight[key]
}

func DefectKey(id int) string { return fmt.Sprintf("defect/%d", id) }
func ModeKey(id int) string   { return fmt.Sprintf("mode/%d", id) }

func (c *Controller) direct(key, what string, call func() error) error {
	if err := c.begin(key); err != nil {
		return err
	}
	defer c.end(key)
	if err := call(); err != nil {
		c.log.Warn(what+" failed", "target", key, "error", err.Error())
		return err
	}
	c.log.Info(what, "target", key)
	return nil
}

// DeleteDefect deletes a defect and its modes. It leaves the session and
// the listing alone; callers follow up with ForgetDefect and a reload.
func (c *Controller) DeleteDefect(ctx context.Context, id int) error {
	return c.direct(DefectKey(id), "defect deleted", func() error {
		return c.backend.DeleteDefect(ctx, id)
	})
}

// ForgetDefect discards an idle session editing defect id, releasing its
// staged files. It reports whether a session was discarded.
func (c *Controller) ForgetDefect(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.Submitting() {
		return false
	}
	if sid, ok := c.session.Defect.Identity.ID(); !ok || sid != id {
		return false
	}
	c.session.Release()
	c.log.Debug("session discarded", "session", c.session.ID, "defect", id)
	c.session = nil
	return true
}

func (c *Controller) DeleteMode(ctx context.Context, modeID int) error {
	return c.direct(ModeKey(modeID), "mode deleted", func() error {
		return c.backend.DeleteMode(ctx, modeID)
	})
}

// Rename sends the minimal defect_name-only update.
func (c *Controller) Rename(ctx context.Context, id int, name string) error {
	if strings.TrimSpace(name) == "" {
		return &staging.ValidationError{Problems: []staging.Problem{{Field: "defect_name", Message: "is required"}}}
	}
	return c.direct(DefectKey(id), "defect renamed", func() error {
		return c.backend.UpdateDefect(ctx, id, encode.EncodeRename(name))
	})
}

// AddMode appends one mode to a persisted defect. The staged image, if
// any, is released after a successful upload.
func (c *Controller) AddMode(ctx context.Context, defectID int, change encode.ModeChange) error {
	var problems []staging.Problem
	if change.ModeName == nil || strings.TrimSpace(*change.ModeName) == "" {
		problems = append(problems, staging.Problem{Field: "mode", Message: "is required"})
	}
	if change.Description == nil || strings.TrimSpace(*change.Description) == "" {
		problems = append(problems, staging.Problem{Field: "description", Message: "is required"})
	}
	if len(problems) > 0 {
		return &staging.ValidationError{Problems: problems}
	}
	p, err := encode.EncodeModeChange(change)
	if err != nil {
		return err
	}
	err = c.direct(DefectKey(defectID), "mode added", func() error {
		return c.backend.AddMode(ctx, defectID, p)
	})
	if err == nil && change.Image != nil {
		change.Image.Release()
	}
	return err
}

// UpdateMode changes one persisted mode in place.
func (c *Controller) UpdateMode(ctx context.Context, modeID int, change encode.ModeChange) error {
	var problems []staging.Problem
	if change.Empty() {
		problems = append(problems, staging.Problem{Field: "mode", Message: "has no changes"})
	}
	if change.ModeName != nil && strings.TrimSpace(*change.ModeName) == "" {
		problems = append(problems, staging.Problem{Field: "mode", Message: "cannot be blank"})
	}
	if change.Description != nil && strings.TrimSpace(*change.Description) == "" {
		problems = append(problems, staging.Problem{Field: "description", Message: "cannot be blank"})
	}
	if len(problems) > 0 {
		return &staging.ValidationError{Problems: problems}
	}
	p, err := encode.EncodeModeChange(change)
	if err != nil {
		return err
	}
	err = c.direct(ModeKey(modeID), "mode updated", func() error {
		return c.backend.UpdateMode(ctx, modeID, p)
	})
	if err == nil && change.Image != nil {
		change.Image.Release()
	}
	return err
}
