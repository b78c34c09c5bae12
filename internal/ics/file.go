package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "schedcore/internal/log"
	"schedcore/internal/model"
	"schedcore/internal/syncer"
)

var (
	ErrNotFound = errors.New("event not found")
	ErrExists   = errors.New("event already exists")
)

var _ syncer.Mutator = (*FileCalendar)(nil)

// FileCalendar keeps events in a single .ics file and implements the sync
// mutation port. Every call reads the file, applies one change and rewrites
// it atomically. Instance overrides in the file are not preserved.
type FileCalendar struct {
	mu   sync.Mutex
	path string
	loc  *time.Location
	now  func() time.Time
}

func NewFileCalendar(path string, loc *time.Location) *FileCalendar {
	if loc == nil {
		loc = time.UTC
	}
	return &FileCalendar{path: path, loc: loc, now: time.Now}
}

func (c *FileCalendar) Path() string { return c.path }

// Events returns the stored events. A missing or empty file is an empty
// calendar.
func (c *FileCalendar) Events() ([]model.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

func (c *FileCalendar) Create(ctx context.Context, ev model.Event) (model.Event, error) {
	if err := ctx.Err(); err != nil {
		return model.Event{}, err
	}
	if err := ev.Interval.Validate(); err != nil {
		return model.Event{}, fmt.Errorf("create %q: %w", ev.Title, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	events, err := c.load()
	if err != nil {
		return model.Event{}, err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if indexOf(events, ev.ID) >= 0 {
		return model.Event{}, fmt.Errorf("create %s: %w", ev.ID, ErrExists)
	}
	ev.UpdatedAt = c.now().UTC().Truncate(time.Second)

	if err := c.store(append(events, ev)); err != nil {
		return model.Event{}, err
	}
	appLog.Debug("file calendar create", "path", c.path, "id", ev.ID)
	return ev, nil
}

func (c *FileCalendar) Update(ctx context.Context, id string, p syncer.Patch) (model.Event, error) {
	if err := ctx.Err(); err != nil {
		return model.Event{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	events, err := c.load()
	if err != nil {
		return model.Event{}, err
	}
	i := indexOf(events, id)
	if i < 0 {
		return model.Event{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}

	ev := p.Apply(events[i])
	if err := ev.Interval.Validate(); err != nil {
		return model.Event{}, fmt.Errorf("update %s: %w", id, err)
	}
	ev.UpdatedAt = c.now().UTC().Truncate(time.Second)
	events[i] = ev

	if err := c.store(events); err != nil {
		return model.Event{}, err
	}
	appLog.Debug("file calendar update", "path", c.path, "id", id, "fields", p.Fields())
	return ev, nil
}

func (c *FileCalendar) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	events, err := c.load()
	if err != nil {
		return err
	}
	i := indexOf(events, id)
	if i < 0 {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}

	if err := c.store(append(events[:i], events[i+1:]...)); err != nil {
		return err
	}
	appLog.Debug("file calendar delete", "path", c.path, "id", id)
	return nil
}

func (c *FileCalendar) load() ([]model.Event, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.Event{}, nil
		}
		return nil, storeError(err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []model.Event{}, nil
	}
	entries, err := Parse(data, c.loc)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", c.path, err)
	}
	return Events(entries), nil
}

// store writes the calendar through a temp file and rename.
func (c *FileCalendar) store(events []model.Event) error {
	var buf bytes.Buffer
	if err := Encode(&buf, events, c.loc); err != nil {
		return err
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return storeError(err)
	}
	tmp, err := os.CreateTemp(dir, ".schedcore-calendar-*.tmp")
	if err != nil {
		return storeError(err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return storeError(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return storeError(err)
	}
	if err := tmp.Close(); err != nil {
		return storeError(err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return storeError(err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return storeError(err)
	}
	return nil
}

// storeError maps filesystem permission failures onto the sync sentinel so
// the reconciler reports them as permission conflicts.
func storeError(err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %w", syncer.ErrPermissionDenied, err)
	}
	return err
}

func indexOf(events []model.Event, id string) int {
	for i, ev := range events {
		if ev.ID == id {
			return i
		}
	}
	return -1
}
