// Package journal records dispatch outcomes as an audit trail.
//
// Every dispatch produces one entry per executed processor, plus one entry
// for the error that aborted the chain, if any. Entries are never replayed;
// they answer "which processors touched this event, in what order, and how
// did it end".
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/eventchain/pkg/eventchain"
	"github.com/randalmurphal/eventchain/pkg/eventchain/config"
)

// Store persists journal entries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores entries. An entry whose (EventID, Sequence) already
	// exists fails with ErrDuplicateEntry and none of the entries are stored.
	Append(ctx context.Context, entries ...Entry) error

	// List returns the entries of one event ordered by sequence.
	// Returns an empty slice (not error) for an unknown event.
	List(ctx context.Context, eventID string) ([]Entry, error)

	// ListByType returns the most recent entries for an event type, newest
	// first. A limit <= 0 returns all of them.
	ListByType(ctx context.Context, eventType string, limit int) ([]Entry, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Status is how a journaled step ended.
type Status string

const (
	// StatusApplied marks a processor that ran and returned normally.
	StatusApplied Status = "applied"
	// StatusCompleted marks the processor that short-circuited the chain.
	StatusCompleted Status = "completed"
	// StatusFailed marks the error that aborted the chain.
	StatusFailed Status = "failed"
	// StatusUnmatched marks a dispatch no processor applied to.
	StatusUnmatched Status = "unmatched"
)

// Entry is one journaled step of a dispatch.
type Entry struct {
	EventID     string
	EventType   string
	ContentType string
	ParentID    string
	Depth       int
	Sequence    int
	Processor   string
	Order       int
	Status      Status
	Error       string
	Timestamp   time.Time
}

// Sentinel errors for journal operations.
var (
	// ErrDuplicateEntry indicates an (event id, sequence) pair stored twice.
	ErrDuplicateEntry = errors.New("journal entry already exists")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("journal store closed")
)

// Entries converts an outcome into journal entries.
func Entries(o eventchain.Outcome) []Entry {
	base := Entry{
		EventID:     o.EventID,
		EventType:   string(o.EventType),
		ContentType: o.ContentType,
		ParentID:    o.ParentID,
		Depth:       o.Depth,
	}

	entries := make([]Entry, 0, len(o.Steps)+1)
	for i, step := range o.Steps {
		e := base
		e.Sequence = step.Sequence
		e.Processor = step.Processor
		e.Order = step.Order
		e.Status = StatusApplied
		e.Timestamp = step.Timestamp
		if o.Completed && i == len(o.Steps)-1 {
			e.Status = StatusCompleted
		}
		entries = append(entries, e)
	}

	switch {
	case o.Err != nil || o.Error != "":
		e := base
		e.Sequence = len(o.Steps) + 1
		e.Processor = o.FailedProcessor
		e.Status = StatusFailed
		e.Error = o.Error
		e.Timestamp = o.StartedAt.Add(o.Duration)
		entries = append(entries, e)
	case len(o.Steps) == 0:
		e := base
		e.Status = StatusUnmatched
		e.Timestamp = o.StartedAt.Add(o.Duration)
		entries = append(entries, e)
	}

	return entries
}

// Listener returns a manager listener that appends every outcome to store.
// A nil store yields a nil listener, which eventchain.WithListener ignores.
func Listener(store Store) eventchain.Listener {
	if store == nil {
		return nil
	}
	return eventchain.ListenerFunc(func(ctx context.Context, o eventchain.Outcome) error {
		return store.Append(ctx, Entries(o)...)
	})
}

// Open creates the store selected by settings. It returns a nil store when
// the journal is disabled.
func Open(settings config.JournalSettings) (Store, error) {
	switch settings.Driver {
	case config.JournalNone, "":
		return nil, nil
	case config.JournalMemory:
		return NewMemoryStore(), nil
	case config.JournalSQLite:
		store, err := NewSQLiteStore(settings.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown journal driver %q", config.ErrInvalidSettings, settings.Driver)
	}
}
