package eventchain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	ecerrors "github.com/randalmurphal/eventchain/pkg/eventchain/errors"
)

// recorder collects outcomes delivered to a listener.
type recorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *recorder) OnDispatched(_ context.Context, o Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return nil
}

func (r *recorder) all() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}

func newManagerWith(t *testing.T, regs []Registration, mopts []ManagerOption, sopts ...ServiceOption) *Manager {
	t.Helper()
	m, err := NewManager(newTestService(t, regs, sopts...),
		append([]ManagerOption{WithManagerLogger(quietLogger())}, mopts...)...)
	require.NoError(t, err)
	return m
}

func TestNewManager_NilService(t *testing.T) {
	_, err := NewManager(nil)

	assert.ErrorIs(t, err, ErrNilService)
	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestDispatch_ReturnsContext(t *testing.T) {
	var trace []string
	m := newTestManager(t, []Registration{
		Bind(tracking("a", 1, &trace)),
		Bind(tracking("b", 2, &trace)),
	})

	results, err := Dispatch(testCtx(), m, newAccountEvent(t, Create))

	require.NoError(t, err)
	require.NotNil(t, results)
	assert.Equal(t, []string{"a", "b"}, results.Processors())
	assert.Equal(t, []string{"a", "b"}, results.Content().Tags)
}

func TestDispatch_NilArguments(t *testing.T) {
	m := newTestManager(t, []Registration{})

	results, err := Dispatch[*Account](testCtx(), m, nil)
	assert.Nil(t, results)
	assert.ErrorIs(t, err, ErrNilEvent)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "Dispatch", cfgErr.Op)

	_, err = Dispatch(testCtx(), nil, newAccountEvent(t, Create))
	assert.ErrorIs(t, err, ErrNilManager)

	//nolint:staticcheck // nil context is the case under test
	_, err = Dispatch(nil, m, newAccountEvent(t, Create))
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestDispatch_PartialContextOnError(t *testing.T) {
	var trace []string
	m := newTestManager(t, []Registration{
		Bind(tracking("a", 1, &trace)),
		Bind(failing("b", 2, &trace, errors.New("rejected"))),
		Bind(tracking("c", 3, &trace)),
	})

	results, err := Dispatch(testCtx(), m, newAccountEvent(t, Create))

	require.Error(t, err)
	require.NotNil(t, results)
	assert.Equal(t, []string{"a"}, results.Processors())
}

func TestDispatch_ProcessorErrorWrapping(t *testing.T) {
	errRejected := errors.New("rejected")
	var trace []string
	m := newTestManager(t, []Registration{
		Bind(failing("guard", 7, &trace, errRejected)),
	})

	_, err := Dispatch(testCtx(), m, newAccountEvent(t, Delete))

	require.Error(t, err)
	assert.NotEqual(t, errRejected, err)
	assert.ErrorIs(t, err, errRejected)

	var perr *ProcessorError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "guard", perr.Processor)
	assert.Equal(t, 7, perr.Order)
	assert.Equal(t, 1, perr.Position)
	assert.Same(t, errRejected, perr.Unwrap())
}

func TestDispatch_ListenerOutcome(t *testing.T) {
	var trace []string
	rec := &recorder{}
	m := newManagerWith(t, []Registration{
		Bind(tracking("a", 1, &trace)),
		Bind(completing("b", 2, &trace)),
		Bind(tracking("c", 3, &trace)),
	}, []ManagerOption{WithListener(rec)})

	evt := newAccountEvent(t, Update, WithProperty("actor", "admin"))
	_, err := Dispatch(testCtx(), m, evt)
	require.NoError(t, err)

	outcomes := rec.all()
	require.Len(t, outcomes, 1)
	o := outcomes[0]

	assert.Equal(t, evt.ID(), o.EventID)
	assert.Equal(t, Update, o.EventType)
	assert.Equal(t, "*eventchain.Account", o.ContentType)
	assert.Empty(t, o.ParentID)
	assert.Equal(t, 0, o.Depth)
	assert.True(t, o.Completed)
	assert.False(t, o.Failed())
	assert.Empty(t, o.Error)
	assert.Equal(t, "admin", o.Properties.String("actor"))
	assert.False(t, o.StartedAt.IsZero())

	require.Len(t, o.Steps, 2)
	assert.Equal(t, Step{Processor: "a", Order: 1, Sequence: 1, Timestamp: o.Steps[0].Timestamp}, o.Steps[0])
	assert.Equal(t, "b", o.Steps[1].Processor)
}

func TestDispatch_ListenerOutcomeOnFailure(t *testing.T) {
	var trace []string
	rec := &recorder{}
	m := newManagerWith(t, []Registration{
		Bind(tracking("a", 1, &trace)),
		Bind(failing("validate", 2, &trace, &ecerrors.ValidationError{Field: "email", Message: "required"})),
	}, []ManagerOption{WithListener(rec)})

	_, err := Dispatch(testCtx(), m, newAccountEvent(t, Create))
	require.Error(t, err)

	o := rec.all()[0]
	assert.True(t, o.Failed())
	assert.Equal(t, "validate", o.FailedProcessor)
	assert.Equal(t, "validation", o.ErrorCategory)
	assert.Contains(t, o.Error, "email")
	assert.Len(t, o.Steps, 1)
}

func TestDispatch_ListenerOrderAndErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var calls []string
	first := ListenerFunc(func(context.Context, Outcome) error {
		calls = append(calls, "first")
		return errors.New("journal unavailable")
	})
	second := ListenerFunc(func(context.Context, Outcome) error {
		calls = append(calls, "second")
		return nil
	})

	r, err := NewRegistry([]Registration{})
	require.NoError(t, err)
	s, err := NewService(r, WithLogger(nil))
	require.NoError(t, err)
	m, err := NewManager(s, WithListener(first), WithListener(nil), WithListener(second), WithManagerLogger(logger))
	require.NoError(t, err)

	_, err = Dispatch(testCtx(), m, newAccountEvent(t, Create))

	require.NoError(t, err, "listener errors are not propagated")
	assert.Equal(t, []string{"first", "second"}, calls)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "outcome listener failed", entry["msg"])
	assert.Equal(t, "journal unavailable", entry["error"])
}

func TestDispatch_ListenerSeesUncancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(testCtx())
	defer cancel()

	var listenerErr error
	stopper := NewProcessor("stopper", 1, func(ctx context.Context, evt *Event[*Account]) (*Event[*Account], error) {
		cancel()
		return evt, nil
	})
	m := newManagerWith(t, []Registration{Bind(stopper), Bind(NewProcessor("next", 2,
		func(ctx context.Context, evt *Event[*Account]) (*Event[*Account], error) { return evt, nil }))},
		[]ManagerOption{WithListener(ListenerFunc(func(ctx context.Context, _ Outcome) error {
			listenerErr = ctx.Err()
			return nil
		}))})

	_, err := Dispatch(ctx, m, newAccountEvent(t, Create))

	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, listenerErr)
}

func TestDispatchChild_Cascade(t *testing.T) {
	rec := &recorder{}
	var childParent string

	cascade := NewProcessor("cascade-groups", 10, func(ctx context.Context, evt *Event[*Account]) (*Event[*Account], error) {
		child, err := NewEvent(Update, Group{Name: "members"})
		if err != nil {
			return nil, err
		}
		if _, err := DispatchChild(ctx, evt, child); err != nil {
			return nil, err
		}
		return evt, nil
	})
	groupProc := NewProcessor("group-audit", 1, func(ctx context.Context, evt *Event[Group]) (*Event[Group], error) {
		childParent = evt.Parent().ID()
		return evt, nil
	})

	m := newManagerWith(t, []Registration{Bind(cascade), Bind(groupProc)}, []ManagerOption{WithListener(rec)})

	root := newAccountEvent(t, Update)
	_, err := Dispatch(testCtx(), m, root)
	require.NoError(t, err)

	assert.Equal(t, root.ID(), childParent)

	outcomes := rec.all()
	require.Len(t, outcomes, 2)
	assert.Equal(t, "eventchain.Group", outcomes[0].ContentType, "child finishes first")
	assert.Equal(t, root.ID(), outcomes[0].ParentID)
	assert.Equal(t, 1, outcomes[0].Depth)
	assert.Equal(t, root.ID(), outcomes[1].EventID)
}

func TestDispatchChild_RunawayCascade(t *testing.T) {
	rec := &recorder{}
	recurse := NewProcessor("recurse", 1, func(ctx context.Context, evt *Event[*Account]) (*Event[*Account], error) {
		child, err := NewEvent(Update, evt.Content().Clone())
		if err != nil {
			return nil, err
		}
		if _, err := DispatchChild(ctx, evt, child); err != nil {
			return nil, err
		}
		return evt, nil
	})

	m := newManagerWith(t, []Registration{Bind(recurse)}, []ManagerOption{WithListener(rec)}, WithMaxDepth(3))

	_, err := Dispatch(testCtx(), m, newAccountEvent(t, Update))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxDepth)

	var derr *DepthExceededError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, 4, derr.Depth)
	assert.Equal(t, 3, derr.Max)
	assert.Len(t, derr.Chain, 5)

	// depths 4, 3, 2, 1, 0 all report, innermost first
	outcomes := rec.all()
	require.Len(t, outcomes, 5)
	for i, o := range outcomes {
		assert.Equal(t, 4-i, o.Depth)
		assert.True(t, o.Failed())
	}
}

func TestDispatchChild_WithoutManager(t *testing.T) {
	_, err := DispatchChild(testCtx(), nil, newAccountEvent(t, Create))

	assert.ErrorIs(t, err, ErrNoManager)
	assert.Nil(t, ManagerFromContext(testCtx()))
	//nolint:staticcheck // nil context is the case under test
	assert.Nil(t, ManagerFromContext(nil))
}

func TestDispatchChild_NilChild(t *testing.T) {
	m := newTestManager(t, []Registration{})
	ctx := ContextWithManager(testCtx(), m)

	_, err := DispatchChild[*Account](ctx, newAccountEvent(t, Create), nil)

	assert.ErrorIs(t, err, ErrNilEvent)
	assert.Same(t, m, ManagerFromContext(ctx))
}

// TestDispatch_Concurrent tests independent dispatches share a manager safely.
func TestDispatch_Concurrent(t *testing.T) {
	var dispatched sync.Map
	count := func(name string, order int) Processor[*Account] {
		return NewProcessor(name, order, func(ctx context.Context, evt *Event[*Account]) (*Event[*Account], error) {
			evt.Content().Tags = append(evt.Content().Tags, name)
			dispatched.Store(evt.ID(), true)
			return evt, nil
		})
	}
	rec := &recorder{}
	m := newManagerWith(t, []Registration{
		Bind(count("c", 3)),
		Bind(count("a", 1)),
		Bind(count("b", 2)),
	}, []ManagerOption{WithListener(rec)})

	const workers = 64
	g, ctx := errgroup.WithContext(testCtx())
	for range workers {
		g.Go(func() error {
			evt, err := NewEvent(Create, &Account{Name: "concurrent"})
			if err != nil {
				return err
			}
			results, err := Dispatch(ctx, m, evt)
			if err != nil {
				return err
			}
			if got := results.Processors(); len(got) != 3 || got[0] != "a" || got[2] != "c" {
				return errors.New("unexpected chain")
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())
	assert.Len(t, rec.all(), workers)

	n := 0
	dispatched.Range(func(_, _ any) bool { n++; return true })
	assert.Equal(t, workers, n)
}
