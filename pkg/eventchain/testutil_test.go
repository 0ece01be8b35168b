package eventchain

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

// Test content types used across tests

// Account is pointer content with deep snapshots.
type Account struct {
	Name  string
	Email string
	Tags  []string
}

func (a *Account) Clone() *Account {
	c := *a
	c.Tags = slices.Clone(a.Tags)
	return &c
}

// Group is value content without a Cloner.
type Group struct {
	Name string
}

func testCtx() context.Context {
	return context.Background()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tracking creates a processor that records its execution and tags the account.
func tracking(name string, order int, trace *[]string, opts ...ProcessorOption) Processor[*Account] {
	return NewProcessor(name, order, func(ctx context.Context, evt *Event[*Account]) (*Event[*Account], error) {
		*trace = append(*trace, name)
		evt.Content().Tags = append(evt.Content().Tags, name)
		return evt, nil
	}, opts...)
}

// completing creates a processor that records its execution and stops the chain.
func completing(name string, order int, trace *[]string, opts ...ProcessorOption) Processor[*Account] {
	return NewProcessor(name, order, func(ctx context.Context, evt *Event[*Account]) (*Event[*Account], error) {
		*trace = append(*trace, name)
		evt.Complete()
		return evt, nil
	}, opts...)
}

// failing creates a processor that records its execution and returns err.
func failing(name string, order int, trace *[]string, err error) Processor[*Account] {
	return NewProcessor(name, order, func(ctx context.Context, evt *Event[*Account]) (*Event[*Account], error) {
		*trace = append(*trace, name)
		return evt, err
	})
}

// panicking creates a processor that panics with value.
func panicking(name string, order int, value any) Processor[*Account] {
	return NewProcessor(name, order, func(ctx context.Context, evt *Event[*Account]) (*Event[*Account], error) {
		panic(value)
	})
}

func newTestService(t *testing.T, regs []Registration, opts ...ServiceOption) *Service {
	t.Helper()
	r, err := NewRegistry(regs)
	require.NoError(t, err)
	s, err := NewService(r, append([]ServiceOption{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return s
}

func newTestManager(t *testing.T, regs []Registration, opts ...ServiceOption) *Manager {
	t.Helper()
	m, err := NewManager(newTestService(t, regs, opts...), WithManagerLogger(quietLogger()))
	require.NoError(t, err)
	return m
}

func newAccountEvent(t *testing.T, typ EventType, opts ...EventOption) *Event[*Account] {
	t.Helper()
	evt, err := NewEvent(typ, &Account{Name: "alice", Email: "alice@example.com"}, opts...)
	require.NoError(t, err)
	return evt
}
