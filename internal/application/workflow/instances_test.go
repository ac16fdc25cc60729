package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/erp/docflow/internal/domain/workflow"
	"github.com/erp/docflow/internal/infrastructure/cache"
	"github.com/erp/docflow/internal/infrastructure/event"
	"github.com/erp/docflow/internal/infrastructure/lock"
	"github.com/erp/docflow/internal/infrastructure/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// sharedStores are the stores two instances see through one database
type sharedStores struct {
	states *memory.StateStore
	audit  *memory.AuditLog
	docs   *memory.DocumentRepository
}

func newInstance(t *testing.T, stores sharedStores, states workflow.StateStore) *StateMachine {
	t.Helper()
	sales, err := workflow.NewDefinition("sales", false)
	require.NoError(t, err)
	registry, err := workflow.NewRegistry(sales)
	require.NoError(t, err)
	bus := event.NewBroadcaster(zaptest.NewLogger(t))
	t.Cleanup(bus.Close)
	return NewStateMachine(registry, states, stores.audit, stores.docs, bus,
		WithLocker(lock.NewKeyedLocker(0, 0)), WithLogger(zaptest.NewLogger(t)))
}

func submitCmd(number string, action workflow.Action) TransitionCommand {
	return TransitionCommand{Domain: "sales", DocumentNumber: number, Action: action, Actor: "tester"}
}

func TestTransition_InstancesWithSeparateCaches(t *testing.T) {
	ctx := context.Background()
	stores := sharedStores{states: memory.NewStateStore(), audit: memory.NewAuditLog(), docs: memory.NewDocumentRepository()}
	cacheA, err := cache.NewCachedStateStore(stores.states, 16)
	require.NoError(t, err)
	cacheB, err := cache.NewCachedStateStore(stores.states, 16)
	require.NoError(t, err)
	a := newInstance(t, stores, cacheA)
	b := newInstance(t, stores, cacheB)

	_, err = a.Transition(ctx, submitCmd("SO-1", workflow.ActionSubmit))
	require.NoError(t, err)
	state, err := b.CurrentState(ctx, "sales", "SO-1")
	require.NoError(t, err)
	require.Equal(t, workflow.StatePending, state)

	_, err = a.Transition(ctx, submitCmd("SO-1", workflow.ActionApprove))
	require.NoError(t, err)

	_, err = b.Transition(ctx, submitCmd("SO-1", workflow.ActionReject))
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrInvalidTransition), err.Error())

	stored, _, err := stores.states.Get(ctx, workflow.DocumentRef{Domain: "sales", Number: "SO-1"})
	require.NoError(t, err)
	assert.Equal(t, workflow.StateApproved, stored)

	history, err := b.History(ctx, "sales", "SO-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, workflow.StatePending, history[1].FromState)
	assert.Equal(t, workflow.StateApproved, history[1].ToState)

	state, err = b.CurrentState(ctx, "sales", "SO-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateApproved, state)
}

// interleavingStateStore runs interleave once, between a transition's read
// and its write, as another instance would.
type interleavingStateStore struct {
	*memory.StateStore
	once       sync.Once
	interleave func()
}

func (s *interleavingStateStore) CompareAndSet(ctx context.Context, ref workflow.DocumentRef, from, to workflow.State) error {
	s.once.Do(s.interleave)
	return s.StateStore.CompareAndSet(ctx, ref, from, to)
}

func TestTransition_ConflictingInstancesKeepOneBranch(t *testing.T) {
	ctx := context.Background()
	stores := sharedStores{states: memory.NewStateStore(), audit: memory.NewAuditLog(), docs: memory.NewDocumentRepository()}
	b := newInstance(t, stores, stores.states)
	_, err := b.Transition(ctx, submitCmd("SO-2", workflow.ActionSubmit))
	require.NoError(t, err)

	racing := &interleavingStateStore{StateStore: stores.states}
	racing.interleave = func() {
		_, err := b.Transition(ctx, submitCmd("SO-2", workflow.ActionReject))
		require.NoError(t, err)
	}
	a := newInstance(t, stores, racing)

	_, err = a.Transition(ctx, submitCmd("SO-2", workflow.ActionApprove))
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrStateConflict), err.Error())

	state, err := b.CurrentState(ctx, "sales", "SO-2")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateRejected, state)

	history, err := b.History(ctx, "sales", "SO-2")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, workflow.StateRejected, history[1].ToState)
}

type failingAuditLog struct {
	*memory.AuditLog
}

func (failingAuditLog) Append(context.Context, *workflow.Transition) error {
	return errors.New("audit store unavailable")
}

func TestTransition_AuditFailureRestoresState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.do(t, "sales", "SO-7", workflow.ActionSubmit, nil)
	require.NoError(t, err)

	sales, err := workflow.NewDefinition("sales", false)
	require.NoError(t, err)
	registry, err := workflow.NewRegistry(sales)
	require.NoError(t, err)
	broken := NewStateMachine(registry, f.states, failingAuditLog{f.audit}, f.docs, f.bus, WithLogger(zaptest.NewLogger(t)))

	_, err = broken.Transition(ctx, submitCmd("SO-7", workflow.ActionApprove))
	require.Error(t, err)

	state, err := f.sm.CurrentState(ctx, "sales", "SO-7")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePending, state)
	assert.Equal(t, 1, f.audit.Len())
}
