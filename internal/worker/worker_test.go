package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vmatresu/claimd/internal/backlog"
	"github.com/vmatresu/claimd/internal/coordinator"
	"github.com/vmatresu/claimd/internal/store"
	"github.com/vmatresu/claimd/internal/store/memory"
)

func newHarness(t *testing.T) (*memory.Store, *coordinator.Coordinator) {
	t.Helper()
	s := memory.New()
	c := coordinator.New(coordinator.Options{Store: s, BackoffBase: time.Millisecond, BackoffCap: 2 * time.Millisecond})
	return s, c
}

func TestWorkerCompletesItem(t *testing.T) {
	s, c := newHarness(t)
	s.Seed(&backlog.Item{ID: "task-1", Status: backlog.StatusReady})

	w := New(Options{
		Coordinator: c,
		ID:          "w1",
		LeaseMs:     1000,
		Handler: HandlerFunc(func(_ context.Context, it *backlog.Item) (string, error) {
			return "ref-" + it.ID, nil
		}),
	})
	require.NoError(t, w.RunOnce(context.Background()))

	v, err := s.Get(context.Background(), "task-1")
	require.NoError(t, err)
	require.Equal(t, backlog.StatusCompleted, v.Item.Status)
	require.Empty(t, v.Item.Claimant)
	require.NotNil(t, v.Item.Completion)
	require.Equal(t, "w1", v.Item.Completion.WorkerID)
	require.Equal(t, "ref-task-1", v.Item.Completion.Ref)
}

func TestWorkerHeartbeatsWhileHandling(t *testing.T) {
	s, c := newHarness(t)
	s.Seed(&backlog.Item{ID: "slow", Status: backlog.StatusReady})

	var claimedAt, midFlight int64
	w := New(Options{
		Coordinator:    c,
		ID:             "w1",
		LeaseMs:        10_000,
		HeartbeatEvery: 10 * time.Millisecond,
		Handler: HandlerFunc(func(ctx context.Context, it *backlog.Item) (string, error) {
			claimedAt = it.HeartbeatMs
			time.Sleep(80 * time.Millisecond)
			v, err := s.Get(ctx, it.ID)
			if err != nil {
				return "", err
			}
			midFlight = v.Item.HeartbeatMs
			return "", nil
		}),
	})
	require.NoError(t, w.RunOnce(context.Background()))
	require.Greater(t, midFlight, claimedAt, "heartbeat never advanced during handling")
}

func TestWorkerReleasesOnHandlerError(t *testing.T) {
	s, c := newHarness(t)
	s.Seed(&backlog.Item{ID: "task-1", Status: backlog.StatusReady, Priority: 4})

	boom := errors.New("boom")
	w := New(Options{
		Coordinator: c,
		ID:          "w1",
		LeaseMs:     1000,
		Handler: HandlerFunc(func(context.Context, *backlog.Item) (string, error) {
			return "", boom
		}),
	})
	err := w.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)

	v, _ := s.Get(context.Background(), "task-1")
	require.Equal(t, backlog.StatusReady, v.Item.Status)
	require.Empty(t, v.Item.Claimant)
	require.Equal(t, int32(4), v.Item.Priority)
}

func TestWorkerAbortsWhenOwnershipLost(t *testing.T) {
	s, c := newHarness(t)
	s.Seed(&backlog.Item{ID: "contested", Status: backlog.StatusReady})

	stolen := make(chan struct{})
	w := New(Options{
		Coordinator:    c,
		ID:             "w1",
		LeaseMs:        10_000,
		HeartbeatEvery: 5 * time.Millisecond,
		Handler: HandlerFunc(func(ctx context.Context, it *backlog.Item) (string, error) {
			close(stolen)
			<-ctx.Done() // wait for the heartbeat to notice
			return "", ctx.Err()
		}),
	})

	go func() {
		<-stolen
		// simulate a reap plus re-claim by another worker
		v, err := s.Get(context.Background(), "contested")
		if err != nil {
			return
		}
		upd := v.Item.Clone()
		upd.Claimant = "thief"
		var b store.Batch
		b.Update("contested", v.Rev, upd)
		_ = s.Propose(context.Background(), b)
	}()

	err := w.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrOwnershipLost)

	// the thief's claim is untouched
	v, _ := s.Get(context.Background(), "contested")
	require.Equal(t, "thief", v.Item.Claimant)
	require.Equal(t, backlog.StatusClaimed, v.Item.Status)
}

func TestWorkerRunDrainsBacklog(t *testing.T) {
	s, c := newHarness(t)
	s.Seed(
		&backlog.Item{ID: "a", Status: backlog.StatusReady, Priority: 2},
		&backlog.Item{ID: "b", Status: backlog.StatusReady, Priority: 1},
	)

	var order []string
	w := New(Options{
		Coordinator: c,
		ID:          "w1",
		LeaseMs:     1000,
		Handler: HandlerFunc(func(_ context.Context, it *backlog.Item) (string, error) {
			order = append(order, it.ID)
			return "", nil
		}),
	})
	require.NoError(t, w.Run(context.Background()))
	require.Equal(t, []string{"a", "b"}, order)

	snap, _ := s.Snapshot(context.Background())
	for id, v := range snap {
		require.Equalf(t, backlog.StatusCompleted, v.Item.Status, "item %s", id)
	}
}

func TestWorkerGeneratesID(t *testing.T) {
	_, c := newHarness(t)
	w := New(Options{Coordinator: c, Handler: HandlerFunc(func(context.Context, *backlog.Item) (string, error) { return "", nil })})
	require.NotEmpty(t, w.ID())
	require.Contains(t, w.ID(), "worker-")
}

func TestExecHandlerPassesItemEnv(t *testing.T) {
	h := &ExecHandler{Argv: []string{"sh", "-c", `test "$CLAIMD_ITEM_ID" = task-9 && test "$CLAIMD_ITEM_KIND" = build`}}
	_, err := h.Handle(context.Background(), &backlog.Item{ID: "task-9", Kind: "build", Status: backlog.StatusClaimed, Claimant: "w"})
	require.NoError(t, err)
}

func TestExecHandlerNonZeroExitFails(t *testing.T) {
	h := &ExecHandler{Argv: []string{"sh", "-c", "exit 3"}}
	_, err := h.Handle(context.Background(), &backlog.Item{ID: "x", Status: backlog.StatusClaimed, Claimant: "w"})
	require.Error(t, err)
}
