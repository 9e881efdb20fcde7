package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Unit_Run_AllIndicesVisited_Success(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	seen := make(map[int]bool)

	err := Run(t.Context(), 10, 4, func(_ context.Context, i int) error {
		mu.Lock()
		seen[i] = true
		mu.Unlock()

		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 10)
}

func Test_Unit_Run_RespectsLimit_Success(t *testing.T) {
	t.Parallel()

	var current, maxSeen atomic.Int64

	err := Run(t.Context(), 50, 3, func(_ context.Context, _ int) error {
		n := current.Add(1)
		for {
			m := maxSeen.Load()
			if n <= m || maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
		current.Add(-1)

		return nil
	})
	require.NoError(t, err)
	require.LessOrEqual(t, maxSeen.Load(), int64(3))
}

func Test_Unit_Run_FirstErrorReturned_Error(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("boom")

	err := Run(t.Context(), 5, 2, func(_ context.Context, i int) error {
		if i == 2 {
			return sentinel
		}

		return nil
	})
	require.ErrorIs(t, err, sentinel)
}

func Test_Unit_Run_ZeroCount_NoOp(t *testing.T) {
	t.Parallel()

	called := false
	err := Run(t.Context(), 0, 4, func(_ context.Context, _ int) error {
		called = true

		return nil
	})
	require.NoError(t, err)
	require.False(t, called)
}
