package effect_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-loop/stateflow/effect"
)

type testEnv struct{}

func intTask(n int) effect.Effect[int, testEnv, string] {
	return effect.Task[int, testEnv, string](
		func(_ context.Context, _ testEnv) (int, error) { return n, nil },
	)
}

func TestMerge_CollapseRules(t *testing.T) {
	empty := effect.Merge[int, testEnv, string]()
	assert.Equal(t, effect.KindNone, empty.Kind())

	single := effect.Merge(intTask(1))
	assert.Equal(t, effect.KindTask, single.Kind())

	pair := effect.Merge(intTask(1), intTask(2))
	assert.Equal(t, effect.KindMerge, pair.Kind())
	assert.Len(t, pair.Children(), 2)
}

func TestConcatenate_CollapseRules(t *testing.T) {
	empty := effect.Concatenate[int, testEnv, string]()
	assert.Equal(t, effect.KindNone, empty.Kind())

	single := effect.Concatenate(intTask(7))
	assert.Equal(t, effect.KindTask, single.Kind())
}

func TestMap_Composes(t *testing.T) {
	ctx := context.Background()
	f := func(n int) int { return n + 1 }
	g := func(n int) int { return n * 2 }

	chained := effect.Map(effect.Map(intTask(3), f), g)
	composed := effect.Map(intTask(3), func(n int) int { return g(f(n)) })

	chainedOut, err := chained.Run(ctx, testEnv{})
	require.NoError(t, err)
	composedOut, err := composed.Run(ctx, testEnv{})
	require.NoError(t, err)
	assert.Equal(t, composedOut, chainedOut)
	assert.Equal(t, 8, chainedOut)
}

func TestMap_RewritesOnErrorHandler(t *testing.T) {
	failing := effect.Task[int, testEnv, string](
		func(_ context.Context, _ testEnv) (int, error) { return 0, errors.New("boom") },
	).OnError(func(error) int { return -1 })

	mapped := effect.Map(failing, func(n int) int { return n * 10 })
	out, ok := mapped.RecoverWith(errors.New("boom"))
	require.True(t, ok)
	assert.Equal(t, -10, out)
}

func TestMap_PanicsOnOutputlessKinds(t *testing.T) {
	double := func(n int) int { return n * 2 }

	assert.Panics(t, func() {
		effect.Map(effect.None[int, testEnv, string](), double)
	})
	assert.Panics(t, func() {
		effect.Map(effect.CancelOf[int, testEnv, string]("k"), double)
	})
	assert.Panics(t, func() {
		effect.Map(effect.FireAndForget[int, testEnv, string](
			func(context.Context, testEnv) error { return nil },
		), double)
	})
}

func TestMap_RetypesFireAndForgetInsideComposition(t *testing.T) {
	merged := effect.Merge(
		intTask(1),
		effect.FireAndForget[int, testEnv, string](
			func(context.Context, testEnv) error { return nil },
		),
	)
	mapped := effect.Map(merged, func(n int) int { return n + 1 })
	require.Equal(t, effect.KindMerge, mapped.Kind())
	assert.Equal(t, effect.KindFireAndForget, mapped.Children()[1].Kind())
}

func TestThrottle_RequiresKey(t *testing.T) {
	assert.Panics(t, func() {
		intTask(1).Throttle(time.Second)
	})
	assert.NotPanics(t, func() {
		intTask(1).Cancellable("k", false).Throttle(time.Second)
	})
}

func TestCancellable_RewritesLeaves(t *testing.T) {
	merged := effect.Merge(
		intTask(1),
		effect.FireAndForget[int, testEnv, string](
			func(context.Context, testEnv) error { return nil },
		),
	).Cancellable("k", true)

	require.Equal(t, effect.KindMerge, merged.Kind())
	_, keyed := merged.CancelKey()
	assert.False(t, keyed, "composition itself must not carry a key")

	taskLeaf := merged.Children()[0]
	key, keyed := taskLeaf.CancelKey()
	require.True(t, keyed)
	assert.Equal(t, "k", key)
	assert.True(t, taskLeaf.CancelsInFlight())

	fireLeaf := merged.Children()[1]
	_, keyed = fireLeaf.CancelKey()
	assert.False(t, keyed, "fire-and-forget carries no cancellation tracking")
}

func TestSubscribe_CarriesMandatoryKey(t *testing.T) {
	sub := effect.Subscribe[int, testEnv, string]("ticks",
		func(ctx context.Context, _ testEnv) (<-chan effect.Result[int], error) {
			out := make(chan effect.Result[int])
			close(out)
			return out, nil
		},
	)
	key, keyed := sub.CancelKey()
	require.True(t, keyed)
	assert.Equal(t, "ticks", key)
}

func TestRecoverWith_WithoutHandler(t *testing.T) {
	_, ok := intTask(1).RecoverWith(errors.New("boom"))
	assert.False(t, ok)
}
