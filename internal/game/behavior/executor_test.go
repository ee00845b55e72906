package behavior

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/sigils/internal/model"
)

type countingObserver struct {
	signals  map[string]int
	failures map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{signals: map[string]int{}, failures: map[string]int{}}
}

func (o *countingObserver) BehaviorSignal(signal string)     { o.signals[signal]++ }
func (o *countingObserver) BehaviorFailed(behaviorID string) { o.failures[behaviorID]++ }

func TestExecutor_RunsOnlyMatchingFlows(t *testing.T) {
	var seen []Signal
	record := func(ctx *Context) error {
		seen = append(seen, ctx.Signal)
		return nil
	}

	lib := NewLibrary()
	require.NoError(t, lib.Register(&Behavior{ID: "burn", Flows: []Flow{
		FuncFlow{On: SignalApply, Fn: record},
		FuncFlow{On: SignalTick, Fn: record},
		FuncFlow{On: SignalTick, Fn: record},
	}}))

	x := NewExecutor(lib, newFakeActions())
	target := Target{Entity: model.NewEntityID(), Mark: "BURN", BehaviorID: "burn"}

	x.Dispatch(SignalTick, target)
	assert.Equal(t, []Signal{SignalTick, SignalTick}, seen)

	seen = nil
	x.Dispatch(SignalExpire, target)
	assert.Empty(t, seen, "no flow for expire is a silent no-op")
}

func TestExecutor_ContextOwnerFallback(t *testing.T) {
	var got []*Context
	lib := NewLibrary()
	require.NoError(t, lib.Register(&Behavior{ID: "b", Flows: []Flow{
		FuncFlow{On: SignalApply, Fn: func(ctx *Context) error {
			got = append(got, ctx)
			return nil
		}},
	}}))

	host := newFakeActions()
	x := NewExecutor(lib, host)
	entity := model.NewEntityID()
	owner := model.NewEntityID()

	x.Dispatch(SignalApply, Target{Entity: entity, Mark: "M", BehaviorID: "b"})
	x.Dispatch(SignalApply, Target{Entity: entity, Mark: "M", BehaviorID: "b", Owner: owner})

	require.Len(t, got, 2)
	assert.Equal(t, entity, got[0].Owner, "ownerless mark uses the marked entity")
	assert.Equal(t, entity, got[0].Target)
	assert.Equal(t, owner, got[1].Owner)
	assert.Equal(t, "M", got[1].Mark)
	assert.Same(t, host, got[1].Actions)
}

func TestExecutor_UnknownBehaviorIgnored(t *testing.T) {
	obs := newCountingObserver()
	x := NewExecutor(nil, newFakeActions())
	x.SetObserver(obs)

	assert.NotPanics(t, func() {
		x.Dispatch(SignalApply, Target{Entity: model.NewEntityID(), BehaviorID: "ghost"})
		x.Dispatch(SignalApply, Target{Entity: model.NewEntityID()})
	})
	assert.Empty(t, obs.signals)
}

func TestExecutor_FailuresAreContained(t *testing.T) {
	ran := 0
	lib := NewLibrary()
	require.NoError(t, lib.Register(&Behavior{ID: "fragile", Flows: []Flow{
		FuncFlow{On: SignalTick, Fn: func(*Context) error { panic("flow exploded") }},
		FuncFlow{On: SignalTick, Fn: func(*Context) error { return errors.New("flow failed") }},
		FuncFlow{On: SignalTick, Fn: func(*Context) error {
			ran++
			return nil
		}},
	}}))

	obs := newCountingObserver()
	x := NewExecutor(lib, newFakeActions())
	x.SetObserver(obs)

	assert.NotPanics(t, func() {
		x.Dispatch(SignalTick, Target{Entity: model.NewEntityID(), BehaviorID: "fragile"})
	})
	assert.Equal(t, 1, ran)
	assert.Equal(t, 1, obs.signals["TICK"])
	assert.Equal(t, 2, obs.failures["fragile"])
}

func TestExecutor_SetLibrary(t *testing.T) {
	x := NewExecutor(nil, newFakeActions())
	assert.Equal(t, 0, x.Library().Len())

	ran := false
	lib := NewLibrary()
	require.NoError(t, lib.Register(&Behavior{ID: "late", Flows: []Flow{
		FuncFlow{On: SignalExpire, Fn: func(*Context) error {
			ran = true
			return nil
		}},
	}}))
	x.SetLibrary(lib)

	x.Dispatch(SignalExpire, Target{Entity: model.NewEntityID(), BehaviorID: "LATE"})
	assert.True(t, ran)
}

func TestExecutor_LuaFlowFailureLogged(t *testing.T) {
	flow, err := NewLuaFlow(SignalApply, "bad.lua", `function run(ctx) error("nope") end`)
	require.NoError(t, err)

	lib := NewLibrary()
	require.NoError(t, lib.Register(&Behavior{ID: "lua", Flows: []Flow{flow}}))

	obs := newCountingObserver()
	x := NewExecutor(lib, newFakeActions())
	x.SetObserver(obs)
	x.Dispatch(SignalApply, Target{Entity: model.NewEntityID(), BehaviorID: "lua"})

	assert.Equal(t, 1, obs.failures["lua"])
}
