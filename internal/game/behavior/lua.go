package behavior

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Shopify/go-lua"

	"github.com/udisondev/sigils/internal/game/modifier"
	"github.com/udisondev/sigils/internal/model"
)

// LuaFlow runs a Lua chunk that defines a global function run(ctx).
//
// ctx is a table with fields signal, behavior, mark, owner, target
// (entity ids as strings). Host functions available to the script:
//
//	apply_modifier(entity, type, source, value, duration_ms)
//	remove_modifier(entity, type, source) -> bool
//	multiplier(entity, type) -> number
//	apply_mark(entity, name, seconds [, behavior [, group]])
//	remove_mark(entity, name) -> bool
//	has_mark(entity, name) -> bool
//	set_overlay(entity, attribute, name, value, op, seconds) -> bool
//	log(message)
//
// A lua.State is not safe for concurrent use, and a flow may re-enter
// itself through apply_mark, so states are pooled per flow.
type LuaFlow struct {
	trigger Signal
	name    string
	source  string
	pool    sync.Pool
}

// luaVM is one compiled copy of the script plus the context of the run in progress.
type luaVM struct {
	state *lua.State
	ctx   *Context
}

// NewLuaFlow compiles source and checks that it defines run.
func NewLuaFlow(trigger Signal, name, source string) (*LuaFlow, error) {
	f := &LuaFlow{trigger: trigger, name: name, source: source}
	vm, err := f.newVM()
	if err != nil {
		return nil, err
	}
	f.pool.Put(vm)
	return f, nil
}

// LoadLuaFlow reads a script file and compiles it.
func LoadLuaFlow(trigger Signal, path string) (*LuaFlow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script %s: %w", path, err)
	}
	return NewLuaFlow(trigger, path, string(data))
}

func (f *LuaFlow) Trigger() Signal { return f.trigger }

// Name returns the script name used in errors.
func (f *LuaFlow) Name() string { return f.name }

func (f *LuaFlow) Run(ctx *Context) error {
	vm, ok := f.pool.Get().(*luaVM)
	if !ok {
		var err error
		if vm, err = f.newVM(); err != nil {
			return err
		}
	}

	vm.ctx = ctx
	defer func() {
		vm.ctx = nil
		vm.state.SetTop(0)
		f.pool.Put(vm)
	}()

	l := vm.state
	l.Global("run")
	if !l.IsFunction(-1) {
		return fmt.Errorf("script %s: run is not a function", f.name)
	}
	pushContext(l, ctx)
	if err := l.ProtectedCall(1, 0, 0); err != nil {
		return fmt.Errorf("script %s: %w", f.name, err)
	}
	return nil
}

func (f *LuaFlow) newVM() (*luaVM, error) {
	vm := &luaVM{state: lua.NewState()}
	l := vm.state
	lua.OpenLibraries(l)
	vm.register()

	if err := lua.LoadBuffer(l, f.source, f.name, "t"); err != nil {
		return nil, fmt.Errorf("compiling script %s: %w", f.name, err)
	}
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		return nil, fmt.Errorf("loading script %s: %w", f.name, err)
	}

	l.Global("run")
	defined := l.IsFunction(-1)
	l.SetTop(0)
	if !defined {
		return nil, fmt.Errorf("script %s: missing function run(ctx)", f.name)
	}
	return vm, nil
}

func pushContext(l *lua.State, ctx *Context) {
	l.NewTable()
	l.PushString(ctx.Signal.String())
	l.SetField(-2, "signal")
	l.PushString(ctx.BehaviorID)
	l.SetField(-2, "behavior")
	l.PushString(ctx.Mark)
	l.SetField(-2, "mark")
	l.PushString(ctx.Owner.String())
	l.SetField(-2, "owner")
	l.PushString(ctx.Target.String())
	l.SetField(-2, "target")
}

func (vm *luaVM) register() {
	l := vm.state

	l.Register("apply_modifier", func(l *lua.State) int {
		id := checkEntity(l, 1)
		typ := checkModifierType(l, 2)
		source := lua.CheckString(l, 3)
		value := lua.CheckNumber(l, 4)
		durationMs := lua.OptNumber(l, 5, 0)
		vm.actions(l).ApplyModifier(id, typ, source, value, time.Duration(durationMs*float64(time.Millisecond)))
		return 0
	})

	l.Register("remove_modifier", func(l *lua.State) int {
		id := checkEntity(l, 1)
		typ := checkModifierType(l, 2)
		source := lua.CheckString(l, 3)
		l.PushBoolean(vm.actions(l).RemoveModifier(id, typ, source))
		return 1
	})

	l.Register("multiplier", func(l *lua.State) int {
		id := checkEntity(l, 1)
		typ := checkModifierType(l, 2)
		l.PushNumber(vm.actions(l).Multiplier(id, typ))
		return 1
	})

	l.Register("apply_mark", func(l *lua.State) int {
		id := checkEntity(l, 1)
		name := lua.CheckString(l, 2)
		seconds := lua.CheckNumber(l, 3)
		behaviorID := lua.OptString(l, 4, "")
		group := lua.OptString(l, 5, "")
		actions := vm.actions(l)
		actions.ApplyMark(id, name, seconds, behaviorID, vm.ctx.Owner, group)
		return 0
	})

	l.Register("remove_mark", func(l *lua.State) int {
		id := checkEntity(l, 1)
		name := lua.CheckString(l, 2)
		l.PushBoolean(vm.actions(l).RemoveMark(id, name))
		return 1
	})

	l.Register("has_mark", func(l *lua.State) int {
		id := checkEntity(l, 1)
		name := lua.CheckString(l, 2)
		l.PushBoolean(vm.actions(l).HasMark(id, name))
		return 1
	})

	l.Register("set_overlay", func(l *lua.State) int {
		id := checkEntity(l, 1)
		kind, err := model.ParseAttributeKind(lua.CheckString(l, 2))
		if err != nil {
			lua.Errorf(l, "%s", err.Error())
		}
		name := lua.CheckString(l, 3)
		value := lua.CheckNumber(l, 4)
		op, err := model.ParseOperation(lua.OptString(l, 5, "ADD_SCALAR"))
		if err != nil {
			lua.Errorf(l, "%s", err.Error())
		}
		seconds := lua.OptInteger(l, 6, 0)
		l.PushBoolean(vm.actions(l).SetNamedOverlay(id, kind, name, value, op, seconds))
		return 1
	})

	l.Register("log", func(l *lua.State) int {
		msg := lua.CheckString(l, 1)
		behaviorID := ""
		if vm.ctx != nil {
			behaviorID = vm.ctx.BehaviorID
		}
		slog.Info(msg, "behavior", behaviorID, "script", "lua")
		return 0
	})
}

func (vm *luaVM) actions(l *lua.State) Actions {
	if vm.ctx == nil || vm.ctx.Actions == nil {
		lua.Errorf(l, "host functions are only available inside run(ctx)")
	}
	return vm.ctx.Actions
}

func checkEntity(l *lua.State, index int) model.EntityID {
	id, err := model.ParseEntityID(lua.CheckString(l, index))
	if err != nil {
		lua.Errorf(l, "%s", err.Error())
	}
	return id
}

func checkModifierType(l *lua.State, index int) modifier.Type {
	typ, err := modifier.ParseType(lua.CheckString(l, index))
	if err != nil {
		lua.Errorf(l, "%s", err.Error())
	}
	return typ
}
