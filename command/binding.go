package command

import (
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/fatih/structs"
	"github.com/goliatone/go-dbcommand/dberrors"
)

// stage fixes the order parameters are bound in, whatever order they were added in.
type stage int

const (
	stageConstant stage = iota
	stageItem
	stageConditional
	stageOutput
	stageReturn
)

type param[T any] struct {
	name   string
	stage  stage
	dbType DbType
	value  func(T) any
	when   func(T) (bool, error)
}

func (p param[T]) direction() Direction {
	switch p.stage {
	case stageOutput:
		return Output
	case stageReturn:
		return ReturnValue
	default:
		return Input
	}
}

// Binding is the ordered parameter set of a command, evaluated against an
// item of type T each time the command is assembled. The zero value is an
// empty binding. Every method returns a new Binding; the receiver is never
// modified, so a Binding can be shared between goroutines.
type Binding[T any] struct {
	params []param[T]
	err    error
}

// Bind returns an empty binding for items of type T.
func Bind[T any]() Binding[T] { return Binding[T]{} }

func (b Binding[T]) with(p param[T]) Binding[T] {
	params := make([]param[T], len(b.params), len(b.params)+1)
	copy(params, b.params)
	return Binding[T]{params: append(params, p), err: b.err}
}

// Add binds a constant input parameter.
func (b Binding[T]) Add(name string, value any) Binding[T] {
	return b.with(param[T]{name: name, stage: stageConstant, value: func(T) any { return value }})
}

// AddIf binds a constant input parameter only when cond is true.
func (b Binding[T]) AddIf(cond bool, name string, value any) Binding[T] {
	if !cond {
		return b
	}
	return b.Add(name, value)
}

// AddFunc binds an input parameter computed from the item.
func (b Binding[T]) AddFunc(name string, fn func(T) any) Binding[T] {
	return b.with(param[T]{name: name, stage: stageItem, value: fn})
}

// AddFuncIf binds an input parameter computed from the item, only for items
// where pred returns true.
func (b Binding[T]) AddFuncIf(pred func(T) bool, name string, fn func(T) any) Binding[T] {
	return b.with(param[T]{
		name:  name,
		stage: stageConditional,
		value: fn,
		when:  func(item T) (bool, error) { return pred(item), nil },
	})
}

// AddWhen is AddFuncIf with the predicate written as a govaluate expression
// over the item's exported fields, e.g. "Status == 'active' && Total > 100".
// A malformed expression is reported when the command is assembled.
func (b Binding[T]) AddWhen(expr string, name string, fn func(T) any) Binding[T] {
	compiled, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		out := b.with(param[T]{name: name, stage: stageConditional, value: fn})
		if out.err == nil {
			out.err = &dberrors.ConfigError{Field: "Binding." + name, Message: fmt.Sprintf("invalid expression %q: %v", expr, err)}
		}
		return out
	}
	return b.with(param[T]{
		name:  name,
		stage: stageConditional,
		value: fn,
		when:  func(item T) (bool, error) { return evaluate(compiled, expr, item) },
	})
}

// AddOutput declares an output parameter read back through Command.Output.
func (b Binding[T]) AddOutput(name string, t DbType) Binding[T] {
	return b.with(param[T]{name: name, stage: stageOutput, dbType: t})
}

// SetReturn declares the return value parameter, replacing any previous one.
func (b Binding[T]) SetReturn(name string, t DbType) Binding[T] {
	params := make([]param[T], 0, len(b.params)+1)
	for _, p := range b.params {
		if p.stage != stageReturn {
			params = append(params, p)
		}
	}
	params = append(params, param[T]{name: name, stage: stageReturn, dbType: t})
	return Binding[T]{params: params, err: b.err}
}

// Len returns the number of declared parameters.
func (b Binding[T]) Len() int { return len(b.params) }

func evaluate(expr *govaluate.EvaluableExpression, text string, item any) (bool, error) {
	var vars map[string]interface{}
	switch v := item.(type) {
	case map[string]any:
		vars = v
	default:
		if !structs.IsStruct(item) {
			return false, fmt.Errorf("cannot evaluate %q against %T", text, item)
		}
		vars = structs.Map(item)
	}

	result, err := expr.Evaluate(vars)
	if err != nil {
		return false, err
	}
	ok, isBool := result.(bool)
	if !isBool {
		return false, fmt.Errorf("expression %q returned %T, want bool", text, result)
	}
	return ok, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimLeft(name, "@:$"))
}
