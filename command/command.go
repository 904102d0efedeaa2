package command

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/goliatone/go-dbcommand/dberrors"
)

// Conn is what a Command runs against: *sql.DB, *sql.Conn and *sql.Tx all satisfy it.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type nullValue struct{}

func (nullValue) Value() (driver.Value, error) { return nil, nil }
func (nullValue) String() string               { return "NULL" }

// Null is the explicit database null bound in place of Go nil values.
var Null driver.Valuer = nullValue{}

type boundParam struct {
	name      string
	direction Direction
	value     any
	dest      any
}

// Command is an assembled, ready to run statement.
type Command struct {
	Text    string
	Kind    Kind
	Timeout time.Duration
	Args    []any

	params   []boundParam
	byName   map[string]int
	ret      *boundParam
	disposed bool
}

// Assemble renders spec for dialect and binds b against item. Parameters are
// bound constants first, then item values, conditional item values whose
// predicate holds, output parameters, and finally the return value.
func Assemble[T any](spec Spec, b Binding[T], item T, d Dialect) (*Command, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if b.err != nil {
		return nil, b.err
	}

	cmd := &Command{Kind: spec.Kind, Timeout: spec.Timeout(), byName: map[string]int{}}
	for st := stageConstant; st <= stageReturn; st++ {
		for _, p := range b.params {
			if p.stage != st {
				continue
			}
			bp, ok, err := bindParam(p, item)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if st == stageReturn {
				if !d.ReturnValues {
					return nil, dberrors.NewConfigError("Binding."+p.name, "dialect %s does not support return values", d.Name)
				}
				ret := bp
				cmd.ret = &ret
				continue
			}
			cmd.byName[normalizeName(p.name)] = len(cmd.params)
			cmd.params = append(cmd.params, bp)
		}
	}

	var err error
	switch spec.Kind {
	case StoredProcedure:
		err = cmd.renderCall(spec.Text, d)
	default:
		err = cmd.renderText(spec.Text, d)
	}
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

func bindParam[T any](p param[T], item T) (boundParam, bool, error) {
	bp := boundParam{name: p.name, direction: p.direction()}
	switch p.stage {
	case stageOutput, stageReturn:
		bp.dest = p.dbType.destination()
		return bp, true, nil
	case stageConditional:
		if p.when == nil {
			return bp, false, nil
		}
		ok, err := p.when(item)
		if err != nil {
			return bp, false, dberrors.NewConfigError("Binding."+p.name, "predicate failed: %v", err)
		}
		if !ok {
			return bp, false, nil
		}
	}
	bp.value = nullable(p.value(item))
	return bp, true, nil
}

func nullable(v any) any {
	if v == nil {
		return Null
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		if rv.IsNil() {
			return Null
		}
	}
	return v
}

func (c *Command) arg(p boundParam, named bool) any {
	var v any = p.value
	if p.dest != nil {
		v = sql.Out{Dest: p.dest}
	}
	if named {
		return sql.Named(strings.TrimLeft(p.name, "@:"), v)
	}
	return v
}

func (c *Command) renderCall(name string, d Dialect) error {
	if d.CallFormat == "" {
		return dberrors.NewConfigError("Spec.Kind", "dialect %s does not support stored procedures", d.Name)
	}
	list := make([]string, 0, len(c.params))
	for i, p := range c.params {
		if d.NamedArgs {
			n := strings.TrimLeft(p.name, "@:")
			list = append(list, "@"+n+" = @"+n)
		} else {
			list = append(list, d.placeholder(i+1))
		}
		c.Args = append(c.Args, c.arg(p, d.NamedArgs))
	}
	if c.ret != nil {
		c.Args = append(c.Args, c.arg(*c.ret, true))
	}
	c.Text = fmt.Sprintf(d.CallFormat, name, strings.Join(list, ", "))
	return nil
}

func (c *Command) renderText(text string, d Dialect) error {
	if d.NamedArgs {
		c.Text = text
		for _, p := range c.params {
			c.Args = append(c.Args, c.arg(p, true))
		}
		if c.ret != nil {
			c.Args = append(c.Args, c.arg(*c.ret, true))
		}
		return nil
	}

	rewritten, names, err := rewriteNamed(text, d)
	if err != nil {
		return dberrors.NewConfigError("Spec.Text", "%v", err)
	}
	c.Text = rewritten

	if len(names) == 0 {
		for _, p := range c.params {
			c.Args = append(c.Args, c.arg(p, false))
		}
		return nil
	}

	for _, name := range names {
		idx, ok := c.byName[normalizeName(name)]
		if !ok {
			return dberrors.NewConfigError("Binding."+name, "no parameter bound for %q", name)
		}
		c.Args = append(c.Args, c.arg(c.params[idx], false))
	}
	return nil
}

// Output returns the value of an output parameter after execution. The
// boolean is false when no such parameter was declared.
func (c *Command) Output(name string) (any, bool) {
	idx, ok := c.byName[normalizeName(name)]
	if !ok || c.params[idx].dest == nil {
		return nil, false
	}
	return readDestination(c.params[idx].dest), true
}

// ReturnValue returns the bound return value after execution.
func (c *Command) ReturnValue() (any, bool) {
	if c.ret == nil {
		return nil, false
	}
	return readDestination(c.ret.dest), true
}

// Snapshot captures the command for diagnostics.
func (c *Command) Snapshot() dberrors.Snapshot {
	s := dberrors.Snapshot{Text: c.Text, Kind: c.Kind.String()}
	all := c.params
	if c.ret != nil {
		all = append(all[:len(all):len(all)], *c.ret)
	}
	for _, p := range all {
		v := p.value
		if p.dest != nil {
			v = readDestination(p.dest)
		}
		if v == Null {
			v = nil
		}
		s.Parameters = append(s.Parameters, dberrors.Parameter{Name: p.name, Direction: p.direction.String(), Value: v})
	}
	return s
}

// Dispose drops every bound value. It is safe to call more than once.
func (c *Command) Dispose() {
	if c.disposed {
		return
	}
	c.disposed = true
	c.Args = nil
	for i := range c.params {
		c.params[i].value = nil
	}
}

// Disposed reports whether Dispose has run.
func (c *Command) Disposed() bool { return c.disposed }

// Exec runs the command as a statement.
func (c *Command) Exec(ctx context.Context, conn Conn) (sql.Result, error) {
	return conn.ExecContext(ctx, c.Text, c.Args...)
}

// Query runs the command and returns its rows.
func (c *Command) Query(ctx context.Context, conn Conn) (*sql.Rows, error) {
	return conn.QueryContext(ctx, c.Text, c.Args...)
}
