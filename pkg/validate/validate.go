// Package validate checks bound values against the CEL rules declared on
// their binding types. It runs after unmarshalling and never changes the
// value.
//
// Rules see the value as self. Complex values are maps keyed by the local
// names of their properties; properties that are not set are absent, so
// has(self.nickname) and has_key(self, "shoe-size") test for presence.
// Simple content is available as self.value.
package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	celgo "github.com/google/cel-go/cel"

	"github.com/twinfer/xbind/internal/cel"
	"github.com/twinfer/xbind/pkg/bts"
	"github.com/twinfer/xbind/pkg/marshal"
)

// ErrRule is returned when a rule does not compile.
var ErrRule = errors.New("invalid rule")

// Violation is a rule that did not hold.
type Violation struct {
	// Path locates the value, e.g. "person/child[1]".
	Path    string
	Type    bts.BindingTypeName
	Rule    string
	Message string
}

func (v Violation) Error() string {
	return v.Path + ": " + v.Message
}

// Violations is the error returned by Validate.
type Violations []Violation

func (vs Violations) Error() string {
	msgs := make([]string, len(vs))
	for i, v := range vs {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, "; ")
}

// TypeNamer reports the Go type name of a complex value; see
// marshal.TypeRegistry.NameOf.
type TypeNamer func(v any) (bts.GoTypeName, bool)

// Validator evaluates binding rules. It is safe for concurrent use.
type Validator struct {
	loader bts.BindingLoader
	pool   *cel.ExpressionPool
	namer  TypeNamer
	logger *slog.Logger

	envOpts []celgo.EnvOption
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithTypeNamer lets the validator find the runtime type of struct
// values, so rules of derived types apply. Map values carry their type
// under marshal.TypeKey and need no namer.
func WithTypeNamer(namer TypeNamer) Option {
	return func(v *Validator) {
		v.namer = namer
	}
}

// WithEnvOptions extends the rule environment, e.g. with functions or
// constants of the application. The built-in functions stay available.
func WithEnvOptions(opts ...celgo.EnvOption) Option {
	return func(v *Validator) {
		v.envOpts = append(v.envOpts, opts...)
	}
}

// New returns a validator for bindings from loader.
func New(loader bts.BindingLoader, opts ...Option) (*Validator, error) {
	v := &Validator{loader: loader, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	pool, err := newPool(v.envOpts)
	if err != nil {
		return nil, err
	}
	v.pool = pool
	return v, nil
}

func newPool(extra []celgo.EnvOption) (*cel.ExpressionPool, error) {
	if len(extra) == 0 {
		return cel.NewExpressionPool()
	}
	env, err := cel.NewEnvironment()
	if err != nil {
		return nil, err
	}
	env, err = env.Extend(extra...)
	if err != nil {
		return nil, fmt.Errorf("extending rule environment: %w", err)
	}
	return cel.NewExpressionPoolWithEnv(env)
}

// ForTypes returns a validator sharing v's compiled rules that finds the
// runtime type of struct values with namer.
func (v *Validator) ForTypes(namer TypeNamer) *Validator {
	c := *v
	c.namer = namer
	return &c
}

// Compile compiles every rule reachable from bt, reporting the first that
// does not compile.
func (v *Validator) Compile(bt *bts.BindingType) error {
	return v.compile(bt, make(map[bts.BindingTypeName]bool))
}

func (v *Validator) compile(bt *bts.BindingType, seen map[bts.BindingTypeName]bool) error {
	if bt == nil || seen[bt.Name] {
		return nil
	}
	seen[bt.Name] = true
	for _, r := range bt.Rules {
		if _, err := v.pool.GetExpression(r.Expr); err != nil {
			return fmt.Errorf("%w on %s: %w", ErrRule, bt.Name, err)
		}
	}
	props := bt.Properties
	if bt.Content != nil {
		props = append(props[:len(props):len(props)], *bt.Content)
	}
	for _, p := range props {
		pt, _ := v.loader.BindingType(p.TypeName)
		if err := v.compile(pt, seen); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks obj, bound as bt, and everything it contains. It returns
// Violations when rules fail, or an error wrapping ErrRule when a rule
// does not compile.
func (v *Validator) Validate(ctx context.Context, obj any, bt *bts.BindingType) error {
	w := walker{v: v, ctx: ctx}
	if err := w.value(bt.Name.Xml.Local, obj, bt); err != nil {
		return err
	}
	if len(w.violations) > 0 {
		v.logger.DebugContext(ctx, "validation failed", "type_name", bt.Name.String(), "violations", len(w.violations))
		return w.violations
	}
	return nil
}

type walker struct {
	v          *Validator
	ctx        context.Context
	violations Violations
}

func (w *walker) value(path string, obj any, bt *bts.BindingType) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	rv := reflect.ValueOf(obj)
	if obj == nil || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
		return nil
	}
	if bt.Kind.IsSimple() {
		return w.check(path, obj, bt)
	}
	if rv.Kind() == reflect.Struct {
		ptr := reflect.New(rv.Type())
		ptr.Elem().Set(rv)
		obj = ptr.Interface()
	}
	bt = w.runtimeType(obj, bt)

	view := make(map[string]any, len(bt.Properties)+1)
	for _, p := range bt.Properties {
		val, present, err := marshal.PropertyValue(p, obj)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if !present || val == nil {
			continue
		}
		view[p.Name.Local] = val
		pt, ok := w.v.loader.BindingType(p.TypeName)
		if !ok {
			continue
		}
		if err := w.property(path+"/"+p.Name.Local, p, val, pt); err != nil {
			return err
		}
	}
	if c := bt.Content; c != nil {
		val, present, err := marshal.PropertyValue(*c, obj)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if present && val != nil {
			view["value"] = val
			if ct, ok := w.v.loader.BindingType(c.TypeName); ok {
				if err := w.check(path, val, ct); err != nil {
					return err
				}
			}
		}
	}
	return w.check(path, view, bt)
}

func (w *walker) property(path string, p bts.BindingProperty, val any, pt *bts.BindingType) error {
	if !p.Multiple {
		return w.value(path, val, pt)
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return w.value(path, val, pt)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := w.value(fmt.Sprintf("%s[%d]", path, i), rv.Index(i).Interface(), pt); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) runtimeType(obj any, static *bts.BindingType) *bts.BindingType {
	var (
		name bts.GoTypeName
		ok   bool
	)
	if m, isMap := obj.(map[string]any); isMap {
		s, isString := m[marshal.TypeKey].(string)
		name, ok = bts.GoTypeName(s), isString && s != ""
	} else if w.v.namer != nil {
		name, ok = w.v.namer(obj)
	}
	if !ok || name == static.Name.Go {
		return static
	}
	if tn, found := w.v.loader.LookupXmlFor(name); found {
		if bt, found := w.v.loader.BindingType(tn); found && !bt.Kind.IsSimple() {
			return bt
		}
	}
	return static
}

func (w *walker) check(path string, self any, bt *bts.BindingType) error {
	for _, r := range bt.Rules {
		prog, err := w.v.pool.GetExpression(r.Expr)
		if err != nil {
			return fmt.Errorf("%w on %s: %w", ErrRule, bt.Name, err)
		}
		res, err := w.v.pool.EvaluateExpression(prog, map[string]any{cel.SelfVariable: self})
		msg := r.Message
		if msg == "" {
			msg = "rule " + r.Expr + " failed"
		}
		switch {
		case err != nil:
			msg = fmt.Sprintf("rule %s: %v", r.Expr, err)
		case res == true:
			continue
		}
		w.violations = append(w.violations, Violation{Path: path, Type: bt.Name, Rule: r.Expr, Message: msg})
	}
	return nil
}
