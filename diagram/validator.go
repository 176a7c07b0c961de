package diagram

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// Validator checks a decoded spec and returns a usable, possibly repaired
// version of it.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - raw is the JSON the spec was decoded from. It may be nil, in which
//     case implementations serialize spec themselves.
//   - On mismatch the returned spec is still the best available value and
//     the error should match ErrSchema.
type Validator interface {
	Validate(ctx context.Context, raw []byte, spec *Spec) (*Spec, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, raw []byte, spec *Spec) (*Spec, error)

// Validate calls f.
func (f ValidatorFunc) Validate(ctx context.Context, raw []byte, spec *Spec) (*Spec, error) {
	return f(ctx, raw, spec)
}

// NopValidator accepts every spec unchanged.
type NopValidator struct{}

// Validate returns spec.
func (NopValidator) Validate(_ context.Context, _ []byte, spec *Spec) (*Spec, error) {
	return spec, nil
}

//go:embed schema.cue
var schemaSource []byte

// schemaChecker is one CUE context with the schema compiled into it. A
// cue.Context is not safe for concurrent use, so each checker serves one
// compile at a time.
type schemaChecker struct {
	cctx   *cue.Context
	schema cue.Value
}

func newSchemaChecker() (*schemaChecker, error) {
	cctx := cuecontext.New()

	root := cctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("diagram: compile schema: %w", err)
	}

	schema := root.LookupPath(cue.ParsePath("#Diagram"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("diagram: lookup #Diagram: %w", err)
	}
	return &schemaChecker{cctx: cctx, schema: schema}, nil
}

func (c *schemaChecker) check(raw []byte) []Issue {
	data := c.cctx.CompileBytes(raw, cue.Filename("diagram.json"))
	if err := data.Err(); err != nil {
		return issuesFrom(err)
	}

	if err := c.schema.Unify(data).Validate(cue.Concrete(true), cue.All()); err != nil {
		return issuesFrom(err)
	}
	return nil
}

// SchemaOption configures a SchemaValidator.
type SchemaOption func(*schemaOptions)

type schemaOptions struct {
	contexts int
}

// WithContexts caps how many CUE contexts, and so how many concurrent
// compiles, the validator keeps. Default: GOMAXPROCS.
func WithContexts(n int) SchemaOption {
	return func(o *schemaOptions) {
		if n > 0 {
			o.contexts = n
		}
	}
}

// SchemaValidator validates specs against the embedded CUE #Diagram schema
// and repairs dangling references with Repair.
//
// Compiles run on a bounded pool of CUE contexts created on demand. When
// every context is busy, Validate waits for one or for ctx.
type SchemaValidator struct {
	idle chan *schemaChecker

	mu      sync.Mutex
	created int
	limit   int
}

// NewSchemaValidator compiles the embedded schema.
func NewSchemaValidator(opts ...SchemaOption) (*SchemaValidator, error) {
	o := schemaOptions{contexts: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}

	first, err := newSchemaChecker()
	if err != nil {
		return nil, err
	}

	v := &SchemaValidator{
		idle:    make(chan *schemaChecker, o.contexts),
		created: 1,
		limit:   o.contexts,
	}
	v.idle <- first
	return v, nil
}

// Validate checks raw against the schema, then repairs spec. It returns a
// *SchemaError listing every schema violation and every repair.
func (v *SchemaValidator) Validate(ctx context.Context, raw []byte, spec *Spec) (*Spec, error) {
	if err := ctx.Err(); err != nil {
		return spec, err
	}

	if raw == nil {
		data, err := json.Marshal(spec)
		if err != nil {
			return spec, fmt.Errorf("diagram: marshal spec: %w", err)
		}
		raw = data
	}

	c, err := v.acquire(ctx)
	if err != nil {
		return spec, err
	}
	issues := c.check(raw)
	v.idle <- c

	repaired, repairs := Repair(spec)
	issues = append(issues, repairs...)

	if len(issues) > 0 {
		return repaired, &SchemaError{Issues: issues}
	}
	return repaired, nil
}

// acquire takes an idle checker, creates one while under the limit, or
// waits.
func (v *SchemaValidator) acquire(ctx context.Context) (*schemaChecker, error) {
	select {
	case c := <-v.idle:
		return c, nil
	default:
	}

	if v.reserve() {
		c, err := newSchemaChecker()
		if err != nil {
			v.mu.Lock()
			v.created--
			v.mu.Unlock()
			return nil, err
		}
		return c, nil
	}

	select {
	case c := <-v.idle:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (v *SchemaValidator) reserve() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.created >= v.limit {
		return false
	}
	v.created++
	return true
}

func issuesFrom(err error) []Issue {
	var issues []Issue
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		issues = append(issues, Issue{
			Path:    e.Path(),
			Message: fmt.Sprintf(format, args...),
		})
	}
	return issues
}

var (
	_ Validator = (*SchemaValidator)(nil)
	_ Validator = NopValidator{}
	_ Validator = ValidatorFunc(nil)
)
