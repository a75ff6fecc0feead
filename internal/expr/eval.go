// Package expr implements the small expression language used by
// parameter interpolation: property access, arithmetic, comparisons,
// ternaries and registry function calls, evaluated against a caller
// supplied context.
//
// Evaluation fails soft: ordinary runtime misses (unknown property,
// type mismatch) produce a nil result and a debug log entry. Malformed
// or hostile input (syntax errors, oversized source, nesting beyond the
// depth ceiling) is returned as a hard error so callers can surface it.
package expr

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/conductor-html/conductor/internal/ratelimit"
)

// Defaults for Config zero values.
const (
	DefaultCacheSize = 100
	DefaultMaxLength = 1000
	DefaultMaxDepth  = 50
	DefaultRateLimit = 10000
)

// Function is a callable exposed to expressions through the registry.
type Function func(args ...any) (any, error)

// Config bounds the evaluator.
type Config struct {
	// CacheSize caps the parsed-AST LRU.
	CacheSize int
	// MaxLength is the longest accepted expression source.
	MaxLength int
	// MaxDepth caps parse and evaluation nesting.
	MaxDepth int
	// RateLimit caps evaluations per rolling second. Exceeding it
	// degrades evaluation to a nil result instead of failing.
	RateLimit int
}

func (c Config) withDefaults() Config {
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.MaxLength <= 0 {
		c.MaxLength = DefaultMaxLength
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	return c
}

// Evaluator parses and evaluates expressions. It is safe for
// concurrent use.
type Evaluator struct {
	cfg     Config
	cache   *astCache
	limiter *ratelimit.Window

	mu    sync.RWMutex
	funcs map[string]Function

	parses atomic.Int64
}

// New creates an evaluator with the default helper functions
// registered.
func New(cfg Config) *Evaluator {
	cfg = cfg.withDefaults()
	e := &Evaluator{
		cfg:     cfg,
		cache:   newASTCache(cfg.CacheSize),
		limiter: ratelimit.NewWindow(cfg.RateLimit, time.Second),
		funcs:   make(map[string]Function),
	}
	registerDefaults(e)
	return e
}

// RegisterFunc exposes fn to expressions under name. Re-registration
// overwrites.
func (e *Evaluator) RegisterFunc(name string, fn Function) error {
	if name == "" {
		return fmt.Errorf("function name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("function %s: nil callback", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.funcs[name] = fn
	return nil
}

// UnregisterFunc removes a registered function. Unknown names are a
// no-op.
func (e *Evaluator) UnregisterFunc(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.funcs, name)
}

func (e *Evaluator) lookupFunc(name string) (Function, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.funcs[name]
	return fn, ok
}

// Parse returns the AST for src, consulting the LRU first.
func (e *Evaluator) Parse(src string) (Node, error) {
	if len(src) > e.cfg.MaxLength {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLong, len(src), e.cfg.MaxLength)
	}
	if node, ok := e.cache.get(src); ok {
		return node, nil
	}
	node, err := Parse(src, e.cfg.MaxDepth)
	if err != nil {
		return nil, err
	}
	e.parses.Add(1)
	e.cache.put(src, node)
	return node, nil
}

// ParseCount reports how many source strings have actually been
// parsed, excluding cache hits.
func (e *Evaluator) ParseCount() int64 { return e.parses.Load() }

// CacheLen reports the number of cached ASTs.
func (e *Evaluator) CacheLen() int { return e.cache.len() }

// PurgeCache drops all cached ASTs.
func (e *Evaluator) PurgeCache() { e.cache.purge() }

// Evaluate runs src against context. Ordinary runtime failures return
// (nil, nil) and log at debug level; syntax, length and depth
// violations return a hard error. Hitting the evaluation rate limit
// returns (nil, nil) with a warning.
func (e *Evaluator) Evaluate(src string, context map[string]any) (any, error) {
	if !e.limiter.Allow() {
		log.Warn().Str("expression", truncate(src, 80)).Msg("expression rate limit exceeded, returning empty result")
		return nil, nil
	}

	node, err := e.Parse(src)
	if err != nil {
		return nil, err
	}

	v, err := e.eval(node, context, 0)
	if err != nil {
		if isHard(err) {
			return nil, err
		}
		log.Debug().Err(err).Str("expression", truncate(src, 80)).Msg("expression evaluation failed")
		return nil, nil
	}
	return v, nil
}

// EvaluateAST evaluates an already-parsed tree. Used by callers that
// manage their own parse step.
func (e *Evaluator) EvaluateAST(node Node, context map[string]any) (any, error) {
	v, err := e.eval(node, context, 0)
	if err != nil {
		if isHard(err) {
			return nil, err
		}
		log.Debug().Err(err).Msg("expression evaluation failed")
		return nil, nil
	}
	return v, nil
}

func isHard(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrDepth) || errors.Is(err, ErrSyntax) || errors.Is(err, ErrTooLong)
}

func (e *Evaluator) eval(n Node, ctx map[string]any, depth int) (any, error) {
	if depth > e.cfg.MaxDepth {
		return nil, ErrDepth
	}
	depth++

	switch node := n.(type) {
	case *literalNode:
		return node.value, nil

	case *identNode:
		// Context shadows the function registry; a missing name is
		// undefined, not an error, so `missing || fallback` works.
		if v, ok := ctx[node.name]; ok {
			return v, nil
		}
		if fn, ok := e.lookupFunc(node.name); ok {
			return fn, nil
		}
		return nil, nil

	case *unaryNode:
		x, err := e.eval(node.x, ctx, depth)
		if err != nil {
			return nil, err
		}
		switch node.op {
		case "!":
			return !Truthy(x), nil
		case "-":
			f, ok := asNumber(x)
			if !ok {
				return nil, fmt.Errorf("cannot negate %T", x)
			}
			return -f, nil
		}
		return nil, fmt.Errorf("unknown unary operator %q", node.op)

	case *binaryNode:
		return e.evalBinary(node, ctx, depth)

	case *ternaryNode:
		cond, err := e.eval(node.cond, ctx, depth)
		if err != nil {
			return nil, err
		}
		if Truthy(cond) {
			return e.eval(node.then, ctx, depth)
		}
		return e.eval(node.alt, ctx, depth)

	case *memberNode:
		x, err := e.eval(node.x, ctx, depth)
		if err != nil {
			return nil, err
		}
		return member(x, node.name)

	case *indexNode:
		x, err := e.eval(node.x, ctx, depth)
		if err != nil {
			return nil, err
		}
		idx, err := e.eval(node.index, ctx, depth)
		if err != nil {
			return nil, err
		}
		return index(x, idx)

	case *callNode:
		return e.evalCall(node, ctx, depth)
	}

	return nil, fmt.Errorf("unknown AST node %T", n)
}

func (e *Evaluator) evalBinary(node *binaryNode, ctx map[string]any, depth int) (any, error) {
	// Logical operators short-circuit and yield the deciding operand.
	switch node.op {
	case "&&":
		left, err := e.eval(node.left, ctx, depth)
		if err != nil {
			return nil, err
		}
		if !Truthy(left) {
			return left, nil
		}
		return e.eval(node.right, ctx, depth)
	case "||":
		left, err := e.eval(node.left, ctx, depth)
		if err != nil {
			return nil, err
		}
		if Truthy(left) {
			return left, nil
		}
		return e.eval(node.right, ctx, depth)
	}

	left, err := e.eval(node.left, ctx, depth)
	if err != nil {
		return nil, err
	}
	right, err := e.eval(node.right, ctx, depth)
	if err != nil {
		return nil, err
	}

	switch node.op {
	case "+":
		if lf, lok := asNumber(left); lok {
			if rf, rok := asNumber(right); rok {
				return lf + rf, nil
			}
		}
		return Stringify(left) + Stringify(right), nil
	case "-", "*", "/", "%":
		lf, lok := asNumber(left)
		rf, rok := asNumber(right)
		if !lok || !rok {
			return nil, fmt.Errorf("operator %q requires numbers, got %T and %T", node.op, left, right)
		}
		switch node.op {
		case "-":
			return lf - rf, nil
		case "*":
			return lf * rf, nil
		case "/":
			return lf / rf, nil
		case "%":
			return math.Mod(lf, rf), nil
		}
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	case "<", "<=", ">", ">=":
		return compare(node.op, left, right)
	}
	return nil, fmt.Errorf("unknown operator %q", node.op)
}

func (e *Evaluator) evalCall(node *callNode, ctx map[string]any, depth int) (any, error) {
	args := make([]any, len(node.args))
	for i, argNode := range node.args {
		v, err := e.eval(argNode, ctx, depth)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	// A context entry shadows the registry even for calls.
	if shadow, ok := ctx[node.name]; ok {
		if fn, ok := shadow.(Function); ok {
			return fn(args...)
		}
		if fn, ok := shadow.(func(args ...any) (any, error)); ok {
			return fn(args...)
		}
		return nil, fmt.Errorf("%s is not a function", node.name)
	}
	fn, ok := e.lookupFunc(node.name)
	if !ok {
		return nil, fmt.Errorf("unknown function %q", node.name)
	}
	return fn(args...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
