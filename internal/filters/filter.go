package filters

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sawpanic/wbws/internal/indicators"
	"github.com/sawpanic/wbws/internal/signals"
)

// ReasonInsufficientHistory is the veto reason of a filter that has not warmed up
const ReasonInsufficientHistory = "insufficient_history"

// Vote is a filter's verdict on one signal
type Vote struct {
	Decision signals.Decision
	Reason   string
}

// Pass returns a passing vote
func Pass(reason string) Vote { return Vote{Decision: signals.Pass, Reason: reason} }

// Veto returns a vetoing vote
func Veto(reason string) Vote { return Vote{Decision: signals.Veto, Reason: reason} }

// Filter evaluates a signal against the bar history visible at its anchor.
// Filters hold configuration only; the indicator state lives in the window.
type Filter interface {
	Name() string
	Evaluate(sig signals.Signal, w indicators.Window) Vote
}

// Params are the numeric settings of a filter
type Params map[string]float64

// Get returns p[key] or def when absent
func (p Params) Get(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Factory builds a filter from its params
type Factory func(Params) (Filter, error)

// ErrUnknownFilter is returned for names nobody registered
var ErrUnknownFilter = errors.New("unknown filter")

// Registry maps filter names to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name, replacing any previous one
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Build instantiates the named filter
func (r *Registry) Build(name string, p Params) (Filter, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFilter, name)
	}
	filter, err := f(p)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", name, err)
	}
	return filter, nil
}

// Names lists the registered filters in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default holds the built-in filters
var Default = NewRegistry()

func init() {
	Default.Register(RSIName, NewRSIFilter)
	Default.Register(BollingerName, NewBollingerFilter)
}

// Chain applies filters in order and stops at the first veto.
type Chain struct {
	filters []Filter
}

// NewChain creates a chain over filters
func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: filters}
}

// Len returns the number of filters
func (c *Chain) Len() int { return len(c.filters) }

// Apply evaluates sig and returns the finalized copy with every evaluated vote recorded.
func (c *Chain) Apply(sig signals.Signal, w indicators.Window) signals.Signal {
	for _, f := range c.filters {
		v := f.Evaluate(sig, w)
		sig = sig.WithVote(signals.FilterVote{Name: f.Name(), Decision: v.Decision, Reason: v.Reason})
		if v.Decision == signals.Veto {
			break
		}
	}
	return sig
}
