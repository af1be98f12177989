// Package registry maps quote method names to the adapter modules that
// implement them. Adapter packages register a constructor under a module
// name (usually from an init function, the way database/sql drivers do);
// a Registry instance then loads modules per session and resolves a
// method name to the ordered bindings that can serve it.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"quotefetch/internal/quote"
)

// ErrUnknownMethod is returned by Resolve when no loaded module
// implements the requested method.
var ErrUnknownMethod = errors.New("unknown quote method")

// AdapterFunc fetches quotes for symbols from one data source. The
// returned Result may cover any subset of the symbols; missing or
// failed symbols are the dispatcher's problem, not the adapter's.
type AdapterFunc func(ctx context.Context, symbols []string) (quote.Result, error)

// Module is one loadable data-source adapter.
type Module interface {
	// Methods maps each method name the module implements to its fetch
	// function.
	Methods() map[string]AdapterFunc
	// Labels maps each method name to the labels that method can
	// produce.
	Labels() map[string][]string
	// CurrencyFields lists the output labels whose values are
	// currency-denominated. A nil return means the standard list.
	CurrencyFields() []string
}

// Constructor builds a Module from its per-session parameters
// (credentials, endpoints and the like).
type Constructor func(params map[string]string) (Module, error)

var (
	modulesMu sync.RWMutex
	modules   = map[string]Constructor{}
)

// Register makes a module constructor available under name. It is meant
// to be called from adapter package init functions; registering the
// same name twice panics, as does a nil constructor.
func Register(name string, ctor Constructor) {
	modulesMu.Lock()
	defer modulesMu.Unlock()
	if ctor == nil {
		panic("registry: Register with nil constructor")
	}
	if _, dup := modules[name]; dup {
		panic("registry: Register called twice for module " + name)
	}
	modules[name] = ctor
}

// Modules returns the sorted names of all registered modules.
func Modules() []string {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	out := make([]string, 0, len(modules))
	for name := range modules {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func lookup(name string) (Constructor, bool) {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	ctor, ok := modules[name]
	return ctor, ok
}

// Binding associates a method name with one module's implementation of
// it plus the metadata the dispatcher needs. Immutable once created.
type Binding struct {
	Module         string
	Method         string
	Fn             AdapterFunc
	Labels         []string
	CurrencyFields []string
}

// HasLabel reports whether the binding declares the given label.
func (b Binding) HasLabel(label string) bool {
	for _, l := range b.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Registry holds the method bindings of one session. It grows during
// session initialization and is read-only afterwards; methods keep
// per-method binding order equal to module load order.
type Registry struct {
	loaded   map[string]bool
	bindings map[string][]Binding
	order    []string // method names in first-seen order
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		loaded:   map[string]bool{},
		bindings: map[string][]Binding{},
	}
}

// Load constructs the named module and appends a binding for every
// method it implements. Loading the same module again is a no-op.
func (r *Registry) Load(name string, params map[string]string) error {
	if r.loaded[name] {
		return nil
	}
	ctor, ok := lookup(name)
	if !ok {
		return fmt.Errorf("module %q is not registered", name)
	}
	mod, err := ctor(params)
	if err != nil {
		return fmt.Errorf("load module %q: %w", name, err)
	}

	fields := mod.CurrencyFields()
	if fields == nil {
		fields = quote.DefaultCurrencyFields
	}
	fields = dedup(fields)

	labels := mod.Labels()
	methods := mod.Methods()
	// Walk method names sorted so two sessions loading the same modules
	// end up with identical binding order.
	names := make([]string, 0, len(methods))
	for method := range methods {
		names = append(names, method)
	}
	sort.Strings(names)
	for _, method := range names {
		if _, seen := r.bindings[method]; !seen {
			r.order = append(r.order, method)
		}
		r.bindings[method] = append(r.bindings[method], Binding{
			Module:         name,
			Method:         method,
			Fn:             methods[method],
			Labels:         labels[method],
			CurrencyFields: fields,
		})
	}
	r.loaded[name] = true
	return nil
}

// Resolve returns the bindings for method in load order.
func (r *Registry) Resolve(method string) ([]Binding, error) {
	bs := r.bindings[method]
	if len(bs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	return bs, nil
}

// MethodNames lists every method at least one loaded module implements,
// in first-registration order.
func (r *Registry) MethodNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Loaded reports whether the named module has been loaded.
func (r *Registry) Loaded(name string) bool { return r.loaded[name] }

func dedup(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
