package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragdex/internal/logging"
)

// Constructor builds an uninitialized Store. The factory calls Initialize.
type Constructor func(persistDir string, embedder Embedder, cfg Config, logger *zap.Logger) (Store, error)

// optionalBackends maps backends that can be compiled out to an install hint.
var optionalBackends = map[string]string{
	BackendQdrant: "rebuild without the noqdrant build tag, e.g. go build ./cmd/ragdex",
}

// builtins is filled by init functions before any Registry is created.
var builtins = map[string]Constructor{
	"chromadb": newChromem,
	"chroma":   newChromem,
	"chromem":  newChromem,
}

func newChromem(persistDir string, embedder Embedder, cfg Config, logger *zap.Logger) (Store, error) {
	return NewChromemStore(persistDir, embedder, cfg, logger)
}

// Registry maps lower-cased backend names to constructors. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor

	probeOnce sync.Once
}

// NewRegistry returns a registry seeded with the built-in backends.
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[string]Constructor, len(builtins))}
	for name, ctor := range builtins {
		r.ctors[name] = ctor
	}
	return r
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry used by the package
// level functions.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Register adds or replaces a backend.
func (r *Registry) Register(name string, ctor Constructor) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidAdapter)
	}
	if ctor == nil {
		return fmt.Errorf("%w: %q has a nil constructor", ErrInvalidAdapter, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[name] = ctor
	return nil
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.ctors[name]
	return ctor, ok
}

// logAvailability logs, once per registry, which optional backends were
// compiled in.
func (r *Registry) logAvailability(ctx context.Context, logger *logging.Logger) {
	r.probeOnce.Do(func() {
		for name := range optionalBackends {
			_, ok := r.lookup(name)
			logger.Debug(ctx, "optional vector store backend",
				zap.String("backend", name),
				zap.Bool("available", ok),
			)
		}
	})
}

// Create looks up typ, constructs the store and initializes it.
func (r *Registry) Create(ctx context.Context, typ, persistDir string, embedder Embedder, opts ...Option) (Store, error) {
	o := newOptions(opts)
	logger := logging.Wrap(o.logger)
	r.logAvailability(ctx, logger)

	name := strings.ToLower(strings.TrimSpace(typ))
	ctor, ok := r.lookup(name)
	if !ok {
		if hint, optional := optionalBackends[name]; optional {
			return nil, &MissingDependencyError{Backend: name, Hint: hint}
		}
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnsupportedBackend, typ, strings.Join(r.List(), ", "))
	}

	cfg, err := DecodeConfig(o.values)
	if err != nil {
		return nil, err
	}
	cfg.Type = name
	for key := range cfg.Extra {
		logger.Debug(ctx, "ignoring unknown vector store option", zap.String("key", key))
	}

	store, err := ctor(persistDir, embedder, cfg, o.logger)
	if err != nil {
		return nil, fmt.Errorf("creating %s store: %w", name, err)
	}
	if err := store.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initializing %s store: %w", name, err)
	}

	logger.Info(logging.WithStore(ctx, name, cfg.CollectionName), "vector store ready",
		zap.String("name", store.Name()),
	)
	return store, nil
}

// CreateFromConfig reads the backend name from the "type" key (default
// "chromadb") and passes every other key as backend configuration.
func (r *Registry) CreateFromConfig(ctx context.Context, cfg map[string]any, persistDir string, embedder Embedder, opts ...Option) (Store, error) {
	typ := "chromadb"
	values := make(map[string]any, len(cfg))
	for k, v := range cfg {
		if strings.ToLower(k) == "type" {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: type must be a string, got %T", ErrInvalidConfig, v)
			}
			if s != "" {
				typ = s
			}
			continue
		}
		values[k] = v
	}
	return r.Create(ctx, typ, persistDir, embedder, append([]Option{WithConfig(values)}, opts...)...)
}

// Option configures Create.
type Option func(*options)

type options struct {
	logger *zap.Logger
	values map[string]any
}

func newOptions(opts []Option) *options {
	o := &options{values: map[string]any{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger handed to the store.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithConfig merges backend configuration keys (collection_name, mode, ...).
// Later options override earlier ones.
func WithConfig(values map[string]any) Option {
	return func(o *options) {
		for k, v := range values {
			o.values[k] = v
		}
	}
}

// RegisterAdapter registers a backend on the default registry.
func RegisterAdapter(name string, ctor Constructor) error {
	return DefaultRegistry().Register(name, ctor)
}

// ListAvailable returns the backends registered on the default registry.
func ListAvailable() []string {
	return DefaultRegistry().List()
}

// Create builds and initializes a store from the default registry.
func Create(ctx context.Context, typ, persistDir string, embedder Embedder, opts ...Option) (Store, error) {
	return DefaultRegistry().Create(ctx, typ, persistDir, embedder, opts...)
}

// CreateFromConfig builds and initializes a store from a flat config map.
func CreateFromConfig(ctx context.Context, cfg map[string]any, persistDir string, embedder Embedder, opts ...Option) (Store, error) {
	return DefaultRegistry().CreateFromConfig(ctx, cfg, persistDir, embedder, opts...)
}
