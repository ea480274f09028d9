package cache

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Eviction policies understood by Builder.
const (
	EvictionLRU  = "lru"
	EvictionFIFO = "fifo"
	EvictionSoft = "soft"
	EvictionWeak = "weak"
)

// ImplPerpetual is the built-in base store implementation name.
const ImplPerpetual = "perpetual"

// Factory creates a custom cache implementation for a namespace.
type Factory func(id string) Cache

// Initializer is implemented by custom caches that need to validate or
// prepare themselves after their properties were applied.
type Initializer interface {
	Initialize() error
}

// Implementations holds custom cache factories by name. Each configuration
// owns its own table.
type Implementations struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewImplementations creates an empty factory table.
func NewImplementations() *Implementations {
	return &Implementations{factories: make(map[string]Factory)}
}

// Register adds a factory. Names are case-insensitive.
func (r *Implementations) Register(name string, f Factory) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || key == ImplPerpetual {
		return fmt.Errorf("invalid cache implementation name %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("cache implementation %q is already registered", name)
	}
	r.factories[key] = f
	return nil
}

// Get returns the factory registered under name.
func (r *Implementations) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// Names returns the registered names, sorted.
func (r *Implementations) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Builder assembles a decorated cache for one namespace.
type Builder struct {
	id              string
	implementation  string
	eviction        string
	size            int
	flushInterval   time.Duration
	readWrite       bool
	blocking        bool
	blockingTimeout time.Duration
	properties      map[string]any
	logger          *slog.Logger
	impls           *Implementations
}

// NewBuilder creates a builder for the cache of namespace id. Defaults:
// perpetual base store, LRU eviction of DefaultSize entries, read-write copies.
func NewBuilder(id string) *Builder {
	return &Builder{
		id:             id,
		implementation: ImplPerpetual,
		eviction:       EvictionLRU,
		readWrite:      true,
	}
}

// Implementation selects a custom implementation registered in impls.
func (b *Builder) Implementation(name string, impls *Implementations) *Builder {
	if name != "" {
		b.implementation = name
	}
	b.impls = impls
	return b
}

// Eviction selects the eviction policy: lru, fifo, soft or weak.
func (b *Builder) Eviction(policy string) *Builder {
	if policy != "" {
		b.eviction = strings.ToLower(policy)
	}
	return b
}

// Size sets the capacity of LRU and FIFO eviction and the hard link window of soft eviction.
func (b *Builder) Size(n int) *Builder {
	b.size = n
	return b
}

// FlushInterval clears the cache periodically when positive.
func (b *Builder) FlushInterval(d time.Duration) *Builder {
	b.flushInterval = d
	return b
}

// ReadWrite enables copy-on-read/write through serialization.
func (b *Builder) ReadWrite(enabled bool) *Builder {
	b.readWrite = enabled
	return b
}

// Blocking enables per-key locking. A zero timeout waits indefinitely.
func (b *Builder) Blocking(enabled bool, timeout time.Duration) *Builder {
	b.blocking = enabled
	b.blockingTimeout = timeout
	return b
}

// Properties are decoded onto custom implementations with mapstructure.
func (b *Builder) Properties(props map[string]any) *Builder {
	b.properties = props
	return b
}

// Logger sets the logger of the logging decorator.
func (b *Builder) Logger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build creates the decorator chain. Custom implementations are only
// wrapped by the logging decorator; they own their eviction and locking.
func (b *Builder) Build() (Cache, error) {
	if b.implementation != ImplPerpetual {
		return b.buildCustom()
	}

	var c Cache = NewPerpetual(b.id)
	var err error
	switch b.eviction {
	case EvictionLRU:
		if c, err = NewLRU(c, b.size); err != nil {
			return nil, err
		}
	case EvictionFIFO:
		c = NewFIFO(c, b.size)
	case EvictionSoft:
		c = NewSoft(c, b.size)
	case EvictionWeak:
		c = NewWeak(c)
	default:
		return nil, cacheError(b.id, "unknown eviction policy %q", b.eviction)
	}
	if b.flushInterval > 0 {
		c = NewScheduled(c, b.flushInterval)
	}
	if b.readWrite {
		c = NewSerialized(c)
	}
	c = NewSynchronized(c)
	if b.blocking {
		c = NewBlocking(c, b.blockingTimeout)
	}
	return NewLogging(c, b.logger), nil
}

func (b *Builder) buildCustom() (Cache, error) {
	if b.impls == nil {
		return nil, cacheError(b.id, "unknown cache implementation %q", b.implementation)
	}
	factory, ok := b.impls.Get(b.implementation)
	if !ok {
		return nil, cacheError(b.id, "unknown cache implementation %q (available: %s)",
			b.implementation, strings.Join(b.impls.Names(), ", "))
	}
	c := factory(b.id)
	if c == nil {
		return nil, cacheError(b.id, "cache implementation %q returned nil", b.implementation)
	}
	if c.ID() != b.id {
		return nil, cacheError(b.id, "cache implementation %q reports id %q", b.implementation, c.ID())
	}
	if len(b.properties) > 0 {
		if err := decodeProperties(b.properties, c); err != nil {
			return nil, cacheError(b.id, "failed to apply properties to %q", b.implementation).WithCause(err)
		}
	}
	if init, ok := c.(Initializer); ok {
		if err := init.Initialize(); err != nil {
			return nil, cacheError(b.id, "failed to initialize %q", b.implementation).WithCause(err)
		}
	}
	return NewLogging(c, b.logger), nil
}

func decodeProperties(props map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(props)
}
