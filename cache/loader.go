package cache

// Loader constructs, measures and disposes the resources of one cache.
// A resource is created by Load and destroyed only by the cache that owns
// it, through Close.
type Loader[K comparable, V any] interface {
	// Load constructs the resource for key.
	Load(key K) (V, error)

	// SizeOf returns the capacity units charged for a resident resource.
	// It must be non-negative and stable for the lifetime of the resource.
	SizeOf(key K, value V) int64

	// Close releases the resource. An error here means the cache can no
	// longer account for GPU memory and is treated as fatal.
	Close(key K, value V) error
}

// Estimator is an optional Loader extension. When present, a borrow cache
// checks the estimate against free capacity before calling Load, so a
// borrow that is bound to fail does not construct anything.
type Estimator[K comparable] interface {
	Estimate(key K) int64
}

// Funcs adapts plain functions to a Loader. A nil SizeFunc charges one unit
// per entry, giving an item-counted cache. A nil CloseFunc does nothing.
type Funcs[K comparable, V any] struct {
	LoadFunc  func(K) (V, error)
	SizeFunc  func(K, V) int64
	CloseFunc func(K, V) error
}

func (f Funcs[K, V]) Load(key K) (V, error) {
	return f.LoadFunc(key)
}

func (f Funcs[K, V]) SizeOf(key K, value V) int64 {
	if f.SizeFunc == nil {
		return 1
	}
	return f.SizeFunc(key, value)
}

func (f Funcs[K, V]) Close(key K, value V) error {
	if f.CloseFunc == nil {
		return nil
	}
	return f.CloseFunc(key, value)
}

// Config bounds a cache.
type Config struct {
	// Name labels log records and errors.
	Name string
	// MaximumCapacity is the budget in the loader's capacity units.
	MaximumCapacity int64
}

// Items returns a Config for a cache of at most n entries, to be used with
// a loader that charges one unit per entry.
func Items(name string, n int) Config {
	return Config{Name: name, MaximumCapacity: int64(n)}
}
