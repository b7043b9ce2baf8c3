package pool

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/acronis/perfkit/entitydb/logger"
)

// CredentialFactory creates a resource for one credential
type CredentialFactory[T Pooled] func(ctx context.Context, credential string) (T, error)

// Registry keeps one pool per credential, created on first use
type Registry[T Pooled] struct {
	cfg     Config
	factory CredentialFactory[T]
	logger  logger.Logger

	mu     sync.Mutex
	pools  map[string]*Pool[T]
	closed bool
}

// NewRegistry creates an empty registry; every pool uses cfg
func NewRegistry[T Pooled](cfg Config, factory CredentialFactory[T], l logger.Logger) *Registry[T] {
	return &Registry[T]{cfg: cfg, factory: factory, logger: l, pools: make(map[string]*Pool[T])}
}

// Pool returns the pool of credential, creating it when missing
func (r *Registry[T]) Pool(ctx context.Context, credential string) (*Pool[T], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if p, ok := r.pools[credential]; ok {
		return p, nil
	}

	var p, err = New(ctx, r.cfg, func(ctx context.Context) (T, error) {
		return r.factory(ctx, credential)
	}, r.logger)
	if err != nil {
		return nil, err
	}
	r.pools[credential] = p

	return p, nil
}

// Credentials returns the credentials having a pool, sorted
func (r *Registry[T]) Credentials() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out = make([]string, 0, len(r.pools))
	for c := range r.pools {
		out = append(out, c)
	}
	sort.Strings(out)

	return out
}

// Remove closes and forgets the pool of credential
func (r *Registry[T]) Remove(credential string) error {
	r.mu.Lock()
	var p, ok = r.pools[credential]
	delete(r.pools, credential)
	r.mu.Unlock()

	if !ok {
		return nil
	}

	return p.Close()
}

// Close closes every pool
func (r *Registry[T]) Close() error {
	r.mu.Lock()
	var pools = r.pools
	r.pools = make(map[string]*Pool[T])
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for _, p := range pools {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
