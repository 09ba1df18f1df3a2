package application

import (
	"context"

	"github.com/DanielPopoola/fetchcache/internal/domain"
)

// Store is the port for the persistent key-value store shared by the whole process.
// Individual key operations are assumed atomic; DeleteMany is not atomic as a whole.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys []string) error
	Keys(ctx context.Context) ([]string, error)
}

// Transport is the port for the outbound HTTP client. Decorators wrap it.
type Transport interface {
	Do(ctx context.Context, req *domain.Request) (*domain.Response, error)
}

// ConnectivityProber reports whether the device is online. The answer is a
// best-effort signal, not a guarantee that the next request will succeed.
type ConnectivityProber interface {
	IsOnline(ctx context.Context) bool
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *domain.Request) (*domain.Response, error)

func (f TransportFunc) Do(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	return f(ctx, req)
}
