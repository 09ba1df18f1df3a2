package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/DanielPopoola/fetchcache/internal/domain"
)

// TypedResult is a FetchResult with its payload decoded.
type TypedResult[T any] struct {
	Data     T
	Source   domain.Source
	StoredAt time.Time
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, domain.NewDecodeFailedError(err)
	}
	return v, nil
}

// Get performs a cached read and decodes the payload into T.
func Get[T any](ctx context.Context, s *FetchService, path string, params domain.Params, opts ...RequestOption) (T, error) {
	raw, err := s.Get(ctx, path, params, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode[T](raw)
}

func GetResultOf[T any](ctx context.Context, s *FetchService, path string, params domain.Params, opts ...RequestOption) (*TypedResult[T], error) {
	result, err := s.GetResult(ctx, path, params, opts...)
	if err != nil {
		return nil, err
	}
	data, err := decode[T](result.Data)
	if err != nil {
		return nil, err
	}
	return &TypedResult[T]{
		Data:     data,
		Source:   result.Source,
		StoredAt: result.StoredAt,
	}, nil
}

func Post[T any](ctx context.Context, s *FetchService, path string, body any, opts ...RequestOption) (T, error) {
	raw, err := s.Post(ctx, path, body, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode[T](raw)
}

func Put[T any](ctx context.Context, s *FetchService, path string, body any, opts ...RequestOption) (T, error) {
	raw, err := s.Put(ctx, path, body, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode[T](raw)
}

func Delete[T any](ctx context.Context, s *FetchService, path string, opts ...RequestOption) (T, error) {
	raw, err := s.Delete(ctx, path, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode[T](raw)
}
