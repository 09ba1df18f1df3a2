package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator"

	"github.com/DanielPopoola/fetchcache/internal/application"
	"github.com/DanielPopoola/fetchcache/internal/application/services"
	"github.com/DanielPopoola/fetchcache/internal/domain"
)

// FetchService is what the sidecar needs from services.FetchService.
type FetchService interface {
	GetResult(ctx context.Context, path string, params domain.Params, opts ...services.RequestOption) (*domain.FetchResult, error)
	Post(ctx context.Context, path string, body any, opts ...services.RequestOption) (json.RawMessage, error)
	Put(ctx context.Context, path string, body any, opts ...services.RequestOption) (json.RawMessage, error)
	Delete(ctx context.Context, path string, opts ...services.RequestOption) (json.RawMessage, error)
	Invalidate(ctx context.Context, path string, params domain.Params)
	ClearAll(ctx context.Context)
}

type Handlers struct {
	fetch    FetchService
	prober   application.ConnectivityProber
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandlers(
	fetch FetchService,
	prober application.ConnectivityProber,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		fetch:    fetch,
		prober:   prober,
		validate: validator.New(),
		logger:   logger,
	}
}

func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/fetch", h.HandleGet)
	mux.HandleFunc("POST /v1/fetch", h.HandleWrite)
	mux.HandleFunc("PUT /v1/fetch", h.HandleWrite)
	mux.HandleFunc("DELETE /v1/fetch", h.HandleWrite)
	mux.HandleFunc("DELETE /v1/cache", h.HandleInvalidate)
	mux.HandleFunc("DELETE /v1/cache/all", h.HandleClearAll)
	mux.HandleFunc("GET /healthz", h.HandleHealth)
}
