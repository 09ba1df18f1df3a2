package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/DanielPopoola/fetchcache/internal/domain"
	"github.com/DanielPopoola/fetchcache/internal/interfaces/rest"
)

const (
	codeInvalidQuery = "INVALID_QUERY"
	codeInvalidBody  = "INVALID_BODY"
)

func (h *Handlers) parse(w http.ResponseWriter, r *http.Request) (fetchQuery, domain.Params, bool) {
	fq, err := parseQuery(r)
	if err != nil {
		rest.WriteBadRequest(w, codeInvalidQuery, err.Error())
		return fq, nil, false
	}
	if err := h.validate.Struct(fq); err != nil {
		rest.WriteBadRequest(w, codeInvalidQuery, err.Error())
		return fq, nil, false
	}
	params, err := decodeParams(fq.Params)
	if err != nil {
		rest.WriteError(w, domain.NewInvalidParamsError(err), h.logger)
		return fq, nil, false
	}
	return fq, params, true
}

func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	fq, params, ok := h.parse(w, r)
	if !ok {
		return
	}

	ctx, cancel := upstreamContext(r.Context())
	defer cancel()

	result, err := h.fetch.GetResult(ctx, fq.Path, params, requestOptions(r, fq)...)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteData(w, result.Data, &rest.Meta{
		Source:   string(result.Source),
		StoredAt: result.StoredAt.UTC(),
	})
}

func (h *Handlers) HandleWrite(w http.ResponseWriter, r *http.Request) {
	fq, _, ok := h.parse(w, r)
	if !ok {
		return
	}

	body, err := readBody(r)
	if err != nil {
		rest.WriteBadRequest(w, codeInvalidBody, err.Error())
		return
	}

	// A nil RawMessage would be sent as the JSON text "null".
	var payload any
	if body != nil {
		payload = body
	}

	opts := requestOptions(r, fq)
	ctx, cancel := upstreamContext(r.Context())
	defer cancel()

	var data json.RawMessage
	switch r.Method {
	case http.MethodPost:
		data, err = h.fetch.Post(ctx, fq.Path, payload, opts...)
	case http.MethodPut:
		data, err = h.fetch.Put(ctx, fq.Path, payload, opts...)
	case http.MethodDelete:
		data, err = h.fetch.Delete(ctx, fq.Path, opts...)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteData(w, data, nil)
}

func (h *Handlers) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	fq, params, ok := h.parse(w, r)
	if !ok {
		return
	}

	h.fetch.Invalidate(r.Context(), fq.Path, params)
	rest.WriteData(w, nil, nil)
}

func (h *Handlers) HandleClearAll(w http.ResponseWriter, r *http.Request) {
	h.fetch.ClearAll(r.Context())
	rest.WriteData(w, nil, nil)
}

type healthResponse struct {
	Online bool `json:"online"`
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	rest.WriteData(w, healthResponse{Online: h.prober.IsOnline(r.Context())}, nil)
}
