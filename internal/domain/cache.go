package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultCachePrefix = "@api_cache_"
	DefaultCacheTTL    = time.Hour
)

var ErrMalformedEntry = errors.New("malformed cache entry")

// Params are the query parameters of a read. They double as part of the cache key.
type Params map[string]any

// Validate rejects values that are not strings, booleans or numbers.
func (p Params) Validate() error {
	for k, v := range p {
		if !isScalar(v) {
			return fmt.Errorf("param %q has unsupported type %T", k, v)
		}
	}
	return nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, json.Number:
		return true
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// Canonical serializes params with keys in sorted order so that equal mappings
// always yield the same text. Numbers are written in their shortest form, so
// 2, 2.0 and json.Number("2") agree. Nil and empty params serialize to "".
func (p Params) Canonical() (string, error) {
	if len(p) == 0 {
		return "", nil
	}
	if err := p.Validate(); err != nil {
		return "", err
	}

	normalized := make(map[string]any, len(p))
	for k, v := range p {
		nv, err := normalizeScalar(v)
		if err != nil {
			return "", fmt.Errorf("param %q: %w", k, err)
		}
		normalized[k] = nv
	}

	// encoding/json writes map keys sorted.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func normalizeScalar(v any) (any, error) {
	switch t := v.(type) {
	case string, bool:
		return t, nil
	case json.Number:
		return canonicalNumber(string(t))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return json.Number(strconv.FormatInt(rv.Int(), 10)), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return json.Number(strconv.FormatUint(rv.Uint(), 10)), nil
	case reflect.Float32, reflect.Float64:
		return floatNumber(rv.Float())
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

// canonicalNumber rewrites number text so equal values share one spelling.
func canonicalNumber(text string) (json.Number, error) {
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return json.Number(strconv.FormatInt(i, 10)), nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return "", fmt.Errorf("invalid number %q", text)
	}
	return floatNumber(f)
}

func floatNumber(f float64) (json.Number, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("unsupported number %v", f)
	}
	b, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	return json.Number(b), nil
}

// Query renders params as URL query values.
func (p Params) Query() url.Values {
	q := make(url.Values, len(p))
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, formatScalar(p[k]))
	}
	return q
}

func formatScalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return fmt.Sprint(t)
	}
}

// CacheKey builds the store key for a read of path with params.
func CacheKey(prefix, path string, params Params) (string, error) {
	serialized, err := params.Canonical()
	if err != nil {
		return "", err
	}
	return prefix + path + "_" + serialized, nil
}

// CacheEntry is what gets persisted for every successful read.
type CacheEntry struct {
	Payload  json.RawMessage `json:"data"`
	StoredAt int64           `json:"timestamp"`
}

func NewCacheEntry(payload json.RawMessage, now time.Time) *CacheEntry {
	return &CacheEntry{
		Payload:  payload,
		StoredAt: now.UnixMilli(),
	}
}

func (e *CacheEntry) StoredTime() time.Time {
	return time.UnixMilli(e.StoredAt)
}

// Expired reports whether the entry is older than ttl at now. An entry aged
// exactly ttl is still fresh.
func (e *CacheEntry) Expired(now time.Time, ttl time.Duration) bool {
	return now.UnixMilli()-e.StoredAt > ttl.Milliseconds()
}

func (e *CacheEntry) Encode() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("error marshalling cache entry: %w", err)
	}
	return string(b), nil
}

func DecodeCacheEntry(raw string) (*CacheEntry, error) {
	var e CacheEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEntry, err)
	}
	if e.Payload == nil || e.StoredAt <= 0 {
		return nil, ErrMalformedEntry
	}
	return &e, nil
}
