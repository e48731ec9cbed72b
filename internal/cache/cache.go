// Package cache stores raw API response bodies by key so that a rerun of a
// report only fetches what is missing.
package cache

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	"github.com/national-talent-atm/data-retrieval/pkg/common/errors"
	"github.com/national-talent-atm/data-retrieval/pkg/metrics"
)

// Store persists response bodies and fetch failures.
type Store interface {
	// Get returns the body stored under key, or errors.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores body under key, replacing any previous value.
	Put(ctx context.Context, key string, body []byte) error
	// PutError records a failed fetch of key for input line index.
	PutError(ctx context.Context, key string, index int, err error) error
	Close() error
}

// ErrorRecord is the persisted form of a fetch failure.
type ErrorRecord struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Cause   any    `json:"cause,omitempty"`
}

// Detailer is implemented by errors that carry structured detail, such as
// the response body of a failed API call.
type Detailer interface {
	Detail() any
}

// NewErrorRecord describes err for persistence.
func NewErrorRecord(err error) ErrorRecord {
	rec := ErrorRecord{
		Name:    errorName(err),
		Message: err.Error(),
	}
	var d Detailer
	switch {
	case stderrors.As(err, &d):
		rec.Cause = d.Detail()
	case stderrors.Unwrap(err) != nil:
		rec.Cause = stderrors.Unwrap(err).Error()
	}
	return rec
}

func errorName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "Error"
	}
	return t.Name()
}

// ErrorKey is the name an error record for key and index is stored under.
func ErrorKey(index int, key string) string {
	return fmt.Sprintf("error-index-%05d-%s", index, key)
}

// Fetch returns the body cached under key or, on a miss, calls fetch.
// cached reports whether body came from the store. A fresh body is not
// stored here: callers persist it once the result has been consumed.
func Fetch(ctx context.Context, store Store, key string, fetch func(context.Context) ([]byte, error)) (body []byte, cached bool, err error) {
	body, err = store.Get(ctx, key)
	if err == nil {
		return body, true, nil
	}
	if !stderrors.Is(err, errors.ErrNotFound) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache read failed, fetching")
	}
	body, err = fetch(ctx)
	return body, false, err
}

// Namespace scopes store to keys starting with ns, so several reports can
// share one Redis or SQLite backend. Closing the result closes store.
func Namespace(store Store, ns string) Store {
	if ns == "" {
		return store
	}
	return namespaced{store: store, prefix: ns + "/"}
}

type namespaced struct {
	store  Store
	prefix string
}

func (n namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.store.Get(ctx, n.prefix+key)
}

func (n namespaced) Put(ctx context.Context, key string, body []byte) error {
	return n.store.Put(ctx, n.prefix+key, body)
}

func (n namespaced) PutError(ctx context.Context, key string, index int, err error) error {
	return n.store.PutError(ctx, n.prefix+key, index, err)
}

func (n namespaced) Close() error { return n.store.Close() }

type instrumented struct {
	name    string
	metrics *metrics.Registry
}

func (i instrumented) lookup(err error) {
	if err == nil || stderrors.Is(err, errors.ErrNotFound) {
		i.metrics.CacheLookup(i.name, err == nil)
	}
}

func (i instrumented) wrote(kind string, err error) {
	if err == nil {
		i.metrics.CacheWrite(i.name, kind)
	}
}

func sanitize(key string) string {
	return strings.NewReplacer("/", "_", `\`, "_", " ", "_").Replace(key)
}
