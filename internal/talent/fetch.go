package talent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/national-talent-atm/data-retrieval/internal/cache"
	"github.com/national-talent-atm/data-retrieval/internal/scopus"
	"github.com/national-talent-atm/data-retrieval/pkg/common/errors"
	"github.com/national-talent-atm/data-retrieval/pkg/streaming/stream"
)

// API is the part of the Scopus client the reports use.
type API interface {
	AuthorRetrieval(ctx context.Context, id string, opts scopus.AuthorOptions) (*scopus.AuthorResponse, error)
	SciValAuthorMetrics(ctx context.Context, ids, metricTypes []string, opts scopus.MetricsOptions) (*scopus.MetricsResponse, error)
	ScopusSearch(ctx context.Context, opts scopus.SearchOptions) (*scopus.SearchResponse[scopus.Document], error)
	AuthorSearch(ctx context.Context, opts scopus.SearchOptions) (*scopus.SearchResponse[scopus.AuthorEntry], error)
}

// resource describes how one kind of body is keyed, fetched and decoded.
type resource[K, B any] struct {
	name   string
	key    func(K) string
	fetch  func(context.Context, K) (B, []byte, error)
	decode func([]byte) (B, error)
}

// load returns the body for k from store or, on a miss or an unreadable
// cached body, from the API.
func (r resource[K, B]) load(ctx context.Context, store cache.Store, k K) (body B, raw []byte, cached bool, err error) {
	var fresh B
	fetch := func(ctx context.Context) ([]byte, error) {
		b, raw, err := r.fetch(ctx, k)
		fresh = b
		return raw, err
	}

	key := r.key(k)
	raw, cached, err = cache.Fetch(ctx, store, key, fetch)
	if err != nil || !cached {
		return fresh, raw, false, err
	}
	body, err = r.decode(raw)
	if err == nil {
		return body, raw, true, nil
	}

	zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cached body unreadable, fetching")
	raw, err = fetch(ctx)
	return fresh, raw, false, err
}

// fetchEntries maps entries to fetched bodies and tees the result: one
// branch is returned, the other is persisted by a goroutine whose result
// is delivered on the returned channel.
func fetchEntries[B any](ctx context.Context, g *Generator, entries stream.Source[Entry], r resource[Entry, B]) (stream.Source[Fetched[B]], <-chan error) {
	logger := g.logger().With().Str("resource", r.name).Logger()

	fetched := stream.Map(entries, func(ctx context.Context, e Entry) (Fetched[B], error) {
		l := logger.With().Int("index", e.Index).Str("id", e.ID).Logger()
		ctx = l.WithContext(ctx)
		ctx = scopus.WithNotify(ctx, func(limit, remaining, reset, status string) {
			l.Debug().Str("remaining", remaining).Str("limit", limit).Str("reset", reset).Str("status", status).Msg("rate limit")
		})

		l.Debug().Msg("loading")
		start := time.Now()
		out := Fetched[B]{Entry: e}
		if e.ID == "" {
			out.Err = fmt.Errorf("the id for index %d is empty: %w", e.Index, errors.ErrEmptyID)
		} else {
			out.Body, out.Raw, out.Cached, out.Err = r.load(ctx, g.Store, e)
		}
		if out.Err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			l.Warn().Err(out.Err).Msg("error on loading")
			return out, nil
		}
		l.Debug().Bool("cached", out.Cached).Dur("took", time.Since(start)).Msg("loaded")
		return out, nil
	}, stream.WithName(r.name), stream.WithMetrics(g.Metrics))

	out, persist := stream.Tee(fetched, stream.WithHighWaterMark(g.HighWaterMark), stream.WithName(r.name+"-tee"))

	done := make(chan error, 1)
	go func() {
		done <- persistFetched(ctx, g.Store, persist, logger, func(f Fetched[B]) string {
			if f.ID == "" {
				return r.key(Entry{ID: "unknown"})
			}
			return r.key(f.Entry)
		})
	}()
	return out, done
}

// persistFetched writes fresh bodies and error records to store. Write
// failures are logged and do not stop the report.
func persistFetched[B any](ctx context.Context, store cache.Store, src stream.Source[Fetched[B]], logger zerolog.Logger, key func(Fetched[B]) string) error {
	return stream.Pipe(ctx, src, func(ctx context.Context, f Fetched[B]) error {
		l := logger.With().Int("index", f.Index).Str("id", f.ID).Logger()
		var err error
		switch {
		case f.Cached:
			l.Debug().Msg("already cached")
			return nil
		case f.Err != nil:
			err = store.PutError(ctx, key(f), f.Index, f.Err)
		default:
			err = store.Put(ctx, key(f), f.Raw)
		}
		if err != nil {
			l.Error().Err(err).Msg("cache write failed")
			return nil
		}
		l.Debug().Bool("error", f.Err != nil).Msg("cached")
		return nil
	})
}
