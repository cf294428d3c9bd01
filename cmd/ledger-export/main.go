// Command ledger-export dumps the shipment ledger as gzip-compressed JSON
// lines, one purchased label per line.
package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/marketplace-bff/internal/domain/bundle"
	"github.com/xenking/marketplace-bff/internal/storage/postgres"
)

const (
	bufferedEntries = 1024
	progressEvery   = 10_000
)

// source streams ledger entries created at or after since.
type source interface {
	Each(ctx context.Context, since time.Time, fn func(bundle.Entry) error) error
}

func main() {
	var (
		databaseURL string
		out         string
		sinceFlag   string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&out, "out", "ledger.jsonl.gz", "output file, - for stdout")
	flag.StringVar(&sinceFlag, "since", "", "only export labels created at or after this RFC3339 time")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}

	var since time.Time
	if sinceFlag != "" {
		if since, err = time.Parse(time.RFC3339, sinceFlag); err != nil {
			lg.Fatal("invalid --since", zap.Error(err))
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, out, since); err != nil {
		lg.Fatal("ledger export failed", zap.Error(err))
	}
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, out string, since time.Time) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewLedgerRepository(pool)
	var n int
	if out == "-" {
		n, err = export(ctx, lg, repo, os.Stdout, since)
	} else {
		f, cerr := os.Create(out)
		if cerr != nil {
			return errors.Wrapf(cerr, "create %s", out)
		}
		n, err = exportAndClose(ctx, lg, repo, f, since)
	}
	if err != nil {
		return errors.Wrapf(err, "export to %s", out)
	}
	lg.Info("ledger export completed", zap.Int("entries", n), zap.String("out", out))
	return nil
}

// exportAndClose runs export and closes w. A close error is returned when the
// export itself succeeded.
func exportAndClose(ctx context.Context, lg *zap.Logger, src source, w io.WriteCloser, since time.Time) (int, error) {
	n, err := export(ctx, lg, src, w, since)
	if cerr := w.Close(); cerr != nil && err == nil {
		err = errors.Wrap(cerr, "close output")
	}
	return n, err
}

// export reads entries in one goroutine and compresses them in another.
func export(ctx context.Context, lg *zap.Logger, src source, w io.Writer, since time.Time) (int, error) {
	entries := make(chan bundle.Entry, bufferedEntries)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(entries)
		return src.Each(ctx, since, func(e bundle.Entry) error {
			select {
			case entries <- e:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	})

	var count int
	g.Go(func() error {
		gz := pgzip.NewWriter(w)
		bw := bufio.NewWriter(gz)
		for e := range entries {
			if _, err := bw.Write(encodeLine(e)); err != nil {
				return errors.Wrap(err, "write entry")
			}
			count++
			if count%progressEvery == 0 {
				lg.Info("export progress", zap.Int("entries", count))
			}
		}
		if err := bw.Flush(); err != nil {
			return errors.Wrap(err, "flush")
		}
		return errors.Wrap(gz.Close(), "close gzip")
	})

	if err := g.Wait(); err != nil {
		return count, err
	}
	return count, nil
}

func encodeLine(en bundle.Entry) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(en.ID) })
		e.Field("bundleId", func(e *jx.Encoder) { e.Str(string(en.BundleID)) })
		e.Field("trackingNumber", func(e *jx.Encoder) { e.Str(en.TrackingNumber) })
		e.Field("labelUrl", func(e *jx.Encoder) { e.Str(en.LabelURL) })
		e.Field("carrier", func(e *jx.Encoder) { e.Str(en.Carrier) })
		e.Field("service", func(e *jx.Encoder) { e.Str(en.Service) })
		e.Field("cost", func(e *jx.Encoder) { e.Str(en.Cost.StringFixed(2)) })
		e.Field("orderIds", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, id := range en.OrderIDs {
					e.Str(id)
				}
			})
		})
		e.Field("outcome", func(e *jx.Encoder) { e.Str(string(en.Outcome)) })
		e.Field("failedOrders", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, id := range en.FailedOrders {
					e.Str(id)
				}
			})
		})
		e.Field("weight", func(e *jx.Encoder) { e.Str(en.Weight) })
		e.Field("dimensions", func(e *jx.Encoder) { e.Str(en.Dimensions) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(en.CreatedAt.UTC().Format(time.RFC3339)) })
	})
	return append(e.Bytes(), '\n')
}
