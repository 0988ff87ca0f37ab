// Command catalog-ingest streams a gzipped JSON catalog file into PostgreSQL.
// The file holds one large JSON array of products; it is decoded as a stream
// so catalogs much larger than memory can be loaded. Decoding and database
// writes run concurrently.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/livedrop/livedrop/internal/domain/product"
	"github.com/livedrop/livedrop/internal/storage/postgres"
)

const (
	numWriters    = 4
	progressEvery = 10_000
)

func main() {
	var (
		catalogFile string
		databaseURL string
	)

	flag.StringVar(&catalogFile, "catalog-file", "catalog.json.gz", "gzipped JSON catalog file")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, catalogFile, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, catalogFile, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewProductRepository(pool)
	products := make(chan product.Product, numWriters*4)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(products)
		return decodeCatalog(ctx, catalogFile, products)
	})

	for range numWriters {
		g.Go(func() error {
			for p := range products {
				if err := repo.Upsert(ctx, p); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// decodeCatalog streams the gzipped JSON array and sends each decoded product
// to out.
func decodeCatalog(ctx context.Context, path string, out chan<- product.Product) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	var count uint64
	d := jx.Decode(gz, 1<<20)
	if err := d.Arr(func(d *jx.Decoder) error {
		p, err := decodeProduct(d)
		if err != nil {
			return err
		}

		select {
		case out <- p:
		case <-ctx.Done():
			return ctx.Err()
		}

		count++
		if count%progressEvery == 0 {
			slog.Info("decode progress", slog.Uint64("products", count))
		}
		return nil
	}); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}

	slog.Info("decode complete", slog.Uint64("total_products", count))
	return nil
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			p.ID = v
			return err
		case "title":
			v, err := d.Str()
			p.Title = v
			return err
		case "description":
			v, err := d.Str()
			p.Description = v
			return err
		case "image":
			v, err := d.Str()
			p.Image = v
			return err
		case "price":
			num, err := d.Num()
			if err != nil {
				return err
			}
			price, err := decimal.NewFromString(num.String())
			p.Price = price
			return err
		case "stock":
			v, err := d.Int()
			p.Stock = v
			return err
		case "dropTime":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Str()
			if err != nil {
				return err
			}
			t, err := time.Parse(time.RFC3339, v)
			p.DropTime = &t
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return p, err
	}
	if p.ID == "" {
		return p, errors.New("product entry missing id")
	}
	return p, nil
}
