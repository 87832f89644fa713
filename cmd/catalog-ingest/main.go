package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
	numColumns    = 6
)

// feed is one parsed stock feed. Rows keep file order.
type feed struct {
	idx     int
	name    string
	rows    []row
	invalid int
	filter  *bloom.BloomFilter
}

type row struct {
	line    int
	product product.Product
}

// duplicate is a SKU found in more than one feed. The row from the earlier
// feed is kept.
type duplicate struct {
	sku     string
	kept    string
	dropped string
	differs bool
}

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		batchSize   int
		dryRun      bool
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing stock feeds")
	flag.StringVar(&pattern, "pattern", "*.csv.gz", "glob selecting feed files inside data-dir, processed in name order")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch-size", 1000, "products per upsert batch")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and report without writing to the database")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, pattern, databaseURL, batchSize, dryRun); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, pattern, databaseURL string, batchSize int, dryRun bool) error {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "list feeds")
	}
	if len(files) == 0 {
		return errors.Errorf("no feeds match %s in %s", pattern, dataDir)
	}
	slices.Sort(files)

	// Pass 1: parse feeds and build one bloom filter each.
	slog.Info("pass 1: parsing feeds", slog.Int("files", len(files)))

	feeds, err := loadFeeds(ctx, files)
	if err != nil {
		return errors.Wrap(err, "load feeds")
	}

	// Pass 2: SKUs that may appear in another feed.
	slog.Info("pass 2: finding cross-feed candidates")

	candidates, err := findCandidates(ctx, feeds)
	if err != nil {
		return errors.Wrap(err, "find candidates")
	}

	products, dups := merge(feeds, candidates)
	for _, d := range dups {
		slog.Warn("duplicate SKU across feeds",
			slog.String("sku", d.sku),
			slog.String("kept", d.kept),
			slog.String("dropped", d.dropped),
			slog.Bool("conflicting", d.differs),
		)
	}
	slog.Info("feeds merged",
		slog.Int("products", len(products)),
		slog.Int("candidates", len(candidates)),
		slog.Int("duplicates", len(dups)),
	)

	if dryRun || len(products) == 0 {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := writeProducts(ctx, postgres.NewProductRepository(pool), products, batchSize); err != nil {
		return errors.Wrap(err, "write products to database")
	}

	return nil
}

// loadFeeds parses every file concurrently.
func loadFeeds(ctx context.Context, files []string) ([]*feed, error) {
	feeds := make([]*feed, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f, err := openFeed(ctx, i, path)
			if err != nil {
				return errors.Wrapf(err, "feed %s", path)
			}
			feeds[i] = f
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return feeds, nil
}

func openFeed(ctx context.Context, idx int, path string) (*feed, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = file.Close() }()

	gz, err := pgzip.NewReader(file)
	if err != nil {
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	return readFeed(ctx, idx, filepath.Base(path), gz)
}

// readFeed parses sku,name,brand,category,price,stock rows. A header row is
// skipped, invalid rows are logged and counted, and a SKU repeated within
// the feed keeps its first row.
func readFeed(ctx context.Context, idx int, name string, r io.Reader) (*feed, error) {
	f := &feed{idx: idx, name: name}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	seen := make(map[string]struct{})
	now := time.Now()
	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", name)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "sku") {
			continue
		}

		p, err := parseRow(rec, now)
		if err != nil {
			f.invalid++
			slog.Warn("skipping invalid row",
				slog.String("feed", name),
				slog.Int("line", line),
				slog.String("error", err.Error()),
			)
			continue
		}
		if _, dup := seen[p.ID]; dup {
			slog.Warn("duplicate SKU within feed", slog.String("feed", name), slog.String("sku", p.ID), slog.Int("line", line))
			continue
		}
		seen[p.ID] = struct{}{}
		f.rows = append(f.rows, row{line: line, product: p})

		if len(f.rows)%progressEvery == 0 {
			slog.Info("pass 1 progress", slog.String("feed", name), slog.Int("rows", len(f.rows)))
		}
	}

	f.filter = bloom.NewWithEstimates(uint(max(len(f.rows), 1)), bloomFPR)
	for _, r := range f.rows {
		f.filter.AddString(r.product.ID)
	}

	slog.Info("pass 1 complete",
		slog.String("feed", name),
		slog.Int("rows", len(f.rows)),
		slog.Int("invalid", f.invalid),
	)

	return f, nil
}

func parseRow(rec []string, now time.Time) (product.Product, error) {
	if len(rec) != numColumns {
		return product.Product{}, errors.Errorf("want %d columns, got %d", numColumns, len(rec))
	}
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}
	sku := rec[0]
	if sku == "" {
		return product.Product{}, errors.New("sku is empty")
	}
	price, err := decimal.NewFromString(rec[4])
	if err != nil {
		return product.Product{}, errors.Wrapf(err, "parse price %q", rec[4])
	}
	stock, err := strconv.Atoi(rec[5])
	if err != nil {
		return product.Product{}, errors.Wrapf(err, "parse stock %q", rec[5])
	}

	d := product.Draft{
		Name:          rec[1],
		Brand:         rec[2],
		Category:      rec[3],
		Price:         price,
		StockQuantity: stock,
	}
	if err := d.Validate(); err != nil {
		return product.Product{}, err
	}
	return product.Product{
		ID:            sku,
		Name:          d.Name,
		Brand:         d.Brand,
		Category:      d.Category,
		Price:         d.Price.Round(2),
		StockQuantity: d.StockQuantity,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// findCandidates checks each feed's SKUs against every other feed's bloom
// filter concurrently. The result may contain false positives; merge
// confirms them exactly.
func findCandidates(ctx context.Context, feeds []*feed) (map[string]struct{}, error) {
	results := make([][]string, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range feeds {
		g.Go(func() error {
			var found []string
			for n, r := range f.rows {
				if n%progressEvery == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				for _, other := range feeds {
					if other.idx != f.idx && other.filter.TestString(r.product.ID) {
						found = append(found, r.product.ID)
						break
					}
				}
			}
			slog.Info("pass 2 complete", slog.String("feed", f.name), slog.Int("candidates", len(found)))
			results[i] = found
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := make(map[string]struct{})
	for _, found := range results {
		for _, sku := range found {
			candidates[sku] = struct{}{}
		}
	}
	return candidates, nil
}

// merge concatenates feeds in order. Only candidate SKUs are tracked, so
// memory beyond the rows themselves stays proportional to the overlap.
func merge(feeds []*feed, candidates map[string]struct{}) ([]product.Product, []duplicate) {
	type origin struct {
		feed    *feed
		line    int
		product product.Product
	}
	kept := make(map[string]origin, len(candidates))

	var (
		products []product.Product
		dups     []duplicate
	)
	for _, f := range feeds {
		for _, r := range f.rows {
			sku := r.product.ID
			if _, ok := candidates[sku]; ok {
				if first, seen := kept[sku]; seen {
					dups = append(dups, duplicate{
						sku:     sku,
						kept:    location(first.feed, first.line),
						dropped: location(f, r.line),
						differs: !sameListing(first.product, r.product),
					})
					continue
				}
				kept[sku] = origin{feed: f, line: r.line, product: r.product}
			}
			products = append(products, r.product)
		}
	}
	return products, dups
}

func location(f *feed, line int) string {
	return f.name + ":" + strconv.Itoa(line)
}

func sameListing(a, b product.Product) bool {
	return a.Name == b.Name &&
		a.Brand == b.Brand &&
		a.Category == b.Category &&
		a.Price.Equal(b.Price) &&
		a.StockQuantity == b.StockQuantity
}

// writeProducts upserts products in batches.
func writeProducts(ctx context.Context, repo *postgres.ProductRepository, products []product.Product, batchSize int) error {
	slog.Info("writing products to database", slog.Int("count", len(products)))

	if batchSize <= 0 {
		batchSize = 1000
	}
	written := 0
	for chunk := range slices.Chunk(products, batchSize) {
		if err := repo.Upsert(ctx, chunk); err != nil {
			return errors.Wrapf(err, "upsert batch at %d", written)
		}
		written += len(chunk)
		slog.Info("write progress", slog.Int("written", written), slog.Int("total", len(products)))
	}

	return nil
}
