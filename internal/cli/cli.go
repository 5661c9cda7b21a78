// Package cli implements the command-line interface for s3user-agg.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/eunmann/s3-user-agg/internal/config"
	"github.com/eunmann/s3-user-agg/pkg/aggregate"
	"github.com/eunmann/s3-user-agg/pkg/deltafetch"
	"github.com/eunmann/s3-user-agg/pkg/export"
	"github.com/eunmann/s3-user-agg/pkg/inventory"
	"github.com/eunmann/s3-user-agg/pkg/listing"
	"github.com/eunmann/s3-user-agg/pkg/logging"
	"github.com/eunmann/s3-user-agg/pkg/s3fetch"
	"github.com/eunmann/s3-user-agg/pkg/userdata"
	"github.com/eunmann/s3-user-agg/pkg/userinfo"
)

const usage = `usage: s3user-agg <command> [options]
commands:
  aggregate  print the filtered user table
  stats      print the average age (or -column mean) of filtered users
  export     upload the filtered user table to the bucket`

// ErrAllFetchesFailed is returned when every dispatched info fetch failed.
var ErrAllFetchesFailed = errors.New("all info fetches failed")

// objectStore is the bucket the commands read from and export to.
type objectStore interface {
	listing.Lister
	deltafetch.Fetcher
	PutObject(ctx context.Context, key, contentType string, body []byte) error
}

type runner struct {
	stdout io.Writer
	stderr io.Writer
	dial   func(ctx context.Context, cfg *config.Config) (objectStore, error)
	now    func() time.Time
}

// Run executes the CLI with the given arguments.
func Run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &runner{stdout: os.Stdout, stderr: os.Stderr, dial: openS3, now: time.Now}
	return r.run(ctx, args)
}

func (r *runner) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "aggregate":
		return r.runAggregate(ctx, args[1:])
	case "stats":
		return r.runStats(ctx, args[1:])
	case "export":
		return r.runExport(ctx, args[1:])
	case "help", "-h", "--help":
		fmt.Fprintln(r.stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func openS3(ctx context.Context, cfg *config.Config) (objectStore, error) {
	return s3fetch.NewClient(ctx, s3fetch.Options{
		Bucket:    cfg.Source.Bucket,
		Prefix:    cfg.Source.Prefix,
		Region:    cfg.Source.Region,
		Endpoint:  cfg.Source.Endpoint,
		AccessKey: cfg.Source.AccessKey,
		SecretKey: cfg.Source.SecretKey,
		PathStyle: cfg.Source.PathStyle,
		PageSize:  cfg.Source.PageSize,
	})
}

// filterFlag collects repeated -filter name=value pairs.
type filterFlag map[string]string

func (f filterFlag) String() string {
	names := make([]string, 0, len(f))
	for k, v := range f {
		names = append(names, k+"="+v)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func (f filterFlag) Set(s string) error {
	name, val, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("filter %q: want name=value", s)
	}
	f[name] = val
	return nil
}

// commonFlags are shared by every command. Flags override the config file
// and environment only when given.
type commonFlags struct {
	fs *flag.FlagSet

	configPath  string
	bucket      string
	prefix      string
	endpoint    string
	inventory   string
	concurrency int
	timeout     time.Duration
	debug       bool
	filters     filterFlag
}

func newCommonFlags(name string, stderr io.Writer) *commonFlags {
	c := &commonFlags{
		fs:      flag.NewFlagSet(name, flag.ContinueOnError),
		filters: filterFlag{},
	}
	c.fs.SetOutput(stderr)
	c.fs.StringVar(&c.configPath, "config", "", "config file (default: ./s3user-agg.yaml if present)")
	c.fs.StringVar(&c.bucket, "bucket", "", "bucket name, ARN or s3://bucket/prefix URI")
	c.fs.StringVar(&c.prefix, "prefix", "", "key prefix holding the user directories")
	c.fs.StringVar(&c.endpoint, "endpoint", "", "S3-compatible endpoint URL (enables path-style addressing)")
	c.fs.StringVar(&c.inventory, "inventory", "", "comma-separated S3 Inventory report files to list from (.csv, .csv.gz, .parquet)")
	c.fs.IntVar(&c.concurrency, "concurrency", 0, "max concurrent info fetches (0 = all at once)")
	c.fs.DurationVar(&c.timeout, "timeout", 0, "per-fetch timeout (0 = none)")
	c.fs.BoolVar(&c.debug, "debug", false, "enable debug logging")
	c.fs.Var(c.filters, "filter", "filter as name=value, repeatable (image_exists, min_age, max_age, eq.COL, min.COL, max.COL, exists.COL)")
	return c
}

// resolve loads the config and applies the flags that were set.
func (c *commonFlags) resolve() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}

	set := map[string]bool{}
	c.fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["bucket"] {
		if strings.HasPrefix(c.bucket, "s3://") {
			bucket, prefix, err := s3fetch.ParseS3URI(c.bucket)
			if err != nil {
				return nil, fmt.Errorf("--bucket: %w", err)
			}
			cfg.Source.Bucket = bucket
			if !set["prefix"] {
				cfg.Source.Prefix = prefix
			}
		} else {
			cfg.Source.Bucket = c.bucket
		}
	}
	if set["prefix"] {
		cfg.Source.Prefix = c.prefix
	}
	if set["endpoint"] {
		cfg.Source.Endpoint = c.endpoint
		cfg.Source.PathStyle = true
	}
	if set["inventory"] {
		cfg.Source.Inventory = aggregate.ParseColumns(c.inventory)
	}
	if set["concurrency"] {
		cfg.Fetch.Concurrency = c.concurrency
	}
	if set["timeout"] {
		cfg.Fetch.Timeout = c.timeout
	}
	if c.debug {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is a configured service over an opened bucket.
type session struct {
	cfg   *config.Config
	store objectStore
	svc   *userdata.Service
}

func (r *runner) openSession(ctx context.Context, c *commonFlags) (*session, error) {
	cfg, err := c.resolve()
	if err != nil {
		return nil, err
	}
	logging.InitWriter(r.stderr, logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Human)

	classifier, err := listing.NewExtensionClassifier(cfg.Files.ImageExtensions, cfg.Files.InfoExtensions)
	if err != nil {
		return nil, fmt.Errorf("file extensions: %w", err)
	}
	parser, err := userinfo.NewParser(userinfo.Options{Delimiter: cfg.Files.CSVDelimiter})
	if err != nil {
		return nil, fmt.Errorf("csv delimiter: %w", err)
	}

	store, err := r.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var lister listing.Lister = store
	if len(cfg.Source.Inventory) > 0 {
		cols, err := inventory.ParseSchema(cfg.Source.InventorySchema)
		if err != nil {
			return nil, fmt.Errorf("inventory schema: %w", err)
		}
		lister = &inventory.FileLister{Paths: cfg.Source.Inventory, Prefix: cfg.Source.Prefix, Columns: cols}
	}

	svc, err := userdata.New(lister, store, nil, userdata.Config{
		Prefix:     cfg.Source.Prefix,
		Classifier: classifier,
		Parse:      parser.Parse,
		Fetch: deltafetch.Config{
			Concurrency: cfg.Fetch.Concurrency,
			Timeout:     cfg.Fetch.Timeout,
		},
		DefaultColumns: cfg.Output.Columns,
	})
	if err != nil {
		return nil, err
	}

	return &session{cfg: cfg, store: store, svc: svc}, nil
}

func (r *runner) openStore(ctx context.Context, cfg *config.Config) (objectStore, error) {
	store, err := r.dial(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", cfg.Source.Bucket, err)
	}
	return store, nil
}

// query runs one aggregation pass, repeated passes reuse the warm cache.
func (s *session) query(ctx context.Context, filters []aggregate.Predicate, columns []string, repeat int) (*userdata.Result, error) {
	var res *userdata.Result
	for range max(repeat, 1) {
		var err error
		res, err = s.svc.Aggregate(ctx, aggregate.Options{Filters: filters, Columns: columns})
		if err != nil {
			return nil, err
		}
		if res.Summary.AllFailed() {
			return nil, fmt.Errorf("%w (%d users)", ErrAllFetchesFailed, res.Summary.Dispatched)
		}
	}
	return res, nil
}

func outputOptions(cfg *config.Config) export.Options {
	return export.Options{
		Delimiter:       cfg.Output.Delimiter,
		Empty:           cfg.Output.Empty,
		NoEmptySentinel: cfg.Output.Empty == "",
	}
}

func (r *runner) runAggregate(ctx context.Context, args []string) error {
	c := newCommonFlags("aggregate", r.stderr)
	columns := c.fs.String("columns", "", "comma-separated output columns (default: output.columns)")
	format := c.fs.String("format", "", "output format: csv, json or parquet (default: output.format)")
	outPath := c.fs.String("out", "", "write to this file instead of stdout")
	repeat := c.fs.Int("repeat", 1, "run this many passes against the same cache")

	if err := c.fs.Parse(args); err != nil {
		return err
	}

	s, err := r.openSession(ctx, c)
	if err != nil {
		return err
	}
	filters, err := aggregate.ParseParams(c.filters, r.now())
	if err != nil {
		return err
	}

	f := s.cfg.Output.Format
	if *format != "" {
		f = *format
	}
	outFormat, err := export.ParseFormat(f)
	if err != nil {
		return fmt.Errorf("--format: %w", err)
	}

	res, err := s.query(ctx, filters, aggregate.ParseColumns(*columns), *repeat)
	if err != nil {
		return err
	}

	if *outPath == "" {
		if err := export.Write(r.stdout, res.Table, outFormat, outputOptions(s.cfg)); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		return nil
	}
	return writeFile(*outPath, func(w io.Writer) error {
		return export.Write(w, res.Table, outFormat, outputOptions(s.cfg))
	})
}

// writeFile creates name and runs write on it. A failed Close is reported
// like a failed write.
func writeFile(name string, write func(io.Writer) error) (err error) {
	file, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output file: %w", cerr)
		}
	}()
	if err := write(file); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func (r *runner) runStats(ctx context.Context, args []string) error {
	c := newCommonFlags("stats", r.stderr)
	column := c.fs.String("column", "", "average this numeric column instead of the age from birthts")

	if err := c.fs.Parse(args); err != nil {
		return err
	}

	s, err := r.openSession(ctx, c)
	if err != nil {
		return err
	}
	now := r.now()
	filters, err := aggregate.ParseParams(c.filters, now)
	if err != nil {
		return err
	}

	var (
		avg     float64
		summary *userdata.Summary
	)
	if *column != "" {
		avg, summary, err = s.svc.AverageNumericColumn(ctx, filters, *column)
	} else {
		avg, summary, err = s.svc.AverageAge(ctx, filters, now)
	}
	if err != nil {
		return err
	}
	if summary.AllFailed() {
		return fmt.Errorf("%w (%d users)", ErrAllFetchesFailed, summary.Dispatched)
	}

	fmt.Fprintln(r.stdout, strconv.FormatFloat(avg, 'f', -1, 64))
	return nil
}

func (r *runner) runExport(ctx context.Context, args []string) error {
	c := newCommonFlags("export", r.stderr)
	columns := c.fs.String("columns", "", "comma-separated output columns (default: output.columns)")
	key := c.fs.String("key", "", "destination key in the bucket (default: output.key)")

	if err := c.fs.Parse(args); err != nil {
		return err
	}

	s, err := r.openSession(ctx, c)
	if err != nil {
		return err
	}
	filters, err := aggregate.ParseParams(c.filters, r.now())
	if err != nil {
		return err
	}

	dest := s.cfg.Output.Key
	if *key != "" {
		dest = *key
	}
	outFormat, err := export.ParseFormat(path.Ext(dest))
	if err != nil {
		return fmt.Errorf("destination %s: %w", dest, err)
	}

	res, err := s.query(ctx, filters, aggregate.ParseColumns(*columns), 1)
	if err != nil {
		return err
	}

	body, err := export.Encode(res.Table, outFormat, outputOptions(s.cfg))
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if err := s.store.PutObject(ctx, dest, outFormat.ContentType(), body); err != nil {
		return err
	}

	logging.L().Info().
		Str("key", dest).
		Str("format", outFormat.String()).
		Int("rows", res.Table.Len()).
		Int("bytes", len(body)).
		Msg("export uploaded")
	fmt.Fprintln(r.stdout, dest)
	return nil
}
