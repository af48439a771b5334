package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"yashubustudio/namematch/internal/store"
	"yashubustudio/namematch/matching"
)

type cliOptions struct {
	configPath string
	envFile    string
	fromPath   string
	toPath     string
	outputPath string
	outputDir  string
	force      bool
	inputOpts  matching.InputOptions
	progress   bool
	stdout     bool
	logLevel   string
	logJSON    bool
	saveConfig string
	columns    bool

	// Config overrides; only flags present in set are applied.
	set        map[string]bool
	mode       string
	ngramSize  int
	minScore   float64
	numResults int
	tiesWithin float64
	groupMatch bool
	threads    int
	queueSize  int
	text       matching.TextOptions
	tokenizer  string
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit code. Deferred cleanup
// completes before the caller exits.
func execute(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "namematch-cli: %v\n", err)
		return 2
	}
	logger, err := newLogger(opts.logLevel, opts.logJSON)
	if err != nil {
		fmt.Fprintf(stderr, "namematch-cli: %v\n", err)
		return 2
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, opts, logger, stdout); err != nil {
		logger.Error("namematch-cli failed", zap.Error(err))
		return 1
	}
	return 0
}

func parseFlags(args []string, output io.Writer) (cliOptions, error) {
	opts := cliOptions{set: make(map[string]bool)}
	fs := flag.NewFlagSet("namematch-cli", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&opts.configPath, "config", "", "Path to namematch.json (default: ./namematch.json)")
	fs.StringVar(&opts.envFile, "env-file", "", "Load environment variables from this file (default: ./.env when present)")
	fs.StringVar(&opts.outputPath, "o", "", "Output file: .csv, .db/.sqlite, or - for STDOUT")
	fs.StringVar(&opts.outputPath, "output", "", "Same as -o")
	fs.StringVar(&opts.outputDir, "output-dir", "csv", "Directory for result_*.csv when -o is omitted")
	fs.BoolVar(&opts.force, "force", false, "Overwrite an existing CSV output file")
	fs.StringVar(&opts.inputOpts.NameColumn, "name-column", "", "Column name or #index holding names")
	fs.StringVar(&opts.inputOpts.IDColumn, "id-column", "", "Column name or #index holding record ids")
	fs.StringVar(&opts.inputOpts.GroupColumn, "group-column", "", "Column name or #index holding group keys")
	fs.BoolVar(&opts.progress, "progress", false, "Show a progress bar on STDERR")
	fs.BoolVar(&opts.stdout, "stdout", false, "Print a preview of the results to STDOUT")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.BoolVar(&opts.logJSON, "log-json", false, "Emit JSON logs")
	fs.StringVar(&opts.saveConfig, "save-config", "", "Write the effective configuration to this file")
	fs.BoolVar(&opts.columns, "columns", false, "Print the columns read from FROM and TO, then exit")

	fs.StringVar(&opts.mode, "mode", "ngram", "Similarity model: token, ngram, lev or dl")
	fs.IntVar(&opts.ngramSize, "ngram-size", 2, "Character n-gram window (ngram mode)")
	fs.Float64Var(&opts.minScore, "m", 0.01, "Minimum score; only strictly greater scores are kept")
	fs.Float64Var(&opts.minScore, "minimum-match-score", 0.01, "Same as -m")
	fs.IntVar(&opts.numResults, "n", 1, "Number of results per from record")
	fs.IntVar(&opts.numResults, "number-of-results", 1, "Same as -n")
	fs.Float64Var(&opts.tiesWithin, "include-ties-within", 0, "Also keep results within this distance of the last kept score")
	fs.BoolVar(&opts.groupMatch, "group-match", false, "Only compare records sharing a group key")
	fs.IntVar(&opts.threads, "threads", 0, "Worker goroutines (default: GOMAXPROCS)")
	fs.IntVar(&opts.queueSize, "queue-size", 0, "Result batches buffered ahead of the writer")
	fs.BoolVar(&opts.text.RetainUnicode, "retain-unicode", false, "Do not fold accented characters")
	fs.BoolVar(&opts.text.CaseSensitive, "case-sensitive", false, "Do not lowercase tokens")
	fs.BoolVar(&opts.text.RetainNonAlphabetic, "retain-non-alphabetic", false, "Keep digits and punctuation")
	fs.StringVar(&opts.text.Phonetic, "phonetic", "", "Phonetic encoding: soundex or metaphone")
	fs.IntVar(&opts.text.TokenLength, "token-length", 0, "Trim tokens to this many characters")
	fs.StringVar(&opts.tokenizer, "tokenizer", "", "tokenizer.json for subword tokenization")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [options] FROM TO -o OUT\n\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
	}

	positional, err := parseInterleaved(fs, args)
	if err != nil {
		return opts, err
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	if len(positional) != 2 {
		fs.Usage()
		return opts, fmt.Errorf("expected FROM and TO files, got %d arguments", len(positional))
	}
	opts.fromPath = strings.TrimSpace(positional[0])
	opts.toPath = strings.TrimSpace(positional[1])
	opts.configPath = strings.TrimSpace(opts.configPath)
	opts.outputPath = strings.TrimSpace(opts.outputPath)
	opts.outputDir = strings.TrimSpace(opts.outputDir)
	opts.saveConfig = strings.TrimSpace(opts.saveConfig)
	return opts, nil
}

// parseInterleaved lets flags follow positional arguments.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

func (o cliOptions) isSet(names ...string) bool {
	for _, n := range names {
		if o.set[n] {
			return true
		}
	}
	return false
}

// applyOverrides copies explicitly given flags onto cfg.
func (o cliOptions) applyOverrides(cfg *matching.Config) error {
	if o.isSet("mode") {
		kind, err := matching.ParseModeKind(o.mode)
		if err != nil {
			return err
		}
		cfg.Mode = kind
	}
	if o.isSet("ngram-size") {
		cfg.NGramSize = o.ngramSize
	}
	if o.isSet("m", "minimum-match-score") {
		cfg.MinScore = o.minScore
	}
	if o.isSet("n", "number-of-results") {
		cfg.NumResults = o.numResults
	}
	if o.isSet("include-ties-within") {
		eps := o.tiesWithin
		cfg.TiesWithin = &eps
	}
	if o.isSet("group-match") {
		cfg.GroupMatch = o.groupMatch
	}
	if o.isSet("threads") {
		cfg.Workers = o.threads
	}
	if o.isSet("queue-size") {
		cfg.QueueSize = o.queueSize
	}
	if o.isSet("retain-unicode") {
		cfg.Text.RetainUnicode = o.text.RetainUnicode
	}
	if o.isSet("case-sensitive") {
		cfg.Text.CaseSensitive = o.text.CaseSensitive
	}
	if o.isSet("retain-non-alphabetic") {
		cfg.Text.RetainNonAlphabetic = o.text.RetainNonAlphabetic
	}
	if o.isSet("phonetic") {
		cfg.Text.Phonetic = o.text.Phonetic
	}
	if o.isSet("token-length") {
		cfg.Text.TokenLength = o.text.TokenLength
	}
	if o.isSet("tokenizer") {
		cfg.TokenizerPath = o.tokenizer
	}
	if o.isSet("threads") && o.threads > 0 && !o.isSet("queue-size") {
		cfg.QueueSize = 0
	}
	cfg.ApplyDefaults()
	return cfg.Validate()
}

func newLogger(level string, json bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	var cfg zap.Config
	if json {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func loadEnv(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	}
	// A missing ./.env is fine.
	_ = godotenv.Load()
	return nil
}

func run(ctx context.Context, opts cliOptions, logger *zap.Logger, stdout io.Writer) error {
	if err := loadEnv(opts.envFile); err != nil {
		return err
	}
	cfg, err := matching.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := opts.applyOverrides(&cfg); err != nil {
		return err
	}
	matching.SetColumnCandidates(cfg.Columns)
	if opts.saveConfig != "" {
		if err := matching.SaveConfig(opts.saveConfig, cfg); err != nil {
			return err
		}
		logger.Info("config saved", zap.String("path", opts.saveConfig))
	}
	if opts.columns {
		return printColumns(stdout, opts.inputOpts, opts.fromPath, opts.toPath)
	}

	from, err := matching.LoadRecords(opts.fromPath, opts.inputOpts)
	if err != nil {
		return fmt.Errorf("read from records: %w", err)
	}
	to, err := matching.LoadRecords(opts.toPath, opts.inputOpts)
	if err != nil {
		return fmt.Errorf("read to records: %w", err)
	}
	logger.Info("records loaded", zap.Int("from", len(from)), zap.Int("to", len(to)))

	outputPath, err := resolveOutputPath(opts.outputPath, opts.outputDir)
	if err != nil {
		return err
	}
	sink, err := openSink(ctx, outputPath, opts, cfg, stdout)
	if err != nil {
		return err
	}
	var preview *matching.CollectSink
	if opts.stdout && outputPath != "-" {
		preview = &matching.CollectSink{}
		sink = matching.MultiSink(sink, preview)
	}

	var (
		serviceOpts []matching.Option
		bar         *progressbar.ProgressBar
	)
	if opts.progress {
		bar = progressbar.NewOptions(len(from),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("matching"),
		)
		serviceOpts = append(serviceOpts, matching.WithProgress(func(done, total int) {
			_ = bar.Add(1)
		}))
	}

	service, err := matching.NewService(cfg, logger, serviceOpts...)
	if err != nil {
		sink.Close()
		return fmt.Errorf("init service: %w", err)
	}
	stats, runErr := service.Run(ctx, from, to, sink)
	closeErr := sink.Close()
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return closeErr
	}

	if outputPath != "-" {
		fmt.Fprintf(stdout, "wrote %d matches for %d records to %s in %s\n",
			stats.Matches, stats.Processed, outputPath, stats.Elapsed.Round(time.Millisecond))
	}
	if preview != nil {
		printSummary(stdout, from, preview.Results())
	}
	return nil
}

func printColumns(w io.Writer, inputOpts matching.InputOptions, paths ...string) error {
	for _, path := range paths {
		report, err := matching.InspectColumns(path, inputOpts)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s:\n", path)
		if report.Columns == nil {
			fmt.Fprintln(w, "  plain text, one name per line")
			continue
		}
		if report.HasHeader {
			fmt.Fprintf(w, "  header: %s\n", strings.Join(report.Columns, ", "))
		} else {
			fmt.Fprintf(w, "  no header, %d columns\n", len(report.Columns))
		}
		fmt.Fprintf(w, "  name:  %s\n", report.Name)
		fmt.Fprintf(w, "  id:    %s\n", orNone(report.ID, "line number"))
		fmt.Fprintf(w, "  group: %s\n", orNone(report.Group, "none"))
	}
	return nil
}

func orNone(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func isSQLitePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

func openSink(ctx context.Context, path string, opts cliOptions, cfg matching.Config, stdout io.Writer) (matching.Sink, error) {
	switch {
	case path == "-":
		return matching.NewCSVSink(stdout, cfg.GroupMatch)
	case isSQLitePath(path):
		return store.OpenSQLiteSink(ctx, path, store.RunInfo{
			FromSource: opts.fromPath,
			ToSource:   opts.toPath,
			Config:     cfg,
		})
	default:
		return matching.CreateCSVSink(path, matching.CSVSinkOptions{Force: opts.force, Grouped: cfg.GroupMatch})
	}
}

func resolveOutputPath(path, dir string) (string, error) {
	if path == "-" {
		return path, nil
	}
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolve output path: %w", err)
		}
		return absPath, nil
	}
	if dir == "" {
		dir = "csv"
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve output dir: %w", err)
	}
	filename := fmt.Sprintf("result_%s.csv", time.Now().Format("20060102150405"))
	return filepath.Join(absDir, filename), nil
}

// printSummary lists the results of each from record in input order.
func printSummary(w io.Writer, from []matching.Record, results []matching.MatchResult) {
	byFrom := make(map[string][]matching.MatchResult, len(from))
	for _, r := range results {
		byFrom[r.FromID] = append(byFrom[r.FromID], r)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "==== match preview ====")
	for i, rec := range from {
		fmt.Fprintf(w, "%d. %s\n", i+1, summarizeRecord(rec))
		hits := byFrom[rec.ID]
		if len(hits) == 0 {
			fmt.Fprintln(w, "    no match")
			continue
		}
		for _, h := range hits {
			fmt.Fprintf(w, "      - %s #%s (score=%.3f)\n", h.ToName, h.ToID, h.Score)
		}
	}
}

func summarizeRecord(rec matching.Record) string {
	name := strings.TrimSpace(rec.Name)
	if runes := []rune(name); len(runes) > 60 {
		name = string(runes[:60]) + "…"
	}
	if id := strings.TrimSpace(rec.ID); id != "" {
		return "#" + id + " " + name
	}
	return name
}
