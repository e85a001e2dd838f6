// Package main is the wortnest CLI entry point.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/wortnest/internal/cli"
	"github.com/hyperjump/wortnest/internal/config"
	"github.com/hyperjump/wortnest/internal/export"
	"github.com/hyperjump/wortnest/internal/indexer"
	"github.com/hyperjump/wortnest/internal/models"
	"github.com/hyperjump/wortnest/internal/review"
	"github.com/hyperjump/wortnest/internal/server"
	"github.com/hyperjump/wortnest/internal/watcher"
	"github.com/hyperjump/wortnest/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/wortnest/config.yaml"
	defaultServerURL  = "http://localhost:8080"
	defaultDrills     = 10
)

// errUsage makes main print the usage text.
var errUsage = errors.New("invalid usage")

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory wins if it exists, and a missing default file falls
// back to built-in defaults. It returns the path actually loaded, or "" for
// built-in defaults.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if err := run(os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "%v\n\n", err)
			printUsage(os.Stderr)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	switch command {
	case "server":
		return runServer(args)
	case "add":
		return runAdd(args)
	case "import":
		return runImport(args)
	case "search":
		return runSearch(args)
	case "related":
		return runRelated(args)
	case "review":
		return runReview(args)
	case "export":
		return runExport(args)
	case "delete":
		return runDelete(args)
	case "backfill":
		return runBackfill(args)
	case "status":
		return runStatus(args)
	case "inbox":
		return runInbox(args)
	case "version", "--version", "-v":
		fmt.Printf("wortnest version %s\n", version)
		return nil
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	if n, err := components.Vocab.SyncKeywordIndex(ctx); err != nil {
		logger.Warn("keyword index sync failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("keyword index rebuilt from storage", zap.Int("items", n))
	}

	inbox := watcher.NewWatcher(components.Vocab,
		watcher.WithLogger(logger),
		watcher.WithInboxes(cfg.Import.Inbox...),
		watcher.WithExtensions(cfg.Import.Extensions),
		watcher.WithRecursive(cfg.Import.RecursiveOrDefault()))
	if err := inbox.Start(ctx); err != nil {
		return fmt.Errorf("failed to start inbox watcher: %w", err)
	}
	defer inbox.Stop()
	go inbox.ImportExisting(ctx)

	srv := server.NewServer(components.Vocab, cfg,
		server.WithLogger(logger),
		server.WithInbox(inbox, resolvedConfigPath))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// commonFlags are shared by the one-shot commands.
type commonFlags struct {
	configPath string
	serverURL  string
	output     string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}
	fs.StringVar(&cf.configPath, "config", defaultConfigPath, "config file path (direct mode)")
	fs.StringVar(&cf.serverURL, "server", "", "server URL, e.g. "+defaultServerURL+" (empty = use the database directly)")
	fs.StringVar(&cf.output, "output", "text", "output format: text, compact, or json")
	return cf
}

func (cf *commonFlags) format() (cli.OutputFormat, error) {
	f, err := cli.ParseOutputFormat(cf.output)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errUsage, err)
	}
	return f, nil
}

// openLocal loads the config and initializes every component.
func openLocal(ctx context.Context, cf *commonFlags, adjust func(*config.Config)) (*Components, func(), error) {
	cfg, _, err := loadConfig(cf.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if adjust != nil {
		adjust(cfg)
	}
	logger, err := utils.NewCommandLogger(cfg.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	c, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return c, func() {
		c.Close()
		_ = logger.Sync()
	}, nil
}

// openBackend returns the HTTP client when --server is set, else a local backend.
func openBackend(ctx context.Context, cf *commonFlags) (backend, func(), error) {
	if cf.serverURL != "" {
		return newAPIClient(cf.serverURL), func() {}, nil
	}
	c, done, err := openLocal(ctx, cf, nil)
	if err != nil {
		return nil, nil, err
	}
	return localBackend{c: c}, done, nil
}

// reorderArgs moves any flags (and their values) that appear after the
// positional arguments to the front so that flag.Parse sees them. Go's flag
// package stops at the first non-flag argument, so "wortnest add Hund
// -translation dog" would otherwise leave -translation unparsed.
func reorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 1 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// joinArgs joins positional args with spaces so multi-word input works the
// same with or without shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// configPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func configPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(a, "-config="); ok {
			return v
		}
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
	}
	return defaultPath
}

// searchLimitFromConfig returns search.default_limit from the config at path,
// or models.DefaultSearchLimit when it cannot be loaded.
func searchLimitFromConfig(path string) int {
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil || cfg.Search.DefaultLimit <= 0 {
		return models.DefaultSearchLimit
	}
	return cfg.Search.DefaultLimit
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid item id %q", errUsage, s)
	}
	return id, nil
}

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ", ") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func runAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	cf := addCommonFlags(fs)
	translation := fs.String("translation", "", "English translation (empty = auto-translate when enabled)")
	typ := fs.String("type", "", "Word, Phrase or Sentence (empty = inferred)")
	tags := fs.String("tags", "", "comma-separated tags")
	var examples stringList
	fs.Var(&examples, "example", "example sentence (repeatable)")
	showRelated := fs.Bool("related", true, "show related items after adding")
	_ = fs.Parse(reorderArgs(args))

	content := joinArgs(fs.Args())
	if content == "" {
		return fmt.Errorf("%w: usage: wortnest add [flags] <german text>", errUsage)
	}
	format, err := cf.format()
	if err != nil {
		return err
	}
	itemType, err := models.ParseItemType(*typ)
	if err != nil {
		return err
	}

	ctx := context.Background()
	b, done, err := openBackend(ctx, cf)
	if err != nil {
		return err
	}
	defer done()

	item, err := b.Add(ctx, &models.ItemInput{
		Type:        itemType,
		Content:     content,
		Translation: *translation,
		Tags:        models.ParseTagList(*tags),
		Examples:    examples,
	})
	if err != nil {
		return err
	}
	if err := cli.WriteItem(os.Stdout, item, format); err != nil {
		return err
	}
	if !*showRelated || format == cli.OutputJSON {
		return nil
	}
	rel, err := b.Related(ctx, item.ID, 0)
	if err != nil {
		return err
	}
	if rel.Available && len(rel.Related) > 0 {
		fmt.Println("Related:")
		return cli.WriteRelated(os.Stdout, rel, format)
	}
	return nil
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	cf := addCommonFlags(fs)
	typ := fs.String("type", "", "item type for imported entries (empty = inferred)")
	text := fs.String("text", "", `import these "Deutsch | English" lines instead of a file`)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: wortnest import [flags] <file-or-directory | ->\n\n")
		fmt.Fprintf(fs.Output(), "Lines look like \"Deutsch | English | tag1, tag2\"; tabs work as separators too.\n")
		fmt.Fprintf(fs.Output(), "\"-\" reads lines from standard input.\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(reorderArgs(args))

	format, err := cf.format()
	if err != nil {
		return err
	}
	itemType, err := models.ParseItemType(*typ)
	if err != nil {
		return err
	}
	ctx := context.Background()

	if *text != "" || fs.Arg(0) == "-" {
		input := *text
		if input == "" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			input = string(data)
		}
		b, done, err := openBackend(ctx, cf)
		if err != nil {
			return err
		}
		defer done()
		report, err := b.ImportText(ctx, input, itemType)
		if err != nil {
			return err
		}
		return cli.WriteReport(os.Stdout, report, format)
	}

	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("%w: missing file or directory", errUsage)
	}
	if cf.serverURL != "" {
		return errors.New("file imports read the local database; drop the file into an inbox of the running server instead")
	}
	path := fs.Arg(0)
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	c, done, err := openLocal(ctx, cf, func(cfg *config.Config) {
		if itemType != "" {
			cfg.Import.DefaultType = string(itemType)
		}
	})
	if err != nil {
		return err
	}
	defer done()

	if info.IsDir() {
		reports, err := c.Vocab.ImportDirectory(ctx, path)
		if err != nil {
			return err
		}
		if len(reports) == 0 {
			fmt.Printf("Nothing new to import in %s\n", path)
		}
		for _, r := range reports {
			if err := cli.WriteReport(os.Stdout, r, format); err != nil {
				return err
			}
		}
		return nil
	}
	report, err := c.Vocab.ImportFile(ctx, path)
	if errors.Is(err, indexer.ErrUnchanged) {
		fmt.Printf("%s is unchanged since its last import\n", path)
		return nil
	}
	if err != nil {
		return err
	}
	return cli.WriteReport(os.Stdout, report, format)
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: wortnest search [flags] [query]\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Without a query, items are listed newest first.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  wortnest search Haus
  wortnest search --fuzzy Haues            # typo-tolerant search
  wortnest search --tag Tiere --type Word  # list by tag and type
  wortnest search --output json gehen
`)
}

func runSearch(args []string) error {
	args = reorderArgs(args)
	defaultLimit := searchLimitFromConfig(configPathFromArgs(args, defaultConfigPath))

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	cf := addCommonFlags(fs)
	limit := fs.Int("limit", defaultLimit, "number of results")
	offset := fs.Int("offset", 0, "skip this many results")
	typ := fs.String("type", "", "only Word, Phrase or Sentence")
	tag := fs.String("tag", "", "only items with this tag")
	fuzzy := fs.Bool("fuzzy", false, "enable fuzzy matching for typo tolerance")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(args)

	format, err := cf.format()
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, done, err := openBackend(ctx, cf)
	if err != nil {
		return err
	}
	defer done()

	resp, err := b.Search(ctx, &models.SearchQuery{
		Query:        joinArgs(fs.Args()),
		Type:         models.ItemType(*typ),
		Tag:          *tag,
		Limit:        *limit,
		Offset:       *offset,
		FuzzyEnabled: *fuzzy,
	})
	if err != nil {
		return err
	}
	return cli.WriteSearchResults(os.Stdout, resp, format)
}

func runRelated(args []string) error {
	fs := flag.NewFlagSet("related", flag.ExitOnError)
	cf := addCommonFlags(fs)
	topK := fs.Int("top-k", 0, "number of related items (0 = related.top_k from config)")
	_ = fs.Parse(reorderArgs(args))
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: usage: wortnest related [flags] <item-id>", errUsage)
	}
	id, err := parseID(fs.Arg(0))
	if err != nil {
		return err
	}
	format, err := cf.format()
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, done, err := openBackend(ctx, cf)
	if err != nil {
		return err
	}
	defer done()
	rel, err := b.Related(ctx, id, *topK)
	if err != nil {
		return err
	}
	return cli.WriteRelated(os.Stdout, rel, format)
}

func runReview(args []string) error {
	fs := flag.NewFlagSet("review", flag.ExitOnError)
	cf := addCommonFlags(fs)
	mode := fs.String("mode", string(review.ModeCloze), "cloze, reverse, or dictation")
	tag := fs.String("tag", "", "only review items with this tag")
	count := fs.Int("count", defaultDrills, "number of drills")
	_ = fs.Parse(reorderArgs(args))

	m, err := review.ParseMode(*mode)
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, done, err := openBackend(ctx, cf)
	if err != nil {
		return err
	}
	defer done()

	correct, total, err := reviewLoop(ctx, b, os.Stdin, os.Stdout, *tag, m, *count)
	if total > 0 {
		fmt.Printf("\n%d/%d correct\n", correct, total)
	}
	return err
}

// reviewLoop asks up to count drills, reading one answer per line from in.
// An empty line or "q" ends the session early.
func reviewLoop(ctx context.Context, b backend, in io.Reader, out io.Writer, tag string, mode review.Mode, count int) (correct, total int, err error) {
	scanner := bufio.NewScanner(in)
	for total < count {
		drill, err := b.NextDrill(ctx, tag, mode)
		if err != nil {
			return correct, total, err
		}
		fmt.Fprintln(out)
		cli.WriteDrill(out, drill)
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		answer := strings.TrimSpace(scanner.Text())
		if answer == "" || answer == "q" {
			break
		}
		grade, err := b.Answer(ctx, drill.Item.ID, mode, answer)
		if err != nil {
			return correct, total, err
		}
		total++
		if grade.Correct {
			correct++
		}
		cli.WriteGrade(out, grade)
	}
	return correct, total, scanner.Err()
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	cf := addCommonFlags(fs)
	formatFlag := fs.String("format", "", "csv, xlsx, json, or apkg (default: from --out, else csv)")
	out := fs.String("out", "", `output file ("-" = stdout; default: wortnest.<format>)`)
	_ = fs.Parse(reorderArgs(args))

	f, err := exportFormat(*formatFlag, *out)
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, done, err := openBackend(ctx, cf)
	if err != nil {
		return err
	}
	defer done()

	if *out == "-" {
		return b.Export(ctx, os.Stdout, f)
	}
	path := *out
	if path == "" {
		path = f.Filename()
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := b.Export(ctx, file, f); err != nil {
		file.Close()
		_ = os.Remove(path)
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	fmt.Printf("Exported to %s\n", path)
	return nil
}

// exportFormat picks the format from the flag, else from the output file's extension.
func exportFormat(flagValue, out string) (export.Format, error) {
	if flagValue == "" && out != "" && out != "-" {
		if ext := filepath.Ext(out); ext != "" {
			return export.ParseFormat(ext)
		}
	}
	return export.ParseFormat(flagValue)
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	cf := addCommonFlags(fs)
	_ = fs.Parse(reorderArgs(args))
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: usage: wortnest delete [flags] <item-id>", errUsage)
	}
	id, err := parseID(fs.Arg(0))
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, done, err := openBackend(ctx, cf)
	if err != nil {
		return err
	}
	defer done()
	if err := b.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Item deleted: %d\n", id)
	return nil
}

func runBackfill(args []string) error {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	cf := addCommonFlags(fs)
	_ = fs.Parse(args)
	format, err := cf.format()
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, done, err := openBackend(ctx, cf)
	if err != nil {
		return err
	}
	defer done()
	report, err := b.Backfill(ctx)
	if err != nil {
		return err
	}
	return cli.WriteReport(os.Stdout, report, format)
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cf := addCommonFlags(fs)
	_ = fs.Parse(args)
	format, err := cf.format()
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, done, err := openBackend(ctx, cf)
	if err != nil {
		return err
	}
	defer done()
	st, err := b.Status(ctx)
	if err != nil {
		return err
	}
	return cli.WriteStatus(os.Stdout, st, format)
}

func runInbox(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: usage: wortnest inbox <add|remove|list> [path]", errUsage)
	}
	sub := args[0]
	fs := flag.NewFlagSet("inbox", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(reorderArgs(args[1:]))
	client := newAPIClient(*serverURL)
	ctx := context.Background()

	switch sub {
	case "add", "remove":
		if fs.NArg() < 1 {
			return fmt.Errorf("%w: usage: wortnest inbox %s <path>", errUsage, sub)
		}
		path, err := filepath.Abs(fs.Arg(0))
		if err != nil {
			return err
		}
		if sub == "add" {
			if err := client.AddInbox(ctx, path); err != nil {
				return err
			}
			fmt.Printf("Added: %s\n", path)
			return nil
		}
		if err := client.RemoveInbox(ctx, path); err != nil {
			return err
		}
		fmt.Printf("Removed: %s\n", path)
		return nil
	case "list":
		dirs, err := client.Inboxes(ctx)
		if err != nil {
			return err
		}
		for _, d := range dirs {
			fmt.Println(d)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown inbox subcommand %q", errUsage, sub)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `wortnest - German vocabulary notebook with related-word discovery

Usage:
  wortnest server [flags]                  Start the HTTP server and inbox watcher
  wortnest add [flags] <german text>       Add a word, phrase or sentence
  wortnest import [flags] <file|dir|->     Import vocabulary lists
  wortnest search [flags] [query]          Search or list items
  wortnest related [flags] <id>            Show items related to an item
  wortnest review [flags]                  Practice (cloze, reverse, dictation)
  wortnest export [flags]                  Export to csv, xlsx, json or Anki (apkg)
  wortnest delete [flags] <id>             Delete an item
  wortnest backfill [flags]                Generate missing embeddings
  wortnest status [flags]                  Show counts, embedding state and paths
  wortnest inbox <add|remove|list> [path]  Manage inbox directories of a running server
  wortnest version                         Show version
  wortnest help                            Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/wortnest/config.yaml,
                     or ./config.yaml when present)
  --server string    Talk to a running server, e.g. http://localhost:8080.
                     Empty (default) uses the database directly.
  --output string    text, compact, or json (default: text)

Examples:
  wortnest server
  wortnest add --translation "the house" --tags Wohnen "das Haus"
  wortnest import vokabeln.xlsx
  echo "der Baum | the tree" | wortnest import -
  wortnest search --fuzzy Hasu
  wortnest related 42
  wortnest review --mode reverse --tag Tiere
  wortnest export --out deck.apkg
  wortnest status --server http://localhost:8080`)
}
