package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dshills/coderag/internal/app"
	"github.com/dshills/coderag/internal/config"
	"github.com/dshills/coderag/internal/mcp"
	"github.com/dshills/coderag/internal/retriever"
	"github.com/dshills/coderag/internal/storage"
	"github.com/dshills/coderag/pkg/types"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const usage = `Usage: coderag [--config path] <command> [flags] [args]

Commands:
  index DIR         index a local repository into the collection
  query TEXT...     retrieve fragments relevant to a question
  stats             show collection statistics
  delete            delete the collection
  serve             run the MCP server on stdio
  version           print build information

Query flags:
  -k N              number of fragments (default: retrieval.top_k)
  -strategy NAME    force general, code_search, api_search or hybrid
  -context          include neighbouring fragments
  -keyword          rank semantic candidates by query term matches
  -full             print whole fragments instead of a preview
`

// previewLines bounds fragment output without -full
const previewLines = 12

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("coderag", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	cfgPath := global.String("config", "", "Path to YAML config file (default: ./coderag.yaml or ~/.config/coderag/config.yaml)")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}
	cmd, rest := global.Arg(0), global.Args()[1:]

	if cmd == "version" || cmd == "--version" {
		printVersion(stdout)
		return 0
	}

	var (
		cfg *config.Config
		err error
	)
	if *cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(*cfgPath)
	}
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}

	// stdout is reserved for results and the MCP protocol
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		fmt.Fprintf(stderr, "failed to start: %v\n", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close failed", "error", err)
		}
	}()

	switch cmd {
	case "index":
		err = runIndex(ctx, a, rest, stdout)
	case "query":
		err = runQuery(ctx, a, rest, stdout, stderr)
	case "stats":
		err = runStats(a, stdout)
	case "delete":
		err = a.DeleteCollection(ctx)
		if err == nil {
			fmt.Fprintf(stdout, "deleted collection %s\n", cfg.Index.Collection)
		}
	case "serve":
		logger.Info("MCP server ready, listening on stdio", "version", version, "build_mode", storage.BuildMode)
		err = mcp.NewServer(a, logger).Serve(ctx)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		global.Usage()
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
		return 1
	}
	return 0
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "coderag\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Build Mode: %s\n", storage.BuildMode)
	fmt.Fprintf(w, "SQLite Driver: %s\n", storage.DriverName)
}

func runIndex(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("expected exactly one directory")
	}
	stats, err := a.IndexRepository(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Indexed %d files (%d skipped, %d failed) in %v\n",
		stats.FilesIndexed, stats.FilesSkipped, stats.FilesFailed, stats.Duration.Round(time.Millisecond))
	fmt.Fprintf(stdout, "Created %d fragments (%d semantic); collection now holds %d\n",
		stats.FragmentsCreated, stats.SemanticFragments, a.Stats().Count)
	for _, msg := range stats.ErrorMessages {
		fmt.Fprintf(stdout, "  error: %s\n", msg)
	}
	return nil
}

func runQuery(ctx context.Context, a *app.App, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(stderr)
	k := fs.Int("k", a.Config().Retrieval.TopK, "number of fragments")
	strategy := fs.String("strategy", "", "force a retrieval strategy")
	withContext := fs.Bool("context", false, "include neighbouring fragments")
	full := fs.Bool("full", false, "print whole fragments")
	keyword := fs.Bool("keyword", false, "rank by query term matches")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *k > retriever.MaxK {
		return fmt.Errorf("k must be at most %d", retriever.MaxK)
	}

	query := strings.Join(fs.Args(), " ")
	if *keyword {
		return runKeyword(ctx, a, query, *k, *full, stdout)
	}
	result, err := a.Retrieve(ctx, query, *k, *strategy)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Strategy: %s (%d results)\n", result.Strategy, result.Len())
	if result.Empty() {
		fmt.Fprintln(stdout, "No matching fragments.")
		return nil
	}

	var windows [][]types.Fragment
	if *withContext {
		windows = a.Expand(result.Fragments)
	}
	for i, f := range result.Fragments {
		fmt.Fprintf(stdout, "\n[%d] %s\n", i+1, describe(f, result, i))
		if *withContext {
			for _, n := range windows[i] {
				fmt.Fprintf(stdout, "--- %s #%d\n", n.Metadata.ChunkType, n.Metadata.ChunkIndex)
				fmt.Fprintln(stdout, preview(n.Content, *full))
			}
			continue
		}
		fmt.Fprintln(stdout, preview(f.Content, *full))
	}
	return nil
}

func runKeyword(ctx context.Context, a *app.App, query string, k int, full bool, stdout io.Writer) error {
	hits, err := a.KeywordSearch(ctx, query, k)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Keyword search (%d results)\n", len(hits))
	for i, h := range hits {
		m := h.Fragment.Metadata
		fmt.Fprintf(stdout, "\n[%d] %s  %s %d/%d  terms=%d\n", i+1, m.FilePath, m.ChunkType, m.ChunkIndex+1, m.TotalChunks, int(h.Score))
		fmt.Fprintln(stdout, preview(h.Fragment.Content, full))
	}
	return nil
}

// describe renders the header line of one result
func describe(f types.Fragment, result *types.RetrievalResult, i int) string {
	m := f.Metadata
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s %d/%d", m.FilePath, m.ChunkType, m.ChunkIndex+1, m.TotalChunks)
	if m.FunctionName != "" {
		fmt.Fprintf(&b, "  function=%s", m.FunctionName)
	}
	if m.ClassName != "" {
		fmt.Fprintf(&b, "  class=%s", m.ClassName)
	}
	if result.Scores != nil {
		fmt.Fprintf(&b, "  score=%.4f", result.Scores[i])
	}
	return b.String()
}

func preview(content string, full bool) string {
	if full {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) <= previewLines {
		return content
	}
	return strings.Join(lines[:previewLines], "\n") + fmt.Sprintf("\n... (%d more lines)", len(lines)-previewLines)
}

func runStats(a *app.App, stdout io.Writer) error {
	s := a.Stats()
	fmt.Fprintf(stdout, "Collection: %s (%s)\n", s.Name, s.ID)
	fmt.Fprintf(stdout, "Fragments:  %d\n", s.Count)
	fmt.Fprintf(stdout, "Backend:    %s (%s)\n", s.Backend, s.ScoreKind)
	fmt.Fprintf(stdout, "Dimension:  %d\n", s.Dimension)
	if s.Provider != "" {
		fmt.Fprintf(stdout, "Embedding:  %s/%s\n", s.Provider, s.Model)
	}
	fmt.Fprintf(stdout, "Created:    %s\n", s.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(stdout, "Updated:    %s\n", s.UpdatedAt.Format("2006-01-02 15:04:05"))
	return nil
}
