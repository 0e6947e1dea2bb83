package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/vitalog/vitalog/internal/classify"
	"github.com/vitalog/vitalog/internal/config"
	"github.com/vitalog/vitalog/internal/llm"
	"github.com/vitalog/vitalog/internal/pipeline"
	"github.com/vitalog/vitalog/internal/store"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "log":
		err = runLog(os.Args[2:])
	case "recent":
		err = runRecent(os.Args[2:])
	case "review":
		err = runReview(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "config":
		err = runConfig(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("vitalog %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// commonOpts are the flags every subcommand understands.
type commonOpts struct {
	configPath string
	db         string
	llmFlag    string
	user       string
	noLLM      bool
}

// parseCommon strips the shared flags out of args and returns the rest.
func parseCommon(args []string) (commonOpts, []string, error) {
	var opts commonOpts
	var rest []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" && i+1 < len(args):
			i++
			opts.configPath = args[i]
		case strings.HasPrefix(args[i], "--config="):
			opts.configPath = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "--db" && i+1 < len(args):
			i++
			opts.db = args[i]
		case strings.HasPrefix(args[i], "--db="):
			opts.db = strings.TrimPrefix(args[i], "--db=")
		case args[i] == "--llm" && i+1 < len(args):
			i++
			opts.llmFlag = args[i]
		case strings.HasPrefix(args[i], "--llm="):
			opts.llmFlag = strings.TrimPrefix(args[i], "--llm=")
		case args[i] == "--user" && i+1 < len(args):
			i++
			opts.user = args[i]
		case strings.HasPrefix(args[i], "--user="):
			opts.user = strings.TrimPrefix(args[i], "--user=")
		case args[i] == "--no-llm":
			opts.noLLM = true
		default:
			rest = append(rest, args[i])
		}
	}
	return opts, rest, nil
}

// parseLimit parses a --limit value. Non-numeric or non-positive input is
// an argument error, same as any other unknown argument.
func parseLimit(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid --limit value %q: want a positive integer", value)
	}
	return n, nil
}

func resolve(opts commonOpts) (config.ResolvedConfig, error) {
	return config.ResolveConfig(config.ResolveOptions{
		ConfigPath: opts.configPath,
		CLILLM:     opts.llmFlag,
		CLIDBPath:  opts.db,
		CLIUser:    opts.user,
	})
}

func openStore(resolved config.ResolvedConfig) (store.Store, error) {
	s, err := store.NewStore(store.StoreConfig{DBPath: resolved.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

// buildPipeline assembles the interpretation pipeline from resolved config.
// Without an LLM (no key, or --no-llm) the pipeline is pattern-only and
// unmatched text lands in the review queue.
func buildPipeline(resolved config.ResolvedConfig, noLLM bool) (*pipeline.Pipeline, error) {
	thresholds, err := resolved.Thresholds()
	if err != nil {
		return nil, err
	}
	ttl, err := resolved.SessionIdleTTL()
	if err != nil {
		return nil, err
	}
	timeout, err := resolved.ClassifierTimeout()
	if err != nil {
		return nil, err
	}

	var classifier classify.Classifier
	if !noLLM {
		cfg, err := resolved.LLMConfig()
		if err != nil {
			return nil, err
		}
		provider, err := llm.NewProvider(cfg)
		if err != nil {
			// No usable provider is not fatal; the pattern matchers
			// still cover the common phrasings.
			fmt.Fprintf(os.Stderr, "Warning: LLM fallback disabled: %v\n", err)
		} else {
			classifier = classify.NewLLMClassifier(provider, classify.Opts{
				Timeout: timeout,
				Cache:   classify.NewCache(classify.DefaultCacheTTL),
			})
		}
	}

	return pipeline.New(classifier, pipeline.Options{
		Thresholds: thresholds,
		SessionTTL: ttl,
	}), nil
}

func runRecent(args []string) error {
	opts, rest, err := parseCommon(args)
	if err != nil {
		return err
	}
	limit := 10
	asJSON := false
	for _, arg := range rest {
		switch {
		case strings.HasPrefix(arg, "--limit="):
			limit, err = parseLimit(strings.TrimPrefix(arg, "--limit="))
			if err != nil {
				return err
			}
		case arg == "--json":
			asJSON = true
		default:
			return fmt.Errorf("unknown argument: %s", arg)
		}
	}

	resolved, err := resolve(opts)
	if err != nil {
		return err
	}
	s, err := openStore(resolved)
	if err != nil {
		return err
	}
	defer s.Close()

	records, err := s.QueryRecent(context.Background(), resolved.UserID.Value, limit)
	if err != nil {
		return fmt.Errorf("querying records: %w", err)
	}
	if asJSON {
		data, _ := json.MarshalIndent(records, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	if len(records) == 0 {
		fmt.Println("No records yet. Try: vitalog log \"slept 8 hours\"")
		return nil
	}
	for _, r := range records {
		printRecord(r)
	}
	return nil
}

func runReview(args []string) error {
	opts, rest, err := parseCommon(args)
	if err != nil {
		return err
	}
	resolveID := ""
	limit := 20
	for _, arg := range rest {
		switch {
		case strings.HasPrefix(arg, "--resolve="):
			resolveID = strings.TrimPrefix(arg, "--resolve=")
		case strings.HasPrefix(arg, "--limit="):
			limit, err = parseLimit(strings.TrimPrefix(arg, "--limit="))
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown argument: %s", arg)
		}
	}

	resolved, err := resolve(opts)
	if err != nil {
		return err
	}
	s, err := openStore(resolved)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := context.Background()

	if resolveID != "" {
		if err := s.MarkReviewed(ctx, resolveID); err != nil {
			return fmt.Errorf("marking reviewed: %w", err)
		}
		fmt.Printf("Resolved %s\n", resolveID)
		return nil
	}

	records, err := s.ListNeedsReview(ctx, resolved.UserID.Value, limit)
	if err != nil {
		return fmt.Errorf("querying review queue: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("Review queue is empty.")
		return nil
	}
	fmt.Printf("%d record(s) need review:\n\n", len(records))
	for _, r := range records {
		printRecord(r)
	}
	fmt.Println("\nResolve with: vitalog review --resolve=<id>")
	return nil
}

func runStats(args []string) error {
	opts, rest, err := parseCommon(args)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("unknown argument: %s", rest[0])
	}

	resolved, err := resolve(opts)
	if err != nil {
		return err
	}
	s, err := openStore(resolved)
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("reading stats: %w", err)
	}

	fmt.Printf("Records:       %d\n", stats.RecordCount)
	fmt.Printf("Needs review:  %d\n", stats.NeedsReviewCount)
	if len(stats.ByKind) > 0 {
		fmt.Println("By kind:")
		for kind, n := range stats.ByKind {
			fmt.Printf("  %-10s %d\n", kind, n)
		}
	}
	fmt.Printf("DB size:       %.1f KB\n", float64(stats.DBSizeBytes)/1024)
	return nil
}

func runConfig(args []string) error {
	opts, rest, err := parseCommon(args)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("unknown argument: %s", rest[0])
	}

	resolved, err := resolve(opts)
	if err != nil {
		return err
	}
	data, _ := json.MarshalIndent(resolved, "", "  ")
	fmt.Println(string(data))
	return nil
}

func printRecord(r *store.ActivityRecord) {
	flags := ""
	if r.Clarified {
		flags += " [clarified]"
	}
	if r.NeedsReview {
		flags += " [needs review]"
	}
	fields, _ := json.Marshal(r.Fields)
	fmt.Printf("%s  %-8s %.2f%s\n", r.CreatedAt.Format("2006-01-02 15:04"), r.Kind, r.Confidence, flags)
	fmt.Printf("  %q -> %s\n", r.RawText, string(fields))
	fmt.Printf("  id: %s\n", r.ID)
}

func printUsage() {
	fmt.Printf(`vitalog %s — Natural-language wellness logging

Usage:
  vitalog <command> [arguments]

Commands:
  log <text>          Interpret and store an activity ("slept 8 hours")
  recent              List recent records, newest first
  review              List flagged records, or resolve one with --resolve=<id>
  stats               Show store statistics
  serve               Run the MCP server over stdio
  config              Show resolved configuration and value sources
  version             Print version

Flags:
  --config <path>     Config file (default ~/.vitalog/config.yaml)
  --db <path>         Database file (default ~/.vitalog/vitalog.db)
  --llm <prov/model>  LLM for the fallback classifier (e.g. google/gemini-2.5-flash)
  --user <id>         User identifier (default "default")
  --no-llm            Disable the LLM fallback; pattern matching only
  -h, --help          Show this help message
  -v, --version       Print version
`, version)
}
