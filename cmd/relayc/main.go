package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/seuros/gopher-relay/internal/buildinfo"
	"github.com/seuros/gopher-relay/src/engine"
	"github.com/seuros/gopher-relay/src/ir"
	"github.com/seuros/gopher-relay/src/lowered"
	"github.com/seuros/gopher-relay/src/parser"
	"github.com/seuros/gopher-relay/src/target"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "fmt":
		err = fmtCommand(args)
	case "hash":
		err = hashCommand(args)
	case "lower":
		err = lowerCommand(args)
	case "run":
		err = runCommand(args)
	case "inspect":
		err = inspectCommand(args)
	case "version", "--version", "-v":
		err = versionCommand()
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			if exitErr.Error() != "" {
				fmt.Fprintln(os.Stderr, exitErr.Error())
			}
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func printUsage() {
	fmt.Println("relayc - tensor function compile tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  relayc fmt <file>                  - Parse and pretty-print a function")
	fmt.Println("  relayc hash [flags] <file>         - Print the cache key hash")
	fmt.Println("  relayc lower [flags] <file>...     - Lower functions and print the result")
	fmt.Println("  relayc run [flags] <file>          - Compile and invoke a function")
	fmt.Println("  relayc inspect [flags] <file>...   - Compile and list cache objects")
	fmt.Println("  relayc version                     - Show version information")
	fmt.Println()
	fmt.Println("Common flags:")
	fmt.Println("  --target <target>                  - Target string (or set RELAYC_TARGET, default llvm)")
	fmt.Println("  --log-level debug|info|warn|off    - Engine log level (or set RELAYC_LOG_LEVEL)")
	fmt.Println("  --trace                            - Export spans to stderr")
	fmt.Println("  --metrics                          - Export metrics to stderr")
	fmt.Println()
	fmt.Println("Run flags:")
	fmt.Println("  --inputs <json>                    - Flat input values, e.g. '[[1,2],[3,4]]'")
	fmt.Println("  --fill <value>                     - Fill every input with value (default 1)")
	fmt.Println("  --format table|json                - Output format (default: table)")
}

func versionCommand() error {
	fmt.Printf("relayc version %s\n", engine.Version())
	fmt.Printf("User agent: %s\n", engine.UserAgent())
	fmt.Printf("Platform: %s\n", buildinfo.Platform())
	return nil
}

// options holds the flags shared by every compiling command.
type options struct {
	target   string
	logLevel string
	trace    bool
	metrics  bool
}

func (o *options) register(fs *flag.FlagSet) {
	fs.StringVar(&o.target, "target", envOrDefault("RELAYC_TARGET", "llvm"), "Target string")
	fs.StringVar(&o.logLevel, "log-level", envOrDefault("RELAYC_LOG_LEVEL", "warn"), "Engine log level")
	fs.BoolVar(&o.trace, "trace", false, "Export spans to stderr")
	fs.BoolVar(&o.metrics, "metrics", false, "Export metrics to stderr")
}

// session is one CLI invocation's engine plus its telemetry.
type session struct {
	engine   *engine.CompileEngine
	target   target.Target
	shutdown func(context.Context) error
}

func (o *options) open() (*session, error) {
	t, err := target.Parse(o.target)
	if err != nil {
		return nil, err
	}

	obs, shutdown, err := setupTelemetry(o.trace, o.metrics, os.Stderr)
	if err != nil {
		return nil, err
	}

	level := engine.ParseLogLevel(o.logLevel)
	logging := &engine.LoggingConfig{
		Logger: engine.NewConsoleLoggerWithOutput(level, os.Stderr, os.Stderr),
		Level:  level,
	}

	e := engine.New(&engine.Config{Logging: logging, Observability: obs})
	return &session{engine: e, target: t, shutdown: shutdown}, nil
}

func (s *session) close() {
	if err := s.shutdown(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry shutdown: %v\n", err)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return &exitError{code: 0}
		}
		return usageErrorf(2, "%v", err)
	}
	return nil
}

func parseFile(p *parser.Parser, filename string) (*ir.Function, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	fn, err := p.Parse(string(content))
	if err != nil {
		return nil, usageErrorf(1, "Syntax error in %s: %v", filename, err)
	}
	return fn, nil
}

func fmtCommand(args []string) error {
	if len(args) != 1 {
		return usageErrorf(2, "Usage: relayc fmt <file>")
	}

	p, err := parser.New()
	if err != nil {
		return err
	}
	fn, err := parseFile(p, args[0])
	if err != nil {
		return err
	}

	fmt.Println(ir.Print(fn))
	return nil
}

func hashCommand(args []string) error {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	targetFlag := fs.String("target", envOrDefault("RELAYC_TARGET", "llvm"), "Target string")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageErrorf(2, "Usage: relayc hash [--target <target>] <file>")
	}

	t, err := target.Parse(*targetFlag)
	if err != nil {
		return err
	}
	p, err := parser.New()
	if err != nil {
		return err
	}
	fn, err := parseFile(p, fs.Arg(0))
	if err != nil {
		return err
	}

	key := engine.NewCacheKey(fn, t)
	fmt.Printf("%016x  %s\n", key.Hash(), t)
	return nil
}

func lowerCommand(args []string) error {
	fs := flag.NewFlagSet("lower", flag.ContinueOnError)
	var opts options
	opts.register(fs)
	jobs := fs.Int("j", runtime.GOMAXPROCS(0), "Maximum number of files lowered concurrently")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usageErrorf(2, "Usage: relayc lower [flags] <file>...")
	}

	s, err := opts.open()
	if err != nil {
		return err
	}
	defer s.close()

	p, err := parser.New()
	if err != nil {
		return err
	}

	files := fs.Args()
	results := make([]*lowered.CachedFunc, len(files))
	var g errgroup.Group
	g.SetLimit(max(*jobs, 1))
	for i, filename := range files {
		i, filename := i, filename
		g.Go(func() error {
			fn, err := parseFile(p, filename)
			if err != nil {
				return err
			}
			cf, err := s.engine.Lower(engine.NewCacheKey(fn, s.target))
			if err != nil {
				return fmt.Errorf("%s: %w", filename, err)
			}
			results[i] = cf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, cf := range results {
		fmt.Printf("// %s: %s on %s\n", files[i], cf.FuncName, cf.Target)
		for _, f := range cf.Funcs {
			fmt.Println(f)
		}
	}
	return nil
}

func inspectCommand(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	var opts options
	opts.register(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usageErrorf(2, "Usage: relayc inspect [flags] <file>...")
	}

	s, err := opts.open()
	if err != nil {
		return err
	}
	defer s.close()

	p, err := parser.New()
	if err != nil {
		return err
	}
	for _, filename := range fs.Args() {
		fn, err := parseFile(p, filename)
		if err != nil {
			return err
		}
		if _, err := s.engine.JIT(engine.NewCacheKey(fn, s.target)); err != nil {
			return fmt.Errorf("%s: %w", filename, err)
		}
	}

	return writeObjects(os.Stdout, s.engine.Objects())
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
