package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/smoked-tofu/internal/api"
	"github.com/mattjoyce/smoked-tofu/internal/checks"
	"github.com/mattjoyce/smoked-tofu/internal/command"
	"github.com/mattjoyce/smoked-tofu/internal/config"
	"github.com/mattjoyce/smoked-tofu/internal/dispatch"
	"github.com/mattjoyce/smoked-tofu/internal/doctor"
	"github.com/mattjoyce/smoked-tofu/internal/events"
	"github.com/mattjoyce/smoked-tofu/internal/history"
	"github.com/mattjoyce/smoked-tofu/internal/inspect"
	"github.com/mattjoyce/smoked-tofu/internal/lock"
	"github.com/mattjoyce/smoked-tofu/internal/log"
	"github.com/mattjoyce/smoked-tofu/internal/storage"
	"github.com/mattjoyce/smoked-tofu/internal/tui/watch"
	"github.com/mattjoyce/smoked-tofu/internal/webhook"
	"gopkg.in/yaml.v3"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	// Bare flags start the relay: smoked-tofu --token T --secret S --command make test
	if len(cmd) > 1 && cmd[0] == '-' && !isHelpToken(cmd) {
		os.Exit(runStart(os.Args[1:]))
	}

	switch cmd {
	case "start":
		os.Exit(runStart(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "delivery":
		os.Exit(runDeliveryNoun(args))
	case "watch":
		os.Exit(runWatch(args))
	case "version":
		fmt.Printf("smoked-tofu version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`smoked-tofu - run a command for every pushed commit and report it as a GitHub check

Usage:
  smoked-tofu start [flags] [command args...]
  smoked-tofu <noun> <action> [flags]

Commands:
  start             Start the webhook relay in foreground
  config check      Validate configuration and integrity
  config lock       Record BLAKE3 checksums for the configuration file
  delivery list     Show recent deliveries from the history database
  delivery inspect  Show per-commit outcomes of one delivery
  watch             Live view of deliveries from the ops API
  version           Show version information
  help              Show this help message

Start flags:
  -t, --token       GitHub token used for check runs
  -s, --secret      Webhook secret for signature verification
  -p, --port        Port for the webhook server (default 3000)
  -c, --command     Command to run for each commit
      --config      Optional YAML configuration file or directory
      --log-level   Override service.log_level

Flags override the configuration file. Arguments after the flags are passed to the command.
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

// startFlags are the command line overrides accepted by start.
type startFlags struct {
	configPath string
	token      string
	secret     string
	port       int
	command    string
	logLevel   string
	args       []string
}

func parseStartFlags(args []string) (*startFlags, error) {
	sf := &startFlags{}
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.StringVar(&sf.configPath, "config", "", "Path to configuration file or directory")
	fs.StringVar(&sf.token, "token", "", "GitHub token")
	fs.StringVar(&sf.token, "t", "", "GitHub token (shorthand)")
	fs.StringVar(&sf.secret, "secret", "", "Webhook secret")
	fs.StringVar(&sf.secret, "s", "", "Webhook secret (shorthand)")
	fs.IntVar(&sf.port, "port", 0, "Webhook server port")
	fs.IntVar(&sf.port, "p", 0, "Webhook server port (shorthand)")
	fs.StringVar(&sf.command, "command", "", "Command to run for each commit")
	fs.StringVar(&sf.command, "c", "", "Command to run for each commit (shorthand)")
	fs.StringVar(&sf.logLevel, "log-level", "", "Log level override")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if sf.port < 0 || sf.port > 65535 {
		return nil, fmt.Errorf("port %d out of range", sf.port)
	}
	sf.args = fs.Args()
	return sf, nil
}

// resolveConfig loads the optional config file and applies flag overrides on top.
func resolveConfig(sf *startFlags) (*config.Config, error) {
	cfg := config.Defaults()
	if sf.configPath != "" {
		loaded, err := config.Load(sf.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if sf.token != "" {
		cfg.GitHub.Token = sf.token
	}
	if sf.secret != "" {
		cfg.Webhook.Secret = sf.secret
	}
	if sf.port != 0 {
		host := "0.0.0.0"
		if h, _, err := net.SplitHostPort(cfg.Webhook.Listen); err == nil && h != "" {
			host = h
		}
		cfg.Webhook.Listen = net.JoinHostPort(host, strconv.Itoa(sf.port))
	}
	if sf.command != "" {
		cfg.Command.Name = sf.command
		cfg.Command.Args = nil
	}
	if len(sf.args) > 0 {
		cfg.Command.Args = sf.args
	}
	if sf.logLevel != "" {
		cfg.Service.LogLevel = sf.logLevel
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runStart(args []string) int {
	sf, err := parseStartFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage()
			return 0
		}
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := resolveConfig(sf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("smoked-tofu starting", "version", version, "config", sf.configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer a.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.webhook.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("webhook: %w", err)
		}
	}()
	logger.Info("webhook server enabled",
		"listen", cfg.Webhook.Listen,
		"path", cfg.Webhook.Path,
		"command", a.runner.String(),
		"check_name", cfg.GitHub.CheckName,
	)

	if a.api != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.api.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("smoked-tofu running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		wg.Wait()
		drainDeliveries(a.webhook, sigCh, logger)
		return 1
	}

	// Servers and in-flight deliveries finish before the deferred Close drops the database.
	wg.Wait()
	drainDeliveries(a.webhook, sigCh, logger)
	logger.Info("smoked-tofu stopped")
	return 0
}

// drainDeliveries waits for deliveries still running after the listener closed.
// A second signal stops the wait.
func drainDeliveries(srv *webhook.Server, sigCh <-chan os.Signal, logger *slog.Logger) {
	n := srv.InFlight()
	if n == 0 {
		return
	}
	logger.Info("waiting for in-flight deliveries (signal again to abort)", "in_flight", n)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := srv.Drain(ctx); err != nil {
		logger.Warn("shutdown cut deliveries short", "in_flight", srv.InFlight())
		return
	}
	logger.Info("in-flight deliveries finished")
}

// app holds the wired components of a running relay.
type app struct {
	hub     *events.Hub
	runner  *command.Runner
	db      *sql.DB
	store   *history.Store
	pidLock *lock.PIDLock
	webhook *webhook.Server
	api     *api.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{hub: events.NewHub(256)}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	if lockPath := getPIDLockPath(cfg); lockPath != "" {
		a.pidLock, err = lock.AcquirePIDLock(lockPath)
		if err != nil {
			return a, fmt.Errorf("acquire PID lock (another instance may be running): %w", err)
		}
		logger.Info("acquired PID lock", "path", lockPath)
	}

	if cfg.History.Path != "" {
		a.db, err = storage.OpenSQLite(ctx, cfg.History.Path)
		if err != nil {
			return a, fmt.Errorf("open history database %s: %w", cfg.History.Path, err)
		}
		a.store = history.NewStore(a.db)
		logger.Info("history database opened", "path", cfg.History.Path)

		if cfg.History.Retention > 0 {
			n, err := a.store.Prune(ctx, time.Now().Add(-cfg.History.Retention))
			if err != nil {
				logger.Warn("history prune failed", "error", err)
			} else if n > 0 {
				logger.Info("history pruned", "deliveries", n, "retention", cfg.History.Retention.String())
			}
		}
	}

	maxBody, err := config.ParseSize(cfg.Webhook.MaxBodySize)
	if err != nil {
		return a, fmt.Errorf("webhook.max_body_size: %w", err)
	}

	a.runner = command.New(cfg.Command.Name, cfg.Command.Args,
		command.WithTimeout(cfg.Command.Timeout),
		command.WithOutputLimit(cfg.Command.MaxOutputBytes),
	)
	client := checks.NewGitHub(cfg.GitHub.Token, checks.WithBaseURL(cfg.GitHub.APIURL))

	opts := []dispatch.Option{
		dispatch.WithLogger(log.WithComponent("dispatch")),
		dispatch.WithEvents(a.hub),
	}
	if a.store != nil {
		opts = append(opts, dispatch.WithRecorder(a.store))
	}
	disp := dispatch.New(client, a.runner, cfg.GitHub.CheckName, opts...)

	a.webhook = webhook.New(webhook.Config{
		Listen:          cfg.Webhook.Listen,
		Path:            cfg.Webhook.Path,
		Secret:          cfg.Webhook.Secret,
		SignatureHeader: cfg.Webhook.SignatureHeader,
		MaxBodySize:     maxBody,
	}, disp, log.WithComponent("webhook"))

	if cfg.API.Enabled {
		// A nil *history.Store must not become a non-nil interface.
		var reader api.HistoryReader
		if a.store != nil {
			reader = a.store
		}
		a.api = api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.APIKey,
		}, reader, a.hub, log.WithComponent("api"))
	}

	return a, nil
}

// Close releases the database and the PID lock.
func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
		a.db = nil
	}
	if a.pidLock != nil {
		_ = a.pidLock.Release()
		a.pidLock = nil
	}
}

func getPIDLockPath(cfg *config.Config) string {
	if cfg.Service.PIDFile != "" {
		return cfg.Service.PIDFile
	}
	if cfg.History.Path != "" {
		return lock.PathFor(cfg.History.Path)
	}
	return ""
}

// --- CONFIG NOUN ---

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	case "lock":
		return runConfigLock(actionArgs)
	case "get":
		return runConfigGet(actionArgs)
	case "set":
		return runConfigSet(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprint(w, `Config Commands:
  config check --config <path>   Validate syntax, integrity, command and history path
                                 (--json, --strict: exit 2 on warnings)
  config lock  --config <path>   Authorize current file contents (write .checksums)
  config get <path> [--json] [--reveal]
                                 Read a value, e.g. command.timeout (credentials masked)
  config set <path>=<value> (--dry-run | --apply)
                                 Edit one scalar value in the file
`)
}

func runConfigCheck(args []string) int {
	var configPath, format string
	var strict, jsonOut bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "config.yaml", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if jsonOut {
		format = "json"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	switch format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
		if result.Valid {
			runner := command.New(cfg.Command.Name, cfg.Command.Args)
			fmt.Printf("  webhook   %s%s\n", cfg.Webhook.Listen, cfg.Webhook.Path)
			fmt.Printf("  command   %s\n", runner.String())
			fmt.Printf("  check     %s via %s\n", cfg.GitHub.CheckName, cfg.GitHub.APIURL)
			if cfg.History.Path != "" {
				fmt.Printf("  history   %s\n", cfg.History.Path)
			}
			if cfg.API.Enabled {
				fmt.Printf("  api       %s\n", cfg.API.Listen)
			}
		}
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose bool
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "config.yaml", "Path to configuration")
	fs.BoolVar(&verbose, "v", false, "Verbose output")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if info, err := os.Stat(configPath); err == nil && info.IsDir() {
		configPath = configPath + string(os.PathSeparator) + "config.yaml"
	}

	manifest, err := config.Lock(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}
	if verbose {
		hash, _ := config.ComputeBlake3Hash(configPath)
		fmt.Printf("  HASH %s: %s\n", configPath, hash)
	}
	fmt.Printf("Successfully locked configuration: %s\n", manifest)
	return 0
}

func runConfigGet(args []string) int {
	var configPath string
	var jsonOut, reveal bool
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "config.yaml", "Path to configuration")
	fs.BoolVar(&jsonOut, "json", false, "Output in structured JSON format")
	fs.BoolVar(&reveal, "reveal", false, "Show credentials instead of masking them")
	positional, err := parseInterleaved(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positional) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: smoked-tofu config get <path> [--json] [--reveal]")
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if !reveal {
		cfg = cfg.Redacted()
	}

	val, err := cfg.GetPath(positional[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOut {
		data, err := json.MarshalIndent(val, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}
	if _, ok := val.(map[string]any); ok {
		data, _ := yaml.Marshal(val)
		fmt.Print(string(data))
		return 0
	}
	fmt.Printf("%v\n", val)
	return 0
}

func runConfigSet(args []string) int {
	var configPath string
	var dryRun, apply bool
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "config.yaml", "Path to configuration")
	fs.BoolVar(&dryRun, "dry-run", false, "Print the edited file without writing it")
	fs.BoolVar(&apply, "apply", false, "Write the edited file")
	positional, err := parseInterleaved(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if len(positional) != 1 || !strings.Contains(positional[0], "=") {
		fmt.Fprintln(os.Stderr, "Usage: smoked-tofu config set <path>=<value> [--dry-run | --apply]")
		return 1
	}
	if dryRun == apply {
		fmt.Fprintln(os.Stderr, "Error: exactly one of --dry-run or --apply must be specified for 'config set'.")
		return 1
	}
	path, value, _ := strings.Cut(positional[0], "=")

	if info, err := os.Stat(configPath); err == nil && info.IsDir() {
		configPath = filepath.Join(configPath, "config.yaml")
	}

	if dryRun {
		original, err := os.ReadFile(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		candidate, err := config.EditValue(original, path, value)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Print(string(candidate))
		return 0
	}

	if err := config.SetFileValue(configPath, path, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("Set %s in %s\n", path, configPath)
	if manifest, err := config.LoadChecksums(filepath.Dir(configPath)); err == nil {
		if _, locked := manifest.Hashes[filepath.Base(configPath)]; locked {
			fmt.Println("Configuration is locked; run 'smoked-tofu config lock' to authorize the change.")
		}
	}
	return 0
}

// --- DELIVERY NOUN ---

func runDeliveryNoun(args []string) int {
	if len(args) < 1 {
		printDeliveryNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printDeliveryNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "list":
		return runDeliveryList(args[1:])
	case "inspect":
		return runDeliveryInspect(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown delivery action: %s\n", args[0])
		return 1
	}
}

func printDeliveryNounHelp(w *os.File) {
	fmt.Fprint(w, `Delivery Commands:
  delivery list [--limit N] --config <path>          Recent deliveries, newest first
  delivery inspect <id> [--json] --config <path>     Per-commit outcomes of one delivery
`)
}

// parseInterleaved parses flags that may appear before or after positional arguments.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

// openHistory opens the history database named by the config at configPath.
func openHistory(configPath string) (*history.Store, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.History.Path == "" {
		return nil, nil, fmt.Errorf("history.path is not set in %s", configPath)
	}
	db, err := storage.OpenSQLite(context.Background(), cfg.History.Path)
	if err != nil {
		return nil, nil, err
	}
	return history.NewStore(db), func() { _ = db.Close() }, nil
}

func runDeliveryList(args []string) int {
	var configPath string
	var limit int
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "config.yaml", "Path to configuration")
	fs.IntVar(&limit, "limit", 20, "Maximum deliveries to show")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	store, closeDB, err := openHistory(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open history: %v\n", err)
		return 1
	}
	defer closeDB()

	out, err := inspect.BuildList(context.Background(), store, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		return 1
	}
	fmt.Print(out)
	return 0
}

func runDeliveryInspect(args []string) int {
	var configPath string
	var jsonOut bool
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "config.yaml", "Path to configuration")
	fs.BoolVar(&jsonOut, "json", false, "Output report in JSON")

	positional, err := parseInterleaved(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positional) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: smoked-tofu delivery inspect <delivery_id> [--config PATH] [--json]\n")
		return 1
	}

	store, closeDB, err := openHistory(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open history: %v\n", err)
		return 1
	}
	defer closeDB()

	var report string
	if jsonOut {
		report, err = inspect.BuildJSONReport(context.Background(), store, positional[0])
	} else {
		report, err = inspect.BuildReport(context.Background(), store, positional[0])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Inspect failed: %v\n", err)
		return 1
	}

	fmt.Print(report)
	return 0
}

// --- WATCH ---

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Read api.listen and api.api_key from this configuration")
	apiURL := fs.String("api-url", "", "Ops API URL (default: http://127.0.0.1:8080)")
	apiKey := fs.String("api-key", os.Getenv("SMOKED_TOFU_API_KEY"), "API Bearer token")
	fs.Usage = func() { printWatchHelp(os.Stderr) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	url, key, err := resolveWatchTarget(*configPath, *apiURL, *apiKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	p := tea.NewProgram(watch.New(url, key), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

// resolveWatchTarget picks the ops API URL and key. Flags win over the config file.
func resolveWatchTarget(configPath, apiURL, apiKey string) (string, string, error) {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return "", "", err
		}
		if !cfg.API.Enabled {
			return "", "", fmt.Errorf("api is not enabled in %s", configPath)
		}
		if apiURL == "" {
			apiURL = "http://" + dialableAddr(cfg.API.Listen)
		}
		if apiKey == "" {
			apiKey = cfg.API.APIKey
		}
	}
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	return apiURL, apiKey, nil
}

// dialableAddr turns a wildcard listen address into a loopback one.
func dialableAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func printWatchHelp(w *os.File) {
	fmt.Fprint(w, `Usage: smoked-tofu watch [--config PATH] [--api-url URL] [--api-key KEY]

Live view of deliveries, commit outcomes and relay health, read from the
ops API event stream. The API must be enabled on the running relay.

Flags:
  --config PATH    Take api.listen and api.api_key from this configuration
  --api-url URL    Ops API URL (default: http://127.0.0.1:8080)
  --api-key KEY    API Bearer token (or SMOKED_TOFU_API_KEY env var)

Keybindings:
  q, Ctrl+C        Quit
  ↑/↓, k/j         Select delivery
`)
}
