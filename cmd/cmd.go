// Package cmd provides CLI command implementations for Pyxis.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/Benny93/pyxis-go/internal/config"
	"github.com/Benny93/pyxis-go/internal/search"
	"github.com/Benny93/pyxis-go/internal/session"
	"github.com/Benny93/pyxis-go/internal/source"
	"github.com/Benny93/pyxis-go/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

// IndexCmd builds the workspace index and refreshes the snapshot cache.
type IndexCmd struct {
	Path string `arg:"" optional:"" default:"." help:"Path to the workspace root"`
	Full bool   `help:"Discard the snapshot cache and rebuild every module"`
}

// Run executes the index command.
func (c *IndexCmd) Run() error {
	ctx := context.Background()
	root, err := filepath.Abs(c.Path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("accessing %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}

	if c.Full {
		if _, err := session.Clean(root); err != nil {
			return err
		}
	}

	color.Green("Indexing %s", root)

	start := time.Now()
	s, err := openSession(ctx, root)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	st, err := s.Status(ctx)
	if err != nil {
		return err
	}

	if err := writeMeta(root, st); err != nil {
		return err
	}

	color.Green("\n✓ Index complete")
	fmt.Printf("  Modules:      %d (%d excluded)\n", st.Modules, st.InvalidModules)
	fmt.Printf("  Files:        %d\n", st.Files)
	fmt.Printf("  Symbols:      %d\n", st.Symbols)
	fmt.Printf("  Models:       %d\n", st.Models)
	fmt.Printf("  Diagnostics:  %d\n", st.Diagnostics)
	fmt.Printf("  From cache:   %d module(s)\n", st.Restored)
	fmt.Printf("  From source:  %d module(s)\n", st.Built)
	fmt.Printf("  Duration:     %.2fs\n", time.Since(start).Seconds())

	return nil
}

// writeMeta records an index summary next to the cache so status can
// answer without opening a session.
func writeMeta(root string, st session.Status) error {
	meta := map[string]any{
		"version": Version,
		"name":    filepath.Base(root),
		"root":    root,
		"stats": map[string]any{
			"modules":  st.Modules,
			"excluded": st.InvalidModules,
			"files":    st.Files,
			"symbols":  st.Symbols,
			"models":   st.Models,
		},
		"indexed_at": time.Now().UTC().Format(time.RFC3339),
	}

	metaPath := filepath.Join(root, ".pyxis", "meta.json")
	if err := os.MkdirAll(filepath.Dir(metaPath), 0o755); err != nil {
		return fmt.Errorf("creating .pyxis directory: %w", err)
	}
	metaJSON, _ := json.MarshalIndent(meta, "", "  ")
	metaJSON = append(metaJSON, '\n')
	if err := os.WriteFile(metaPath, metaJSON, 0o644); err != nil {
		return fmt.Errorf("writing meta.json: %w", err)
	}
	return nil
}

// SymbolsCmd searches workspace symbols by fuzzy name match.
type SymbolsCmd struct {
	Query string `arg:"" help:"Search query"`
	Limit int    `short:"n" default:"20" help:"Maximum results"`
}

// Run executes the symbols command.
func (c *SymbolsCmd) Run() error {
	ctx := context.Background()
	s, err := openSession(ctx, ".")
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	results, err := s.WorkspaceSymbols(ctx, c.Query, c.Limit)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found")
		return nil
	}

	for i, r := range results {
		fmt.Printf("\n%d. %s (%s)\n", i+1, r.Name, r.Kind)
		fmt.Printf("   File: %s\n", relPath(s.Root(), r.Path))
	}

	return nil
}

// DefinitionCmd resolves the definition behind a source position.
type DefinitionCmd struct {
	Position string `arg:"" help:"Source position as file:line:column (one-based)"`
}

// Run executes the definition command.
func (c *DefinitionCmd) Run() error {
	ctx := context.Background()
	s, err := openSession(ctx, ".")
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	path, offset, err := resolveOffset(ctx, s, c.Position)
	if err != nil {
		return err
	}

	locs, err := s.Definition(ctx, path, offset)
	if err != nil {
		return err
	}
	if len(locs) == 0 {
		fmt.Println("No definition found")
		return nil
	}

	for _, loc := range locs {
		fmt.Printf("%s (%s)\n", loc.Name, loc.Kind)
		fmt.Printf("  %s\n", formatLocation(s.Root(), loc))
	}

	return nil
}

// ReferencesCmd lists every reference to the symbol at a position.
type ReferencesCmd struct {
	Position string `arg:"" help:"Source position as file:line:column (one-based)"`
}

// Run executes the references command.
func (c *ReferencesCmd) Run() error {
	ctx := context.Background()
	s, err := openSession(ctx, ".")
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	path, offset, err := resolveOffset(ctx, s, c.Position)
	if err != nil {
		return err
	}

	locs, err := s.References(ctx, path, offset)
	if err != nil {
		return err
	}
	if len(locs) == 0 {
		fmt.Println("No references found")
		return nil
	}

	fmt.Printf("Found %d reference(s):\n", len(locs))
	for _, loc := range locs {
		fmt.Printf("  %s\n", formatLocation(s.Root(), loc))
	}

	return nil
}

// HoverCmd describes the symbol at a position.
type HoverCmd struct {
	Position string `arg:"" help:"Source position as file:line:column (one-based)"`
}

// Run executes the hover command.
func (c *HoverCmd) Run() error {
	ctx := context.Background()
	s, err := openSession(ctx, ".")
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	path, offset, err := resolveOffset(ctx, s, c.Position)
	if err != nil {
		return err
	}

	info, err := s.Hover(ctx, path, offset)
	if err != nil {
		return err
	}
	if info == nil {
		fmt.Println("Nothing resolves at this position")
		return nil
	}

	fmt.Printf("%s (%s)\n", info.Name, info.Kind)
	if info.Qualified != "" {
		fmt.Printf("  Qualified: %s\n", info.Qualified)
	}
	if info.Doc != "" {
		fmt.Printf("\n%s\n", info.Doc)
	}

	return nil
}

// DiagnosticsCmd prints workspace diagnostics.
type DiagnosticsCmd struct {
	Path string `arg:"" optional:"" help:"Limit output to one file"`
}

// Run executes the diagnostics command.
func (c *DiagnosticsCmd) Run() error {
	ctx := context.Background()
	s, err := openSession(ctx, ".")
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	var path string
	if c.Path != "" {
		path = workspaceFile(s.Root(), c.Path)
	}

	files, err := s.Diagnostics(ctx, path)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		color.Green("No diagnostics, the workspace is clean")
		return nil
	}

	total := 0
	for _, fd := range files {
		fmt.Printf("\n%s\n", relPath(s.Root(), fd.Path))
		for _, item := range fd.Items {
			total++
			line := fmt.Sprintf("  %d:%d  %-8s %s  %s",
				item.Range.Start.Line+1, item.Range.Start.Character+1,
				item.Severity, item.Code, item.Message)
			switch item.Severity {
			case "error":
				color.Red("%s", line)
			case "warning":
				color.Yellow("%s", line)
			default:
				fmt.Println(line)
			}
		}
	}
	fmt.Printf("\n%d finding(s) in %d file(s)\n", total, len(files))

	return nil
}

// ModulesCmd shows the computed module load order.
type ModulesCmd struct{}

// Run executes the modules command.
func (c *ModulesCmd) Run() error {
	ctx := context.Background()
	s, err := openSession(ctx, ".")
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	infos, err := s.Modules(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No modules found")
		return nil
	}

	var excluded []session.ModuleInfo
	fmt.Println("Module load order:")
	n := 0
	for _, info := range infos {
		if !info.Valid {
			excluded = append(excluded, info)
			continue
		}
		n++
		fmt.Printf("  %2d. %s", n, info.Name)
		if len(info.Depends) > 0 {
			fmt.Printf("  (depends: %s)", strings.Join(info.Depends, ", "))
		}
		fmt.Println()
	}

	if len(excluded) > 0 {
		fmt.Println("\nExcluded:")
		for _, info := range excluded {
			color.Yellow("  %s: missing dependencies or an invalid manifest", info.Name)
		}
	}

	return nil
}

// WatchCmd keeps the index fresh while files change.
type WatchCmd struct {
	Path string `arg:"" optional:"" default:"." help:"Path to the workspace root"`
}

// Run executes the watch command.
func (c *WatchCmd) Run() error {
	root, err := filepath.Abs(c.Path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle Ctrl+C
	go func() {
		<-osSignalChannel()
		fmt.Println("\nStopping watch mode...")
		cancel()
	}()

	s, err := openSession(ctx, root)
	if err != nil {
		return err
	}
	handle := &sessionHandle{s: s}
	defer func() { _ = handle.close() }()

	fmt.Printf("Watching %s for changes (Ctrl+C to stop)\n\n", root)

	err = handle.watch(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch error: %w", err)
	}

	fmt.Println("Watch mode stopped.")
	return nil
}

// ServeCmd starts the MCP server on stdio.
type ServeCmd struct {
	Path  string `arg:"" optional:"" default:"." help:"Path to the workspace root"`
	Watch bool   `short:"w" help:"Enable file watching"`
}

// Run executes the serve command.
func (c *ServeCmd) Run() error {
	ctx := context.Background()
	root, err := filepath.Abs(c.Path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	s, err := openSession(ctx, root)
	if err != nil {
		return err
	}
	handle := &sessionHandle{s: s}
	defer func() { _ = handle.close() }()

	server := mcp.NewServer(handle)

	// Note: No output to stdout - the MCP server uses stdio for JSON-RPC only
	if c.Watch {
		fmt.Fprintln(os.Stderr, "Starting MCP server with watch mode...")

		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		go func() {
			if err := handle.watch(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
				fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)
			}
		}()
	} else {
		fmt.Fprintln(os.Stderr, "Starting MCP server...")
	}

	return server.Run(ctx, os.Stdin, os.Stdout)
}

// sessionHandle hands a stable query backend to long-running servers
// while the session behind it may be torn down and rebuilt whenever
// the change volume forces a restart.
type sessionHandle struct {
	mu sync.RWMutex
	s  *session.Session
}

func (h *sessionHandle) current() *session.Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.s
}

func (h *sessionHandle) swap(next *session.Session) *session.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.s
	h.s = next
	return old
}

func (h *sessionHandle) close() error {
	return h.current().Close()
}

// watch runs the rebuild loop, replacing the session with a freshly
// initialized one each time it gives up on incremental rebuilding.
func (h *sessionHandle) watch(ctx context.Context) error {
	for {
		err := h.current().Watch(ctx)
		if !errors.Is(err, session.ErrRestart) {
			return err
		}
		fmt.Fprintln(os.Stderr, "Module set changed, reloading workspace...")

		next, err := openSession(ctx, h.current().Root())
		if err != nil {
			return err
		}
		if old := h.swap(next); old != nil {
			_ = old.Close()
		}
	}
}

func (h *sessionHandle) Root() string {
	return h.current().Root()
}

func (h *sessionHandle) OffsetAt(ctx context.Context, path string, pos source.Position) (int, error) {
	return h.current().OffsetAt(ctx, path, pos)
}

func (h *sessionHandle) Definition(ctx context.Context, path string, offset int) ([]session.Location, error) {
	return h.current().Definition(ctx, path, offset)
}

func (h *sessionHandle) References(ctx context.Context, path string, offset int) ([]session.Location, error) {
	return h.current().References(ctx, path, offset)
}

func (h *sessionHandle) WorkspaceSymbols(ctx context.Context, query string, limit int) ([]search.Result, error) {
	return h.current().WorkspaceSymbols(ctx, query, limit)
}

func (h *sessionHandle) Hover(ctx context.Context, path string, offset int) (*session.HoverInfo, error) {
	return h.current().Hover(ctx, path, offset)
}

func (h *sessionHandle) Diagnostics(ctx context.Context, path string) ([]session.FileDiagnostics, error) {
	return h.current().Diagnostics(ctx, path)
}

func (h *sessionHandle) Modules(ctx context.Context) ([]session.ModuleInfo, error) {
	return h.current().Modules(ctx)
}

func (h *sessionHandle) Status(ctx context.Context) (session.Status, error) {
	return h.current().Status(ctx)
}

// SetupCmd configures MCP for various AI clients.
type SetupCmd struct {
	Qwen     bool   `help:"Configure for Qwen CLI"`
	Claude   bool   `help:"Configure for Claude Code"`
	Cursor   bool   `help:"Configure for Cursor"`
	Local    bool   `help:"Create project-local configuration"`
	Global   bool   `help:"Create global configuration"`
	Format   string `help:"Output format (json|text)" enum:"json,text" default:"json"`
	FilePath string `help:"Custom base path for configuration"`
}

// Run executes the setup command.
func (c *SetupCmd) Run() error {
	if c.Format != "json" && c.Format != "text" {
		return fmt.Errorf("invalid format: %s (must be json or text)", c.Format)
	}

	// If no specific client is specified, output config to stdout
	if !c.Qwen && !c.Claude && !c.Cursor {
		return c.outputDefaultConfig()
	}

	// If neither local nor global is specified, default to local
	if !c.Local && !c.Global {
		c.Local = true
	}

	if c.Qwen {
		if err := c.setupClient("qwen", "Qwen"); err != nil {
			return err
		}
	}
	if c.Claude {
		if err := c.setupClient("claude", "Claude"); err != nil {
			return err
		}
	}
	if c.Cursor {
		if err := c.setupClient("cursor", "Cursor"); err != nil {
			return err
		}
	}

	return nil
}

func (c *SetupCmd) outputDefaultConfig() error {
	config := generateServerConfig()

	if c.Format == "json" {
		jsonBytes, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Println("# Add this to your MCP client configuration:")
		fmt.Println()
		for key, value := range config {
			fmt.Printf("%s: %s\n", key, toJSON(value))
		}
	}

	return nil
}

func (c *SetupCmd) setupClient(client, label string) error {
	config := generateServerConfig()

	if c.Global {
		globalPath := getGlobalConfigPath(client)
		if err := writeConfig(globalPath, config, c.Format); err != nil {
			return err
		}
		color.Green("✓ Created global %s MCP config at %s", label, globalPath)
	}

	if c.Local {
		base := "."
		if c.FilePath != "" {
			base = c.FilePath
		}
		localPath := getLocalConfigPath(base, client)
		if err := writeConfig(localPath, config, c.Format); err != nil {
			return err
		}
		color.Green("✓ Created local %s MCP config at %s", label, localPath)
	}

	return nil
}

// generateServerConfig is the MCP server block every client understands.
func generateServerConfig() map[string]any {
	return map[string]any{
		"mcpServers": map[string]any{
			"pyxis-go": map[string]any{
				"command": "pyxis-go",
				"args":    []string{"serve", "--watch"},
			},
		},
	}
}

// Path helpers

func getLocalConfigPath(basePath, client string) string {
	configDir := getClientConfigDir(client)
	return filepath.Join(basePath, configDir, "mcp.json")
}

func getGlobalConfigPath(client string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
	}

	configDir := getClientConfigDir(client)
	return filepath.Join(homeDir, configDir, "global", "mcp.json")
}

func getClientConfigDir(client string) string {
	switch client {
	case "qwen":
		return ".qwen"
	case "claude":
		return ".claude"
	case "cursor":
		return ".cursor"
	default:
		return ".qwen"
	}
}

// Config writers

func writeConfig(configPath string, config map[string]any, format string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	var content []byte
	var err error

	if format == "json" {
		content, err = json.MarshalIndent(config, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		content = append(content, '\n')
	} else {
		var sb strings.Builder
		sb.WriteString("# MCP Configuration for Pyxis\n")
		sb.WriteString("# Generated by pyxis setup\n\n")

		for key, value := range config {
			sb.WriteString(fmt.Sprintf("%s: %s\n", key, toJSON(value)))
		}
		content = []byte(sb.String())
	}

	if err := os.WriteFile(configPath, content, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// StatusCmd shows index status for the current workspace.
type StatusCmd struct{}

// Run executes the status command.
func (c *StatusCmd) Run() error {
	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	metaPath := filepath.Join(root, ".pyxis", "meta.json")
	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no index found at %s. Run 'pyxis index' first", root)
		}
		return fmt.Errorf("reading meta.json: %w", err)
	}

	var meta map[string]any
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return fmt.Errorf("parsing meta.json: %w", err)
	}

	fmt.Printf("Index status for %s\n", root)
	if version, ok := meta["version"].(string); ok {
		fmt.Printf("  Version:        %s\n", version)
	}
	if indexedAt, ok := meta["indexed_at"].(string); ok {
		fmt.Printf("  Last indexed:   %s\n", indexedAt)
	}
	if stats, ok := meta["stats"].(map[string]any); ok {
		if modules, ok := stats["modules"].(float64); ok {
			fmt.Printf("  Modules:        %.0f\n", modules)
		}
		if excluded, ok := stats["excluded"].(float64); ok && excluded > 0 {
			fmt.Printf("  Excluded:       %.0f\n", excluded)
		}
		if files, ok := stats["files"].(float64); ok {
			fmt.Printf("  Files:          %.0f\n", files)
		}
		if symbols, ok := stats["symbols"].(float64); ok {
			fmt.Printf("  Symbols:        %.0f\n", symbols)
		}
		if models, ok := stats["models"].(float64); ok {
			fmt.Printf("  Models:         %.0f\n", models)
		}
	}

	return nil
}

// CleanCmd deletes the snapshot cache for a workspace.
type CleanCmd struct {
	Path  string `arg:"" optional:"" default:"." help:"Path to the workspace root"`
	Force bool   `short:"f" help:"Skip confirmation"`
}

// Run executes the clean command.
func (c *CleanCmd) Run() error {
	root, err := filepath.Abs(c.Path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	cacheDir := cfg.CachePath()
	if _, err := os.Stat(cacheDir); os.IsNotExist(err) {
		return fmt.Errorf("no cache found at %s. Nothing to clean", root)
	}

	if !c.Force {
		fmt.Printf("Delete cache at %s? [y/N] ", cacheDir)
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted")
			return nil
		}
	}

	path, err := session.Clean(root)
	if err != nil {
		return err
	}
	_ = os.Remove(filepath.Join(root, ".pyxis", "meta.json"))

	color.Green("Deleted %s", path)
	return nil
}

// Helper functions

// osSignalChannel returns a channel that receives OS signals for graceful shutdown.
func osSignalChannel() <-chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sigChan
}

// logLevel is set from the global verbosity flags before any command runs.
var logLevel = slog.LevelWarn

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// openSession builds a live session for the workspace at path. The
// caller owns the returned session and must close it.
func openSession(ctx context.Context, path string) (*session.Session, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("accessing %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	s, err := session.New(newLogger(), root, session.Options{ToolVersion: Version})
	if err != nil {
		return nil, err
	}
	if err := s.Initialize(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("initializing workspace: %w", err)
	}
	return s, nil
}

// parsePosition splits a file:line:column argument. Line and column
// are one-based, the way editors display them.
func parsePosition(arg string) (string, int, int, error) {
	i := strings.LastIndex(arg, ":")
	if i <= 0 {
		return "", 0, 0, fmt.Errorf("invalid position %q, want file:line:column", arg)
	}
	column, err := strconv.Atoi(arg[i+1:])
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid column in %q: %w", arg, err)
	}
	j := strings.LastIndex(arg[:i], ":")
	if j <= 0 {
		return "", 0, 0, fmt.Errorf("invalid position %q, want file:line:column", arg)
	}
	line, err := strconv.Atoi(arg[j+1 : i])
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid line in %q: %w", arg, err)
	}
	if line < 1 || column < 1 {
		return "", 0, 0, fmt.Errorf("line and column are one-based in %q", arg)
	}
	return arg[:j], line, column, nil
}

// resolveOffset turns a file:line:column argument into a tracked path
// and byte offset in the session's position encoding.
func resolveOffset(ctx context.Context, s *session.Session, arg string) (string, int, error) {
	file, line, column, err := parsePosition(arg)
	if err != nil {
		return "", 0, err
	}
	path := workspaceFile(s.Root(), file)
	offset, err := s.OffsetAt(ctx, path, source.Position{Line: line - 1, Character: column - 1})
	if err != nil {
		return "", 0, err
	}
	return path, offset, nil
}

// workspaceFile resolves a user-supplied file argument against the
// workspace root.
func workspaceFile(root, file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(root, filepath.FromSlash(file))
}

// relPath shortens a workspace path for display.
func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

// formatLocation renders a location as path:line:column, one-based.
func formatLocation(root string, loc session.Location) string {
	return fmt.Sprintf("%s:%d:%d", relPath(root, loc.Path),
		loc.Range.Start.Line+1, loc.Range.Start.Character+1)
}

func toJSON(v any) string {
	bytes, _ := json.Marshal(v)
	return string(bytes)
}

// CLI is the root Kong command structure.
type CLI struct {
	Version kong.VersionFlag `help:"Show version information"`
	Verbose bool             `short:"v" help:"Enable verbose output"`
	Quiet   bool             `short:"q" help:"Suppress non-essential output"`

	// Commands
	Index       IndexCmd       `cmd:"" help:"Build the workspace index"`
	Symbols     SymbolsCmd     `cmd:"" help:"Search workspace symbols"`
	Definition  DefinitionCmd  `cmd:"" help:"Find the definition behind a source position"`
	References  ReferencesCmd  `cmd:"" help:"List every reference to the symbol at a position"`
	Hover       HoverCmd       `cmd:"" help:"Describe the symbol at a position"`
	Diagnostics DiagnosticsCmd `cmd:"" help:"Print workspace diagnostics"`
	Modules     ModulesCmd     `cmd:"" help:"Show the module load order"`
	Watch       WatchCmd       `cmd:"" help:"Keep the index fresh while files change"`
	Serve       ServeCmd       `cmd:"" help:"Start the MCP server (stdio transport)"`
	Setup       SetupCmd       `cmd:"" help:"Configure MCP for Claude Code / Cursor"`
	Status      StatusCmd      `cmd:"" help:"Show index status for the current workspace"`
	Clean       CleanCmd       `cmd:"" help:"Delete the snapshot cache"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	kongCtx := kong.Parse(c,
		kong.Name("pyxis-go"),
		kong.Description("Incremental code intelligence for Odoo-style Python workspaces"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)

	switch {
	case c.Verbose:
		logLevel = slog.LevelDebug
	case c.Quiet:
		logLevel = slog.LevelError
	}

	return kongCtx.Run()
}
