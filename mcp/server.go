// Package mcp exposes the pyxis workspace queries over the Model
// Context Protocol, so coding agents can navigate Odoo-style Python
// modules without an editor attached.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Benny93/pyxis-go/internal/search"
	"github.com/Benny93/pyxis-go/internal/session"
	"github.com/Benny93/pyxis-go/internal/source"
)

const serverName = "pyxis-go"
const serverVersion = "0.1.0"

// QueryBackend is the slice of the session the server needs. Line and
// column arguments are converted through OffsetAt, so the backend owns
// the position encoding.
type QueryBackend interface {
	Root() string
	OffsetAt(ctx context.Context, path string, pos source.Position) (int, error)
	Definition(ctx context.Context, path string, offset int) ([]session.Location, error)
	References(ctx context.Context, path string, offset int) ([]session.Location, error)
	WorkspaceSymbols(ctx context.Context, query string, limit int) ([]search.Result, error)
	Hover(ctx context.Context, path string, offset int) (*session.HoverInfo, error)
	Diagnostics(ctx context.Context, path string) ([]session.FileDiagnostics, error)
	Modules(ctx context.Context) ([]session.ModuleInfo, error)
	Status(ctx context.Context) (session.Status, error)
}

// Server answers MCP requests against one workspace session.
type Server struct {
	backend QueryBackend
	server  *mcp.Server
}

// Tool describes one callable tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource describes one readable resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// NewServer creates an MCP server over the given backend.
func NewServer(backend QueryBackend) *Server {
	s := &Server{backend: backend}
	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)
	return s
}

// positionSchema is the shared input shape of the position-based tools.
func positionSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"file":   {Type: "string", Description: "File path, absolute or relative to the workspace root"},
			"line":   {Type: "integer", Description: "One-based line number"},
			"column": {Type: "integer", Description: "One-based column number"},
		},
		Required: []string{"file", "line", "column"},
	}
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []Tool {
	return []Tool{
		{
			Name:        "pyxis_symbols",
			Description: "Search classes, functions and declared model names across the workspace. Returns ranked matches.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {Type: "string", Description: "Search query; terms match names by prefix, substring or subsequence"},
					"limit": {Type: "integer", Description: "Maximum number of results"},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "pyxis_definition",
			Description: "Go to definition: resolve the symbol at a file position and return where it is declared.",
			InputSchema: positionSchema(),
		},
		{
			Name:        "pyxis_references",
			Description: "Find every use of the symbol at a file position across the workspace, the declaration included.",
			InputSchema: positionSchema(),
		},
		{
			Name:        "pyxis_hover",
			Description: "Describe the symbol at a file position: kind, qualified name and docstring.",
			InputSchema: positionSchema(),
		},
		{
			Name:        "pyxis_diagnostics",
			Description: "List the current diagnostics of one file, or of the whole workspace when no file is given.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"file": {Type: "string", Description: "Optional file path to restrict the report to"},
				},
			},
		},
		{
			Name:        "pyxis_modules",
			Description: "Report the module dependency load order and any modules excluded from it.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{},
			},
		},
		{
			Name:        "pyxis_status",
			Description: "Summarize the indexed workspace: module, file, symbol and diagnostic counts.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{},
			},
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         "pyxis://overview",
			Name:        "Workspace Overview",
			Description: "High-level statistics about the indexed workspace",
			MimeType:    "text/plain",
		},
		{
			URI:         "pyxis://modules",
			Name:        "Module Load Order",
			Description: "Dependency-sorted module list with excluded modules",
			MimeType:    "text/plain",
		},
		{
			URI:         "pyxis://schema",
			Name:        "Symbol Graph Schema",
			Description: "Description of the pyxis symbol graph, build stages and diagnostic codes",
			MimeType:    "text/plain",
		},
	}
}

// CallTool executes a tool with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	file, _ := args["file"].(string)
	line := intArg(args, "line", 0)
	column := intArg(args, "column", 0)

	switch name {
	case "pyxis_symbols":
		query, _ := args["query"].(string)
		return handleSymbols(ctx, s.backend, query, intArg(args, "limit", 20))
	case "pyxis_definition":
		return handleDefinition(ctx, s.backend, file, line, column)
	case "pyxis_references":
		return handleReferences(ctx, s.backend, file, line, column)
	case "pyxis_hover":
		return handleHover(ctx, s.backend, file, line, column)
	case "pyxis_diagnostics":
		return handleDiagnostics(ctx, s.backend, file)
	case "pyxis_modules":
		return handleModules(ctx, s.backend)
	case "pyxis_status":
		return handleStatus(ctx, s.backend)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "pyxis://overview":
		return getOverview(ctx, s.backend)
	case "pyxis://modules":
		return handleModules(ctx, s.backend)
	case "pyxis://schema":
		return getSchema(), nil
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

// Run serves the MCP protocol over stdio until EOF or ctx ends.
// Messages are newline-delimited compact JSON, one per line.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if stdin == nil || stdout == nil {
		return fmt.Errorf("stdin and stdout must not be nil")
	}

	reader := bufio.NewReader(stdin)
	encoder := json.NewEncoder(stdout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var req map[string]any
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}

		resp := s.handleRequest(ctx, req)
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req map[string]any) map[string]any {
	method, _ := req["method"].(string)
	id := req["id"]

	switch method {
	case "initialize":
		return s.handleInitialize(id)
	case "tools/list":
		return s.handleToolsList(id)
	case "tools/call":
		return s.handleToolsCall(ctx, id, req)
	case "resources/list":
		return s.handleResourcesList(id)
	case "resources/read":
		return s.handleResourcesRead(ctx, id, req)
	default:
		return errorResponse(id, -32601, "Method not found: "+method)
	}
}

func (s *Server) handleInitialize(id any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo": map[string]any{
				"name":    serverName,
				"version": serverVersion,
			},
			"capabilities": map[string]any{
				"tools": map[string]any{
					"listChanged": false,
				},
				"resources": map[string]any{
					"listChanged": false,
				},
			},
		},
	}
}

func (s *Server) handleToolsList(id any) map[string]any {
	tools := s.ListTools()
	toolList := make([]map[string]any, len(tools))
	for i, tool := range tools {
		schema, _ := json.Marshal(tool.InputSchema)
		var schemaMap map[string]any
		json.Unmarshal(schema, &schemaMap)

		toolList[i] = map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": schemaMap,
		}
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"tools": toolList,
		},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	name, _ := params["name"].(string)
	args, _ := params["arguments"].(map[string]any)

	result, err := s.CallTool(ctx, name, args)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"content": []map[string]any{
				{
					"type": "text",
					"text": result,
				},
			},
		},
	}
}

func (s *Server) handleResourcesList(id any) map[string]any {
	resources := s.ListResources()
	resourceList := make([]map[string]any, len(resources))
	for i, res := range resources {
		resourceList[i] = map[string]any{
			"uri":         res.URI,
			"name":        res.Name,
			"description": res.Description,
			"mimeType":    res.MimeType,
		}
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"resources": resourceList,
		},
	}
}

func (s *Server) handleResourcesRead(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	uri, _ := params["uri"].(string)

	content, err := s.ReadResource(ctx, uri)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"contents": []map[string]any{
				{
					"uri":      uri,
					"mimeType": "text/plain",
					"text":     content,
				},
			},
		},
	}
}

// Tool handlers

func handleSymbols(ctx context.Context, backend QueryBackend, query string, limit int) (string, error) {
	if query == "" {
		return "No query provided", nil
	}

	results, err := backend.WorkspaceSymbols(ctx, query, limit)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("No symbols match '%s'.", query), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d symbols for '%s':\n\n", len(results), query))
	for i, r := range results {
		sb.WriteString(fmt.Sprintf("%d. **%s** (%s)\n", i+1, r.Name, r.Kind))
		sb.WriteString(fmt.Sprintf("   File: %s\n", displayPath(backend, r.Path)))
	}
	sb.WriteString("\nNext: Use `pyxis_definition` with a file position to jump to a declaration.")

	return sb.String(), nil
}

func handleDefinition(ctx context.Context, backend QueryBackend, file string, line, column int) (string, error) {
	path, offset, msg := resolvePosition(ctx, backend, file, line, column)
	if msg != "" {
		return msg, nil
	}

	locs, err := backend.Definition(ctx, path, offset)
	if err != nil {
		return "", err
	}
	if len(locs) == 0 {
		return "No definition found at this position.", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d definition(s):\n\n", len(locs)))
	for i, loc := range locs {
		sb.WriteString(fmt.Sprintf("%d. **%s** (%s)\n", i+1, loc.Name, loc.Kind))
		sb.WriteString(fmt.Sprintf("   %s\n", formatLocation(backend, loc)))
	}
	sb.WriteString("\nNext: Use `pyxis_references` to see every use of this symbol.")

	return sb.String(), nil
}

func handleReferences(ctx context.Context, backend QueryBackend, file string, line, column int) (string, error) {
	path, offset, msg := resolvePosition(ctx, backend, file, line, column)
	if msg != "" {
		return msg, nil
	}

	locs, err := backend.References(ctx, path, offset)
	if err != nil {
		return "", err
	}
	if len(locs) == 0 {
		return "No references found at this position.", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d reference(s):\n\n", len(locs)))
	for _, loc := range locs {
		sb.WriteString(fmt.Sprintf("- %s\n", formatLocation(backend, loc)))
	}
	sb.WriteString("\nNext: Use `pyxis_hover` on any location for symbol details.")

	return sb.String(), nil
}

func handleHover(ctx context.Context, backend QueryBackend, file string, line, column int) (string, error) {
	path, offset, msg := resolvePosition(ctx, backend, file, line, column)
	if msg != "" {
		return msg, nil
	}

	info, err := backend.Hover(ctx, path, offset)
	if err != nil {
		return "", err
	}
	if info == nil {
		return "Nothing resolves at this position.", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**%s** (%s)\n", info.Name, info.Kind))
	if info.Qualified != "" {
		sb.WriteString(fmt.Sprintf("Qualified name: `%s`\n", info.Qualified))
	}
	if info.Doc != "" {
		sb.WriteString("\n" + info.Doc + "\n")
	}

	return sb.String(), nil
}

func handleDiagnostics(ctx context.Context, backend QueryBackend, file string) (string, error) {
	path := ""
	if file != "" {
		path = workspacePath(backend, file)
	}

	files, err := backend.Diagnostics(ctx, path)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		if file != "" {
			return fmt.Sprintf("No diagnostics in %s.", file), nil
		}
		return "No diagnostics. The workspace is clean.", nil
	}

	total := 0
	for _, fd := range files {
		total += len(fd.Items)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Diagnostics (%d)\n\n", total))
	for _, fd := range files {
		sb.WriteString(fmt.Sprintf("### %s (%d)\n", displayPath(backend, fd.Path), len(fd.Items)))
		for _, item := range fd.Items {
			sb.WriteString(fmt.Sprintf("- [%s] `%s` at %d:%d: %s\n",
				item.Severity, item.Code,
				item.Range.Start.Line+1, item.Range.Start.Character+1,
				item.Message))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Tip: A trailing `# noqa` comment suppresses a finding in place.")

	return sb.String(), nil
}

func handleModules(ctx context.Context, backend QueryBackend) (string, error) {
	infos, err := backend.Modules(ctx)
	if err != nil {
		return "", err
	}
	if len(infos) == 0 {
		return "No modules found in the workspace.", nil
	}

	var invalid []session.ModuleInfo
	var sb strings.Builder
	sb.WriteString("## Module Load Order\n\n")
	n := 0
	for _, info := range infos {
		if !info.Valid {
			invalid = append(invalid, info)
			continue
		}
		n++
		sb.WriteString(fmt.Sprintf("%d. **%s**", n, info.Name))
		if len(info.Depends) > 0 {
			sb.WriteString(fmt.Sprintf(" (depends: %s)", strings.Join(info.Depends, ", ")))
		}
		sb.WriteString("\n")
	}
	if len(invalid) > 0 {
		sb.WriteString("\n## Excluded Modules\n\n")
		for _, info := range invalid {
			sb.WriteString(fmt.Sprintf("- **%s**: missing dependencies or an invalid manifest\n", info.Name))
		}
	}

	return sb.String(), nil
}

func handleStatus(ctx context.Context, backend QueryBackend) (string, error) {
	st, err := backend.Status(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("## Workspace Status\n\n")
	sb.WriteString(fmt.Sprintf("**Root:** %s\n", st.Root))
	sb.WriteString(fmt.Sprintf("**Modules:** %d (%d excluded)\n", st.Modules, st.InvalidModules))
	sb.WriteString(fmt.Sprintf("**Files:** %d\n", st.Files))
	sb.WriteString(fmt.Sprintf("**Symbols:** %d\n", st.Symbols))
	sb.WriteString(fmt.Sprintf("**Models:** %d\n", st.Models))
	sb.WriteString(fmt.Sprintf("**Diagnostics:** %d\n", st.Diagnostics))
	sb.WriteString(fmt.Sprintf("**Pending rebuilds:** %d\n", st.PendingRebuilds))
	sb.WriteString(fmt.Sprintf("\nStartup restored %d module(s) from cache and built %d from source.\n",
		st.Restored, st.Built))

	return sb.String(), nil
}

// Resource handlers

func getOverview(ctx context.Context, backend QueryBackend) (string, error) {
	st, err := backend.Status(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("# Pyxis Workspace Overview\n\n")
	sb.WriteString(fmt.Sprintf("**Root:** %s\n", st.Root))
	sb.WriteString(fmt.Sprintf("**Modules:** %d\n", st.Modules))
	sb.WriteString(fmt.Sprintf("**Files:** %d\n", st.Files))
	sb.WriteString(fmt.Sprintf("**Symbols:** %d\n", st.Symbols))
	sb.WriteString(fmt.Sprintf("**Declared models:** %d\n", st.Models))
	sb.WriteString("\n## Symbol Kinds\n\n")
	sb.WriteString("- package: Module or subpackage directory\n")
	sb.WriteString("- file: Python source file\n")
	sb.WriteString("- class: Class definition, with its declared model name if any\n")
	sb.WriteString("- function: Function or method definition\n")
	sb.WriteString("- variable: Assignment or import binding\n")

	return sb.String(), nil
}

func getSchema() string {
	var sb strings.Builder
	sb.WriteString("# Pyxis Symbol Graph Schema\n\n")
	sb.WriteString("## Symbol Kinds\n\n")
	sb.WriteString("| Kind | Description | Key Properties |\n")
	sb.WriteString("|------|-------------|----------------|\n")
	sb.WriteString("| `package` | Module or subpackage directory | name, paths |\n")
	sb.WriteString("| `file` | Python source file | name, path, content hash |\n")
	sb.WriteString("| `class` | Class definition | name, bases, model name |\n")
	sb.WriteString("| `function` | Function or method | name, parameters |\n")
	sb.WriteString("| `variable` | Assignment or import binding | name, evaluation targets |\n")
	sb.WriteString("\n## Build Stages\n\n")
	sb.WriteString("| Stage | Produces |\n")
	sb.WriteString("|-------|----------|\n")
	sb.WriteString("| `syntax` | Parse tree and syntax errors |\n")
	sb.WriteString("| `arch` | Declaration symbols of a file |\n")
	sb.WriteString("| `arch_eval` | Import links and evaluation targets |\n")
	sb.WriteString("| `validation` | Reference diagnostics |\n")
	sb.WriteString("\n## Diagnostic Codes\n\n")
	sb.WriteString("| Code | Meaning |\n")
	sb.WriteString("|------|--------|\n")
	sb.WriteString("| `syntax-error` | The file does not parse |\n")
	sb.WriteString("| `undefined-name` | A name resolves to nothing in scope |\n")
	sb.WriteString("| `unresolved-import` | An import target is not in the workspace |\n")
	sb.WriteString("| `invalid-manifest` | The module manifest does not evaluate |\n")
	sb.WriteString("| `base-class-not-found` | A base class cannot be resolved |\n")
	sb.WriteString("| `unknown-model` | A model name no module declares |\n")

	return sb.String()
}

// Helpers

// intArg reads a numeric argument. JSON numbers arrive as float64;
// callers in tests pass ints.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		if v != 0 {
			return int(v)
		}
	case int:
		if v != 0 {
			return v
		}
	}
	return def
}

// workspacePath resolves a possibly root-relative file argument.
func workspacePath(backend QueryBackend, file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(backend.Root(), filepath.FromSlash(file))
}

// displayPath shortens an absolute path to root-relative slash form.
func displayPath(backend QueryBackend, path string) string {
	if rel, err := filepath.Rel(backend.Root(), path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}

// resolvePosition turns a file/line/column argument triple into a
// tracked path and byte offset. A non-empty message means the input
// could not be used and should be returned to the caller as-is.
func resolvePosition(ctx context.Context, backend QueryBackend, file string, line, column int) (string, int, string) {
	if file == "" {
		return "", 0, "No file provided"
	}
	if line <= 0 || column <= 0 {
		return "", 0, "line and column are required and one-based"
	}
	path := workspacePath(backend, file)
	offset, err := backend.OffsetAt(ctx, path, source.Position{Line: line - 1, Character: column - 1})
	if err != nil {
		return "", 0, fmt.Sprintf("Cannot read %s: %v", file, err)
	}
	return path, offset, ""
}

func formatLocation(backend QueryBackend, loc session.Location) string {
	return fmt.Sprintf("%s:%d:%d", displayPath(backend, loc.Path),
		loc.Range.Start.Line+1, loc.Range.Start.Character+1)
}

func errorResponse(id any, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}
