package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/pyxis-go/internal/search"
	"github.com/Benny93/pyxis-go/internal/session"
	"github.com/Benny93/pyxis-go/internal/source"
)

// mockBackend serves canned query results.
type mockBackend struct {
	root        string
	offset      int
	offsetErr   error
	definitions []session.Location
	references  []session.Location
	symbols     []search.Result
	hover       *session.HoverInfo
	diagnostics []session.FileDiagnostics
	modules     []session.ModuleInfo
	status      session.Status
}

func (m *mockBackend) Root() string { return m.root }

func (m *mockBackend) OffsetAt(ctx context.Context, path string, pos source.Position) (int, error) {
	return m.offset, m.offsetErr
}

func (m *mockBackend) Definition(ctx context.Context, path string, offset int) ([]session.Location, error) {
	return m.definitions, nil
}

func (m *mockBackend) References(ctx context.Context, path string, offset int) ([]session.Location, error) {
	return m.references, nil
}

func (m *mockBackend) WorkspaceSymbols(ctx context.Context, query string, limit int) ([]search.Result, error) {
	return m.symbols, nil
}

func (m *mockBackend) Hover(ctx context.Context, path string, offset int) (*session.HoverInfo, error) {
	return m.hover, nil
}

func (m *mockBackend) Diagnostics(ctx context.Context, path string) ([]session.FileDiagnostics, error) {
	return m.diagnostics, nil
}

func (m *mockBackend) Modules(ctx context.Context) ([]session.ModuleInfo, error) {
	return m.modules, nil
}

func (m *mockBackend) Status(ctx context.Context) (session.Status, error) {
	return m.status, nil
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		root:   "/work",
		offset: 7,
		definitions: []session.Location{
			{
				Name: "TAX", Kind: "variable",
				Path: "/work/base/helpers.py",
				End:  3,
				Range: source.Range{
					End: source.Position{Line: 0, Character: 3},
				},
			},
		},
		references: []session.Location{
			{Path: "/work/base/helpers.py", End: 3,
				Range: source.Range{End: source.Position{Character: 3}}},
			{Path: "/work/sale/models.py", Start: 41, End: 44,
				Range: source.Range{
					Start: source.Position{Line: 2, Character: 15},
					End:   source.Position{Line: 2, Character: 18},
				}},
		},
		symbols: []search.Result{
			{Name: "SaleOrder", Kind: "class", Path: "/work/sale/models.py", Start: 32, End: 41},
			{Name: `"sale.order"`, Kind: "model", Path: "/work/sale/models.py", Start: 32, End: 41},
		},
		hover: &session.HoverInfo{
			Name: "TAX", Kind: "variable",
			Qualified: "base.helpers.TAX",
		},
		diagnostics: []session.FileDiagnostics{
			{
				Path: "/work/sale/report.py",
				Items: []session.Finding{
					{
						Code: "undefined-name", Severity: "error",
						Message: "undefined name subtotal",
						Start:   8, End: 16,
						Range: source.Range{
							Start: source.Position{Line: 1, Character: 4},
							End:   source.Position{Line: 1, Character: 12},
						},
					},
				},
			},
		},
		modules: []session.ModuleInfo{
			{Name: "base", Valid: true},
			{Name: "sale", Depends: []string{"base"}, Valid: true},
			{Name: "broken", Valid: false},
		},
		status: session.Status{
			Root: "/work", Modules: 2, InvalidModules: 1,
			Files: 4, Symbols: 12, Models: 1,
			Restored: 2,
		},
	}
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	server := NewServer(newMockBackend())
	assert.NotNil(t, server)
	assert.NotNil(t, server.backend)
}

func TestServer_Tools(t *testing.T) {
	t.Parallel()

	server := NewServer(newMockBackend())

	t.Run("ListTools", func(t *testing.T) {
		tools := server.ListTools()
		require.Len(t, tools, 7)

		names := make(map[string]bool)
		for _, tool := range tools {
			names[tool.Name] = true
		}
		for _, expected := range []string{
			"pyxis_symbols",
			"pyxis_definition",
			"pyxis_references",
			"pyxis_hover",
			"pyxis_diagnostics",
			"pyxis_modules",
			"pyxis_status",
		} {
			assert.True(t, names[expected], "missing tool %s", expected)
		}
	})

	t.Run("ToolDescriptions", func(t *testing.T) {
		for _, tool := range server.ListTools() {
			assert.NotEmpty(t, tool.Description)
			assert.NotNil(t, tool.InputSchema)
		}
	})
}

func TestServer_CallTool(t *testing.T) {
	t.Parallel()

	server := NewServer(newMockBackend())
	ctx := context.Background()
	at := map[string]any{"file": "sale/models.py", "line": 3.0, "column": 16.0}

	t.Run("Symbols", func(t *testing.T) {
		result, err := server.CallTool(ctx, "pyxis_symbols", map[string]any{"query": "sale"})
		require.NoError(t, err)
		assert.Contains(t, result, "SaleOrder")
		assert.Contains(t, result, `"sale.order"`)
		assert.Contains(t, result, "sale/models.py")
	})

	t.Run("SymbolsMissingQuery", func(t *testing.T) {
		result, err := server.CallTool(ctx, "pyxis_symbols", map[string]any{})
		require.NoError(t, err)
		assert.Contains(t, result, "No query provided")
	})

	t.Run("Definition", func(t *testing.T) {
		result, err := server.CallTool(ctx, "pyxis_definition", at)
		require.NoError(t, err)
		assert.Contains(t, result, "**TAX** (variable)")
		assert.Contains(t, result, "base/helpers.py:1:1")
	})

	t.Run("DefinitionMissingFile", func(t *testing.T) {
		result, err := server.CallTool(ctx, "pyxis_definition", map[string]any{"line": 3.0, "column": 16.0})
		require.NoError(t, err)
		assert.Contains(t, result, "No file provided")
	})

	t.Run("DefinitionZeroPosition", func(t *testing.T) {
		result, err := server.CallTool(ctx, "pyxis_definition", map[string]any{"file": "x.py"})
		require.NoError(t, err)
		assert.Contains(t, result, "one-based")
	})

	t.Run("DefinitionUnreadableFile", func(t *testing.T) {
		backend := newMockBackend()
		backend.offsetErr = errors.New("no such file")
		broken := NewServer(backend)
		result, err := broken.CallTool(ctx, "pyxis_definition", at)
		require.NoError(t, err)
		assert.Contains(t, result, "Cannot read")
	})

	t.Run("References", func(t *testing.T) {
		result, err := server.CallTool(ctx, "pyxis_references", at)
		require.NoError(t, err)
		assert.Contains(t, result, "base/helpers.py:1:1")
		assert.Contains(t, result, "sale/models.py:3:16")
	})

	t.Run("Hover", func(t *testing.T) {
		result, err := server.CallTool(ctx, "pyxis_hover", at)
		require.NoError(t, err)
		assert.Contains(t, result, "**TAX** (variable)")
		assert.Contains(t, result, "base.helpers.TAX")
	})

	t.Run("HoverNothingThere", func(t *testing.T) {
		backend := newMockBackend()
		backend.hover = nil
		empty := NewServer(backend)
		result, err := empty.CallTool(ctx, "pyxis_hover", at)
		require.NoError(t, err)
		assert.Contains(t, result, "Nothing resolves")
	})

	t.Run("Diagnostics", func(t *testing.T) {
		result, err := server.CallTool(ctx, "pyxis_diagnostics", map[string]any{})
		require.NoError(t, err)
		assert.Contains(t, result, "sale/report.py")
		assert.Contains(t, result, "undefined-name")
		assert.Contains(t, result, "2:5")
	})

	t.Run("DiagnosticsClean", func(t *testing.T) {
		backend := newMockBackend()
		backend.diagnostics = nil
		clean := NewServer(backend)
		result, err := clean.CallTool(ctx, "pyxis_diagnostics", map[string]any{})
		require.NoError(t, err)
		assert.Contains(t, result, "clean")
	})

	t.Run("Modules", func(t *testing.T) {
		result, err := server.CallTool(ctx, "pyxis_modules", map[string]any{})
		require.NoError(t, err)
		assert.Contains(t, result, "1. **base**")
		assert.Contains(t, result, "2. **sale** (depends: base)")
		assert.Contains(t, result, "Excluded Modules")
		assert.Contains(t, result, "**broken**")
	})

	t.Run("Status", func(t *testing.T) {
		result, err := server.CallTool(ctx, "pyxis_status", map[string]any{})
		require.NoError(t, err)
		assert.Contains(t, result, "**Modules:** 2 (1 excluded)")
		assert.Contains(t, result, "restored 2 module(s) from cache")
	})

	t.Run("UnknownTool", func(t *testing.T) {
		result, err := server.CallTool(ctx, "nonsense", map[string]any{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown tool")
		assert.Empty(t, result)
	})
}

func TestServer_Resources(t *testing.T) {
	t.Parallel()

	server := NewServer(newMockBackend())

	t.Run("ListResources", func(t *testing.T) {
		resources := server.ListResources()
		require.Len(t, resources, 3)

		uris := make(map[string]bool)
		for _, res := range resources {
			uris[res.URI] = true
			assert.NotEmpty(t, res.Name)
			assert.NotEmpty(t, res.Description)
			assert.NotEmpty(t, res.MimeType)
		}
		assert.True(t, uris["pyxis://overview"])
		assert.True(t, uris["pyxis://modules"])
		assert.True(t, uris["pyxis://schema"])
	})
}

func TestServer_ReadResource(t *testing.T) {
	t.Parallel()

	server := NewServer(newMockBackend())
	ctx := context.Background()

	t.Run("Overview", func(t *testing.T) {
		content, err := server.ReadResource(ctx, "pyxis://overview")
		require.NoError(t, err)
		assert.Contains(t, content, "Workspace Overview")
		assert.Contains(t, content, "**Modules:** 2")
	})

	t.Run("Modules", func(t *testing.T) {
		content, err := server.ReadResource(ctx, "pyxis://modules")
		require.NoError(t, err)
		assert.Contains(t, content, "Module Load Order")
	})

	t.Run("Schema", func(t *testing.T) {
		content, err := server.ReadResource(ctx, "pyxis://schema")
		require.NoError(t, err)
		assert.Contains(t, content, "Symbol Kinds")
		assert.Contains(t, content, "Build Stages")
		assert.Contains(t, content, "undefined-name")
	})

	t.Run("Unknown", func(t *testing.T) {
		content, err := server.ReadResource(ctx, "pyxis://nope")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown resource")
		assert.Empty(t, content)
	})
}

func TestServer_Run(t *testing.T) {
	t.Parallel()

	t.Run("NilStreams", func(t *testing.T) {
		server := NewServer(newMockBackend())
		err := server.Run(context.Background(), nil, nil)
		assert.Error(t, err)
	})

	t.Run("InitializeAndCall", func(t *testing.T) {
		server := NewServer(newMockBackend())
		input := `{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"pyxis_status","arguments":{}}}` + "\n"
		var out bytes.Buffer
		err := server.Run(context.Background(), strings.NewReader(input), &out)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 2)

		var initResp map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &initResp))
		result, ok := initResp["result"].(map[string]any)
		require.True(t, ok)
		info, ok := result["serverInfo"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "pyxis-go", info["name"])

		var callResp map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[1]), &callResp))
		assert.Equal(t, float64(2), callResp["id"])
		assert.Contains(t, lines[1], "Workspace Status")
	})

	t.Run("UnknownMethod", func(t *testing.T) {
		server := NewServer(newMockBackend())
		input := `{"jsonrpc":"2.0","id":9,"method":"bogus/verb"}` + "\n"
		var out bytes.Buffer
		require.NoError(t, server.Run(context.Background(), strings.NewReader(input), &out))
		assert.Contains(t, out.String(), "Method not found")
	})
}
