package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/coderag/internal/app"
	"github.com/dshills/coderag/internal/config"
	"github.com/dshills/coderag/internal/embedder"
	"github.com/dshills/coderag/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	for _, k := range []string{embedder.EnvProvider, embedder.EnvOpenAIAPIKey, embedder.EnvJinaAPIKey,
		config.EnvStore, config.EnvBackend, config.EnvCollection, config.EnvTopK} {
		t.Setenv(k, "")
	}
	cfg := config.Default()
	cfg.Embedding.Dimension = 32

	a, err := app.New(context.Background(), cfg, app.Options{Store: storage.NewMemoryStore()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return NewServer(a, nil)
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	if args != nil {
		req.Params.Arguments = args
	}
	return req
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireMCPError(t *testing.T, err error, code int) *MCPError {
	t.Helper()
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected MCPError, got %v", err)
	assert.Equal(t, code, mcpErr.Code)
	return mcpErr
}

func writeRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "calc.py"), []byte(`def add(a, b):
    """Add two numbers."""
    return a + b


def sub(a, b):
    return a - b
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Calc\n\nHow to add numbers.\n"), 0o644))
	return dir
}

func TestToolDefinitions(t *testing.T) {
	tools := []mcp.Tool{indexRepositoryTool(), retrieveTool(), collectionStatsTool(), deleteCollectionTool()}
	var names []string
	for _, tool := range tools {
		names = append(names, tool.Name)
		assert.Equal(t, "object", tool.InputSchema.Type)
	}
	assert.Equal(t, []string{"index_repository", "retrieve", "collection_stats", "delete_collection"}, names)

	strategy := retrieveTool().InputSchema.Properties["strategy"].(map[string]interface{})
	assert.Equal(t, []string{"general", "code_search", "api_search", "hybrid"}, strategy["enum"])
	assert.Equal(t, []string{"query"}, retrieveTool().InputSchema.Required)
}

func TestHandleIndexRepository(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	res, err := s.handleIndexRepository(ctx, callRequest("index_repository", map[string]interface{}{"path": writeRepo(t)}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, true, out["indexed"])
	assert.Equal(t, float64(2), out["files_indexed"])
	assert.Equal(t, out["fragments_created"], out["collection_size"])

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"no arguments", nil},
		{"missing path", map[string]interface{}{}},
		{"relative path", map[string]interface{}{"path": "relative/dir"}},
		{"missing dir", map[string]interface{}{"path": filepath.Join(t.TempDir(), "absent")}},
		{"no supported files", map[string]interface{}{"path": t.TempDir()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleIndexRepository(ctx, callRequest("index_repository", tt.args))
			requireMCPError(t, err, ErrorCodeInvalidParams)
		})
	}
}

func TestHandleRetrieve(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	_, err := s.handleIndexRepository(ctx, callRequest("index_repository", map[string]interface{}{"path": writeRepo(t)}))
	require.NoError(t, err)

	t.Run("code search returns scores", func(t *testing.T) {
		res, err := s.handleRetrieve(ctx, callRequest("retrieve", map[string]interface{}{
			"query": "show the add function",
			"k":     float64(2),
		}))
		require.NoError(t, err)
		out := decodeResult(t, res)

		assert.Equal(t, "code_search", out["strategy"])
		results := out["results"].([]interface{})
		require.NotEmpty(t, results)
		first := results[0].(map[string]interface{})
		assert.Equal(t, "calc.py", first["file_path"])
		assert.Equal(t, "code", first["chunk_type"])
		assert.Contains(t, first, "score")
		assert.NotContains(t, out, "context")
	})

	t.Run("strategy override and expansion", func(t *testing.T) {
		res, err := s.handleRetrieve(ctx, callRequest("retrieve", map[string]interface{}{
			"query":    "numbers",
			"strategy": "hybrid",
			"expand":   true,
		}))
		require.NoError(t, err)
		out := decodeResult(t, res)

		assert.Equal(t, "hybrid", out["strategy"])
		assert.Contains(t, out, "context")
		for _, r := range out["results"].([]interface{}) {
			assert.NotContains(t, r.(map[string]interface{}), "score")
		}
	})

	t.Run("errors", func(t *testing.T) {
		_, err := s.handleRetrieve(ctx, callRequest("retrieve", map[string]interface{}{"query": "  "}))
		requireMCPError(t, err, ErrorCodeEmptyQuery)

		_, err = s.handleRetrieve(ctx, callRequest("retrieve", map[string]interface{}{}))
		requireMCPError(t, err, ErrorCodeEmptyQuery)

		_, err = s.handleRetrieve(ctx, callRequest("retrieve", map[string]interface{}{"query": "x", "k": float64(0)}))
		requireMCPError(t, err, ErrorCodeInvalidParams)

		_, err = s.handleRetrieve(ctx, callRequest("retrieve", map[string]interface{}{"query": "x", "k": float64(101)}))
		requireMCPError(t, err, ErrorCodeInvalidParams)

		_, err = s.handleRetrieve(ctx, callRequest("retrieve", map[string]interface{}{"query": "x", "strategy": "semantic"}))
		mcpErr := requireMCPError(t, err, ErrorCodeInvalidParams)
		assert.Equal(t, "invalid strategy", mcpErr.Message)

		_, err = s.handleRetrieve(ctx, callRequest("retrieve", nil))
		requireMCPError(t, err, ErrorCodeInvalidParams)
	})
}

func TestHandleCollectionStatsAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	_, err := s.handleIndexRepository(ctx, callRequest("index_repository", map[string]interface{}{"path": writeRepo(t)}))
	require.NoError(t, err)

	res, err := s.handleCollectionStats(ctx, callRequest("collection_stats", nil))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, config.DefaultCollection, out["name"])
	assert.Equal(t, "flat", out["backend"])
	assert.Equal(t, float64(32), out["dimension"])
	assert.Greater(t, out["count"].(float64), float64(0))
	id := out["id"]

	res, err = s.handleDeleteCollection(ctx, callRequest("delete_collection", nil))
	require.NoError(t, err)
	assert.Equal(t, true, decodeResult(t, res)["deleted"])

	res, err = s.handleCollectionStats(ctx, callRequest("collection_stats", nil))
	require.NoError(t, err)
	out = decodeResult(t, res)
	assert.Equal(t, float64(0), out["count"])
	assert.NotEqual(t, id, out["id"])
}

func TestValidatePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.NoError(t, validatePath(dir))
	assert.ErrorIs(t, validatePath(""), ErrPathRequired)
	assert.ErrorIs(t, validatePath("rel"), ErrPathNotAbsolute)
	assert.ErrorIs(t, validatePath(filepath.Join(dir, "nope")), ErrPathNotFound)
	assert.ErrorIs(t, validatePath(file), ErrNotDirectory)
}
