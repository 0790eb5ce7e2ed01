package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/coderag/internal/indexer"
	"github.com/dshills/coderag/internal/retriever"
	"github.com/dshills/coderag/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// maxReportedErrors caps the per-file errors echoed back by index_repository
const maxReportedErrors = 5

// handleIndexRepository handles the index_repository tool invocation
func (s *Server) handleIndexRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	stats, err := s.app.IndexRepository(ctx, path)
	switch {
	case errors.Is(err, types.ErrIndexingInProgress):
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	case errors.Is(err, indexer.ErrNoSupportedFiles):
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	case err != nil:
		s.log.Error("indexing failed", "root", path, "error", err)
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":            true,
		"files_indexed":      stats.FilesIndexed,
		"files_skipped":      stats.FilesSkipped,
		"files_failed":       stats.FilesFailed,
		"fragments_created":  stats.FragmentsCreated,
		"semantic_fragments": stats.SemanticFragments,
		"collection_size":    s.app.Stats().Count,
		"duration_ms":        stats.Duration.Milliseconds(),
	}
	if n := len(stats.ErrorMessages); n > 0 {
		if n > maxReportedErrors {
			response["errors"] = stats.ErrorMessages[:maxReportedErrors]
			response["error_count"] = n
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// fragmentResult is the wire form of one retrieved fragment
type fragmentResult struct {
	FilePath     string   `json:"file_path"`
	Language     string   `json:"language"`
	ChunkType    string   `json:"chunk_type"`
	ChunkIndex   int      `json:"chunk_index"`
	TotalChunks  int      `json:"total_chunks"`
	FunctionName string   `json:"function_name,omitempty"`
	ClassName    string   `json:"class_name,omitempty"`
	Score        *float64 `json:"score,omitempty"`
	Content      string   `json:"content"`
}

func toFragmentResult(f types.Fragment) fragmentResult {
	return fragmentResult{
		FilePath:     f.Metadata.FilePath,
		Language:     f.Metadata.Language,
		ChunkType:    string(f.Metadata.ChunkType),
		ChunkIndex:   f.Metadata.ChunkIndex,
		TotalChunks:  f.Metadata.TotalChunks,
		FunctionName: f.Metadata.FunctionName,
		ClassName:    f.Metadata.ClassName,
		Content:      f.Content,
	}
}

// handleRetrieve handles the retrieve tool invocation
func (s *Server) handleRetrieve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query := getStringDefault(args, "query", "")
	k := getIntDefault(args, "k", s.app.Config().Retrieval.TopK)
	if k < 1 || k > retriever.MaxK {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("k must be between 1 and %d", retriever.MaxK), map[string]interface{}{
			"param": "k",
			"value": k,
		})
	}
	strategy := getStringDefault(args, "strategy", "")
	expand := getBoolDefault(args, "expand", false)

	result, err := s.app.Retrieve(ctx, query, k, strategy)
	switch {
	case errors.Is(err, retriever.ErrEmptyQuery):
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	case errors.Is(err, types.ErrInvalidStrategy):
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid strategy", map[string]interface{}{
			"param":   "strategy",
			"value":   strategy,
			"allowed": strategyNames(),
		})
	case err != nil:
		s.log.Error("retrieval failed", "error", err)
		return nil, newMCPError(ErrorCodeInternalError, "retrieval failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]fragmentResult, len(result.Fragments))
	for i, f := range result.Fragments {
		results[i] = toFragmentResult(f)
		if result.Scores != nil {
			score := result.Scores[i]
			results[i].Score = &score
		}
	}

	response := map[string]interface{}{
		"query":    query,
		"strategy": result.Strategy.String(),
		"count":    len(results),
		"results":  results,
	}
	if expand {
		var expanded []fragmentResult
		for _, window := range s.app.Expand(result.Fragments) {
			for _, f := range window {
				expanded = append(expanded, toFragmentResult(f))
			}
		}
		response["context"] = expanded
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCollectionStats handles the collection_stats tool invocation
func (s *Server) handleCollectionStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats := s.app.Stats()
	response := map[string]interface{}{
		"id":         stats.ID,
		"name":       stats.Name,
		"backend":    stats.Backend,
		"score_kind": stats.ScoreKind,
		"count":      stats.Count,
		"dimension":  stats.Dimension,
		"provider":   stats.Provider,
		"model":      stats.Model,
		"created_at": stats.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		"updated_at": stats.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleDeleteCollection handles the delete_collection tool invocation
func (s *Server) handleDeleteCollection(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := s.app.Stats().Name
	err := s.app.DeleteCollection(ctx)
	if errors.Is(err, types.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing in progress", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to delete collection", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"deleted":    true,
		"collection": name,
	})), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks that path is an absolute, readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation errors

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
