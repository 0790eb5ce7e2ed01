package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/coderag/internal/retriever"
	"github.com/dshills/coderag/pkg/types"
)

func strategyNames() []string {
	all := types.Strategies()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.String()
	}
	return names
}

// indexRepositoryTool returns the tool definition for index_repository
func indexRepositoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_repository",
		Description: "Index the code and documentation of a local repository into the collection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the repository root",
				},
			},
			Required: []string{"path"},
		},
	}
}

// retrieveTool returns the tool definition for retrieve
func retrieveTool() mcp.Tool {
	return mcp.Tool{
		Name:        "retrieve",
		Description: "Retrieve the code and documentation fragments most relevant to a question",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural-language question about the indexed repository",
				},
				"k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of fragments to return",
					"minimum":     1,
					"maximum":     retriever.MaxK,
				},
				"strategy": map[string]interface{}{
					"type":        "string",
					"description": "Force a retrieval strategy instead of selecting one from the query",
					"enum":        strategyNames(),
				},
				"expand": map[string]interface{}{
					"type":        "boolean",
					"description": "Include neighbouring fragments of the same file for context",
					"default":     false,
				},
			},
			Required: []string{"query"},
		},
	}
}

// collectionStatsTool returns the tool definition for collection_stats
func collectionStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "collection_stats",
		Description: "Report the size, backend and embedding model of the collection",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// deleteCollectionTool returns the tool definition for delete_collection
func deleteCollectionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_collection",
		Description: "Delete the persisted collection and start over with an empty one",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
