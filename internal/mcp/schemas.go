package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func projectProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Azure DevOps project id. Defaults to the configured project.",
	}
}

func periodProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Reporting month formatted as YYYY-MM",
		"pattern":     `^\d{4}-\d{2}$`,
	}
}

// searchChunksTool returns the tool definition for search_chunks
func searchChunksTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_chunks",
		Description: "Hybrid (vector + full-text) search over project documents, wiki pages and monthly work item/sprint snapshots",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"projectId": projectProperty(),
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"topK": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"sourceTypes": map[string]interface{}{
					"type":        "array",
					"description": "Restrict results to these source types",
					"items": map[string]interface{}{
						"type": "string",
						"enum": sourceTypeNames(),
					},
				},
				"minScore": map[string]interface{}{
					"type":        "number",
					"description": "Drop results whose fused score is below this threshold",
					"minimum":     0.0,
				},
			},
			Required: []string{"query"},
		},
	}
}

// prepareMonthTool returns the tool definition for prepare_month
func prepareMonthTool() mcp.Tool {
	return mcp.Tool{
		Name:        "prepare_month",
		Description: "Start collecting work item and sprint snapshots for one month. Returns immediately; poll preparation_status.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"projectId": projectProperty(),
				"period":    periodProperty(),
			},
			Required: []string{"period"},
		},
	}
}

// preparationStatusTool returns the tool definition for preparation_status
func preparationStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "preparation_status",
		Description: "Progress and errors of the latest monthly preparation for a project and period",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"projectId": projectProperty(),
				"period":    periodProperty(),
			},
			Required: []string{"period"},
		},
	}
}

// chunkStatsTool returns the tool definition for chunk_stats
func chunkStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "chunk_stats",
		Description: "Chunk and token counts per source type for a project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"projectId": projectProperty(),
			},
		},
	}
}
