package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func searchDocsTool(maxResults int) mcp.Tool {
	return mcp.Tool{
		Name:        "search_docs",
		Description: "Search documented types, methods and properties by name or description. Matching is case-insensitive and tolerates small typos.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Text to look for; empty lists every entity",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results",
					"minimum":     1,
					"maximum":     maxResults,
				},
				"fuzzy": map[string]interface{}{
					"type":        "boolean",
					"description": "Allow matches within a small edit distance",
					"default":     true,
				},
				"kinds": map[string]interface{}{
					"type":        "array",
					"description": "Member kinds that take part in matching",
					"items": map[string]interface{}{
						"type": "string",
						"enum": []string{"method", "property"},
					},
				},
			},
		},
	}
}

func getEntityTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_entity",
		Description: "Get the full documentation of one type: description, methods and properties",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Fully-qualified type name, e.g. Game.Core.Ball",
				},
			},
			Required: []string{"id"},
		},
	}
}

func listEntitiesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_entities",
		Description: "List every documented type, optionally restricted to one namespace",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"namespace": map[string]interface{}{
					"type":        "string",
					"description": "Only list types in this namespace",
				},
			},
		},
	}
}

func suggestTool(maxResults int) mcp.Tool {
	return mcp.Tool{
		Name:        "suggest",
		Description: "Complete a prefix against indexed names, descriptions and words",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"prefix": map[string]interface{}{
					"type":        "string",
					"description": "Prefix to complete",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of suggestions",
					"minimum":     1,
					"maximum":     maxResults,
				},
			},
			Required: []string{"prefix"},
		},
	}
}
