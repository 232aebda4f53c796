package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docindex"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docsearch"
)

func (s *Server) handleSearchDocs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	limit := getIntDefault(args, "limit", s.search.DefaultLimit)
	if limit < 1 || limit > s.search.MaxResults {
		return mcp.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", s.search.MaxResults)), nil
	}
	opts := docsearch.Options{
		FuzzyThreshold: s.search.FuzzyThreshold,
		DisableFuzzy:   !getBoolDefault(args, "fuzzy", !s.search.DisableFuzzy),
		Limit:          limit,
	}
	if raw, ok := args["kinds"].([]interface{}); ok {
		for _, v := range raw {
			name, _ := v.(string)
			kind, err := docindex.ParseMemberKind(name)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			opts.Kinds = append(opts.Kinds, kind)
		}
	}

	page := s.engine.Search(s.index, getStringDefault(args, "query", ""), opts)
	return jsonResult(page)
}

type memberDoc struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type entityDoc struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Namespace   string      `json:"namespace"`
	Description string      `json:"description"`
	Source      string      `json:"source,omitempty"`
	Methods     []memberDoc `json:"methods"`
	Properties  []memberDoc `json:"properties"`
}

func docOf(e docindex.Entity) entityDoc {
	d := entityDoc{
		ID:          e.ID,
		Name:        e.Name,
		Namespace:   e.Namespace,
		Description: e.Description,
		Source:      e.Source,
		Methods:     []memberDoc{},
		Properties:  []memberDoc{},
	}
	for _, m := range e.Methods() {
		d.Methods = append(d.Methods, memberDoc{Name: m.Name, Description: m.Description})
	}
	for _, m := range e.Properties() {
		d.Properties = append(d.Properties, memberDoc{Name: m.Name, Description: m.Description})
	}
	return d
}

func (s *Server) handleGetEntity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := getStringDefault(arguments(request), "id", "")
	if id == "" {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	e, err := s.index.Get(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(docOf(e))
}

type entitySummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Namespace   string `json:"namespace"`
	Description string `json:"description"`
}

func (s *Server) handleListEntities(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	namespace := getStringDefault(arguments(request), "namespace", "")
	out := []entitySummary{}
	for _, e := range s.index.AllEntities() {
		if namespace != "" && e.Namespace != namespace {
			continue
		}
		out = append(out, entitySummary{ID: e.ID, Name: e.Name, Namespace: e.Namespace, Description: e.Description})
	}
	return jsonResult(map[string]interface{}{
		"total":    len(out),
		"entities": out,
	})
}

func (s *Server) handleSuggest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	limit := getIntDefault(args, "limit", s.search.SuggestLimit)
	if limit < 1 || limit > s.search.MaxResults {
		return mcp.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", s.search.MaxResults)), nil
	}
	prefix := getStringDefault(args, "prefix", "")
	return jsonResult(map[string]interface{}{
		"prefix":      prefix,
		"suggestions": s.index.Suggest(prefix, limit),
	})
}

// Helper functions

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault accepts JSON numbers, which decode as float64.
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
