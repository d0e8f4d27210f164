package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// ingestCrawlResultsTool returns the tool definition for ingest_crawl_results
func ingestCrawlResultsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_crawl_results",
		Description: "Ingest one crawl batch for a payer: detect new, updated and unchanged rules, record documents, change logs and alerts",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"payer_name": map[string]interface{}{
					"type":        "string",
					"description": "Name of the payer the batch belongs to (must already exist)",
				},
				"results": map[string]interface{}{
					"type":        "object",
					"description": "Crawl batch: pdf_documents array and extracted_content map of rule groups",
				},
			},
			Required: []string{"payer_name", "results"},
		},
	}
}

// searchRulesTool returns the tool definition for search_rules
func searchRulesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_rules",
		Description: "Search current payer rules with a natural language query, blending semantic and keyword relevance",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"payer_name": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to one payer",
				},
				"rule_type": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to one rule type",
					"enum": []string{"prior_authorization", "timely_filing", "appeals",
						"claim_submission", "coverage_policy", "network_requirements", "other"},
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-50)",
					"default":     5,
					"minimum":     1,
					"maximum":     50,
				},
				"semantic_weight": map[string]interface{}{
					"type":        "number",
					"description": "Semantic share of the blended score (0.0 = keyword only, 1.0 = semantic only)",
					"default":     0.7,
					"minimum":     0.0,
					"maximum":     1.0,
				},
			},
			Required: []string{"query"},
		},
	}
}

// embedRulesTool returns the tool definition for embed_rules
func embedRulesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "embed_rules",
		Description: "Generate vector embeddings for current rules that don't have one yet",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, re-embed every current rule (use after switching providers)",
					"default":     false,
				},
			},
		},
	}
}

// listAlertsTool returns the tool definition for list_alerts
func listAlertsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_alerts",
		Description: "List rule-change alerts, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"unread_only": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, return only unread alerts",
					"default":     false,
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of alerts to return",
					"default":     20,
					"minimum":     1,
					"maximum":     100,
				},
			},
		},
	}
}

// recentChangesTool returns the tool definition for recent_changes
func recentChangesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "recent_changes",
		Description: "List recent rule changes with their diffs",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"payer_name": map[string]interface{}{
					"type":        "string",
					"description": "Restrict to changes for one payer",
				},
				"days": map[string]interface{}{
					"type":        "integer",
					"description": "Look back this many days",
					"default":     7,
					"minimum":     1,
					"maximum":     365,
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of changes to return",
					"default":     20,
					"minimum":     1,
					"maximum":     100,
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report knowledge base statistics: payers, rules, embeddings, documents, changes and alerts",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
