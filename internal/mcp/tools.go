package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/payerwatch/payerwatch-mcp/internal/detector"
	"github.com/payerwatch/payerwatch-mcp/internal/retriever"
	"github.com/payerwatch/payerwatch-mcp/internal/storage"
	"github.com/payerwatch/payerwatch-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodePayerNotFound    = -32001 // Named payer does not exist
	ErrorCodeIngestInProgress = -32002 // Another ingest for the payer is already running
	ErrorCodeEmptyQuery       = -32004 // Query parameter is empty
	ErrorCodeMalformedResults = -32005 // Crawl results payload is not valid
)

// handleIngestCrawlResults handles the ingest_crawl_results tool invocation
func (s *Server) handleIngestCrawlResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	payerName, ok := args["payer_name"].(string)
	if !ok || payerName == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "payer_name parameter is required", map[string]interface{}{
			"param":  "payer_name",
			"reason": "missing or empty",
		})
	}

	rawResults, ok := args["results"].(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "results parameter is required", map[string]interface{}{
			"param":  "results",
			"reason": "missing or not an object",
		})
	}

	results, err := decodeCrawlResults(rawResults)
	if err != nil {
		return nil, newMCPError(ErrorCodeMalformedResults, "malformed crawl results", map[string]interface{}{
			"error": err.Error(),
		})
	}

	payer, err := s.storage.GetPayerByName(ctx, payerName)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodePayerNotFound, "payer not found", map[string]interface{}{
			"payer_name": payerName,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to load payer", map[string]interface{}{
			"error": err.Error(),
		})
	}

	stats, err := s.detector.ProcessCrawlResults(ctx, payer.ID, results)
	if errors.Is(err, detector.ErrIngestInProgress) {
		return nil, newMCPError(ErrorCodeIngestInProgress, "ingest already running for this payer", map[string]interface{}{
			"payer_name": payerName,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "ingest failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Rankings computed before this batch are stale now
	s.retriever.InvalidateCache()

	response := map[string]interface{}{
		"job_id":            stats.JobID,
		"payer":             payer.Name,
		"rules_created":     stats.RulesCreated,
		"rules_updated":     stats.RulesUpdated,
		"rules_unchanged":   stats.RulesUnchanged,
		"rules_skipped":     stats.RulesSkipped,
		"documents_created": stats.DocumentsCreated,
		"documents_updated": stats.DocumentsUpdated,
		"changes_detected":  stats.ChangesDetected,
		"errors":            stats.Errors,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchRules handles the search_rules tool invocation
func (s *Server) handleSearchRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	req := retriever.SearchRequest{
		Query:    query,
		TopK:     getIntDefault(args, "top_k", retriever.DefaultTopK),
		UseCache: true,
	}

	if weight, ok := args["semantic_weight"].(float64); ok {
		if weight < 0 || weight > 1 {
			return nil, newMCPError(ErrorCodeInvalidParams, "semantic_weight must be between 0 and 1", map[string]interface{}{
				"param": "semantic_weight",
				"value": weight,
			})
		}
		req.SemanticWeight = &weight
	}

	if payerName := getStringDefault(args, "payer_name", ""); payerName != "" {
		payer, err := s.storage.GetPayerByName(ctx, payerName)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newMCPError(ErrorCodePayerNotFound, "payer not found", map[string]interface{}{
				"payer_name": payerName,
			})
		}
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to load payer", map[string]interface{}{
				"error": err.Error(),
			})
		}
		req.PayerID = &payer.ID
	}

	if rt := getStringDefault(args, "rule_type", ""); rt != "" {
		ruleType := types.RuleType(rt)
		if !ruleType.Valid() {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid rule_type", map[string]interface{}{
				"param": "rule_type",
				"value": rt,
			})
		}
		req.RuleType = &ruleType
	}

	resp, err := s.retriever.Search(ctx, req)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	resultList := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		entry := map[string]interface{}{
			"rule_id":        r.RuleID,
			"payer":          r.PayerName,
			"rule_type":      string(r.RuleType),
			"version":        r.Version,
			"title":          r.Title,
			"content":        r.Content,
			"source_url":     r.SourceURL,
			"semantic_score": r.SemanticScore,
			"keyword_score":  r.KeywordScore,
			"combined_score": r.CombinedScore,
		}
		if r.EffectiveDate != nil {
			entry["effective_date"] = r.EffectiveDate.Format("2006-01-02")
		}
		resultList[i] = entry
	}

	response := map[string]interface{}{
		"query":         query,
		"results":       resultList,
		"total_results": resp.TotalResults,
		"degraded":      resp.Degraded,
		"cache_hit":     resp.CacheHit,
		"duration_ms":   resp.Duration.Milliseconds(),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleEmbedRules handles the embed_rules tool invocation
func (s *Server) handleEmbedRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	force := getBoolDefault(args, "force", false)

	stats, err := s.backfill.Run(ctx, force, nil)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "embedding backfill failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"rules_scanned":  stats.RulesScanned,
		"rules_embedded": stats.RulesEmbedded,
		"rules_failed":   stats.RulesFailed,
		"duration_ms":    stats.Duration.Milliseconds(),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListAlerts handles the list_alerts tool invocation
func (s *Server) handleListAlerts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	unreadOnly := getBoolDefault(args, "unread_only", false)
	limit := getIntDefault(args, "limit", 20)

	alerts, err := s.storage.ListAlerts(ctx, unreadOnly, limit)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list alerts", map[string]interface{}{
			"error": err.Error(),
		})
	}

	alertList := make([]map[string]interface{}, len(alerts))
	for i, a := range alerts {
		entry := map[string]interface{}{
			"id":         a.ID,
			"alert_type": a.AlertType,
			"severity":   string(a.Severity),
			"title":      a.Title,
			"message":    a.Message,
			"is_read":    a.IsRead,
			"created_at": a.CreatedAt.Format(time.RFC3339),
		}
		if a.PayerID != nil {
			entry["payer_id"] = *a.PayerID
		}
		alertList[i] = entry
	}

	response := map[string]interface{}{
		"alerts":      alertList,
		"total":       len(alertList),
		"unread_only": unreadOnly,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRecentChanges handles the recent_changes tool invocation
func (s *Server) handleRecentChanges(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	days := getIntDefault(args, "days", 7)
	limit := getIntDefault(args, "limit", 20)

	var payerID *int64
	if payerName := getStringDefault(args, "payer_name", ""); payerName != "" {
		payer, err := s.storage.GetPayerByName(ctx, payerName)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newMCPError(ErrorCodePayerNotFound, "payer not found", map[string]interface{}{
				"payer_name": payerName,
			})
		}
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to load payer", map[string]interface{}{
				"error": err.Error(),
			})
		}
		payerID = &payer.ID
	}

	since := time.Now().AddDate(0, 0, -days)
	changes, err := s.storage.RecentChanges(ctx, payerID, since, limit)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list changes", map[string]interface{}{
			"error": err.Error(),
		})
	}

	changeList := make([]map[string]interface{}, len(changes))
	for i, c := range changes {
		entry := map[string]interface{}{
			"id":          c.ID,
			"rule_id":     c.RuleID,
			"change_type": string(c.ChangeType),
			"detected_by": c.DetectedBy,
			"changed_at":  c.ChangedAt.Format(time.RFC3339),
			"alert_sent":  c.AlertSent,
		}
		if c.Diff != nil {
			entry["diff"] = map[string]interface{}{
				"added_lines":   c.Diff.AddedLines,
				"removed_lines": c.Diff.RemovedLines,
				"total_changes": c.Diff.TotalChanges,
				"similarity":    c.Diff.Similarity,
			}
		}
		changeList[i] = entry
	}

	response := map[string]interface{}{
		"changes": changeList,
		"total":   len(changeList),
		"since":   since.Format(time.RFC3339),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"statistics": map[string]interface{}{
			"payers_count":         status.PayersCount,
			"current_rules_count":  status.CurrentRulesCount,
			"total_rule_versions":  status.TotalRuleVersions,
			"embedded_rules_count": status.EmbeddedRulesCount,
			"documents_count":      status.DocumentsCount,
			"change_logs_count":    status.ChangeLogsCount,
			"alerts_count":         status.AlertsCount,
			"unread_alerts_count":  status.UnreadAlertsCount,
		},
		"build_mode": storage.BuildMode,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// decodeCrawlResults round-trips the raw tool argument through JSON into the
// typed batch shape.
func decodeCrawlResults(raw map[string]interface{}) (*types.CrawlResults, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	var results types.CrawlResults
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return &results, nil
}

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
