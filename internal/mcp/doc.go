// Package mcp implements the Model Context Protocol (MCP) server surface of
// payerwatch.
//
// The server exposes six tools over stdio:
//   - ingest_crawl_results: Ingest one crawl batch for a payer
//   - search_rules: Hybrid search over the current rules
//   - embed_rules: Backfill vector embeddings
//   - list_alerts: List rule-change alerts
//   - recent_changes: List recent changes with diffs
//   - get_status: Knowledge base statistics
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport, so stdout is reserved
// for protocol messages and all logging goes to stderr.
//
// # Tool: ingest_crawl_results
//
// Ingest a crawl batch and detect rule changes:
//
//	Request:
//	{
//	  "name": "ingest_crawl_results",
//	  "arguments": {
//	    "payer_name": "UnitedHealthcare",
//	    "results": {
//	      "pdf_documents": [...],
//	      "extracted_content": {"...": {"rules": [...]}}
//	    }
//	  }
//	}
//
//	Response:
//	{
//	  "job_id": "8c2f...",
//	  "rules_created": 12,
//	  "rules_updated": 3,
//	  "rules_unchanged": 41,
//	  "changes_detected": 15
//	}
//
// # Tool: search_rules
//
// Query the current rules:
//
//	Request:
//	{
//	  "name": "search_rules",
//	  "arguments": {
//	    "query": "timely filing deadline for United",
//	    "top_k": 5,
//	    "semantic_weight": 0.7
//	  }
//	}
//
// Results carry the semantic, keyword and combined score per rule so clients
// can explain a ranking.
//
// # Error Handling
//
// Tool failures are reported as MCP errors with JSON-RPC codes: -32602 for
// invalid parameters, -32603 for internal failures, and server-specific codes
// for unknown payers (-32001), concurrent ingests (-32002), empty queries
// (-32004) and malformed crawl payloads (-32005).
package mcp
