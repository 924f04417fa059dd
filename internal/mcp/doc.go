// Package mcp implements the Model Context Protocol (MCP) server for AzureBridge.
//
// The MCP server exposes four tools to AI assistants drafting monthly reports:
//   - search_chunks: hybrid search over ingested documents and monthly snapshots
//   - prepare_month: start collecting work item and sprint snapshots for a month
//   - preparation_status: poll a monthly preparation
//   - chunk_stats: chunk and token counts per source type
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Stdout is reserved for the protocol, so the process logs to stderr while the
// server runs:
//
//	azurebridge mcp --config azurebridge.toml
//
// Every tool accepts an optional projectId; the configured Azure DevOps project
// is used when it is omitted.
//
// # Tool: search_chunks
//
//	Request:
//	{
//	  "name": "search_chunks",
//	  "arguments": {
//	    "query": "exporter timeouts in March",
//	    "topK": 5,
//	    "sourceTypes": ["workitem", "sprint"]
//	  }
//	}
//
//	Response:
//	{
//	  "query": "exporter timeouts in March",
//	  "count": 1,
//	  "results": [
//	    {
//	      "id": 42,
//	      "content": "Work item #1 (Bug): Exporter times out ...",
//	      "sourceType": "workitem",
//	      "score": 0.0163,
//	      "matchType": "hybrid"
//	    }
//	  ]
//	}
//
// # Tool: prepare_month
//
// Returns the preparation status right away. A call made while a fresh
// preparation for the same period is still collecting returns that run
// instead of starting another.
//
//	Request:
//	{"name": "prepare_month", "arguments": {"period": "2026-03"}}
//
//	Response:
//	{"runId": "…", "status": "collecting", "progress": 0, "errors": []}
//
// # Tool: preparation_status
//
//	Request:
//	{"name": "preparation_status", "arguments": {"period": "2026-03"}}
//
//	Response:
//	{"runId": "…", "status": "ready", "progress": 100, "chunks": 4, "errors": []}
//
// # Errors
//
// Invalid arguments are reported with code -32602, an empty query with -32004
// and a missing preparation with -32001 (preparation_status answers
// "prepared": false instead).
package mcp
