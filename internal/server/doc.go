// Package server implements the MCP (Model Context Protocol) server for the
// image-to-document pipeline.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Processing:
//   - image_process: One image into a single-page document
//   - image_process_batch: Several images into one multi-page document
//
// Inspection:
//   - image_validate: Validation report without writing anything
//   - image_formats: Accepted inputs, outputs and defaults
//
// Service:
//   - workspace_info: Directory layout and file counts
//   - service_config: Effective configuration and pool usage
//
// # Error Handling
//
// Tool failures are returned as JSON-RPC errors whose data carries the error
// code and kind, plus the failed document when processing started:
//   - code: -32602 for validation and configuration errors, -32000 otherwise
//   - message: "Tool execution failed"
//   - data: ErrorData
//
// Logs go to the injected zap logger. In MCP mode stdout carries only
// protocol messages, so the logger must write to stderr.
package server
