package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/ironsheep/image-doc-mcp/internal/document"
	apperrors "github.com/ironsheep/image-doc-mcp/internal/errors"
	"github.com/ironsheep/image-doc-mcp/internal/pipeline"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_process").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// ErrorData is attached to tool failures. Document is set when processing
// produced a failed document.
type ErrorData struct {
	Code     string             `json:"code"`
	Kind     apperrors.Kind     `json:"kind"`
	Message  string             `json:"message"`
	Document *document.Document `json:"document,omitempty"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Validation and configuration failures return -32602; every other tool
// failure returns -32000. Both carry ErrorData.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return s.toolError(req.ID, params.Name, result, err)
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
// Handlers may return a partial result alongside an error.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "image_process":
		return s.handleImageProcess(ctx, args)
	case "image_process_batch":
		return s.handleImageProcessBatch(ctx, args)
	case "image_validate":
		return s.handleImageValidate(ctx, args)
	case "image_formats":
		return s.coord.Formats(), nil
	case "workspace_info":
		return s.handleWorkspaceInfo(args)
	case "service_config":
		return s.handleServiceConfig(), nil
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidOption, "unknown tool: %s", name)
	}
}

func (s *Server) toolError(id interface{}, tool string, partial interface{}, err error) *MCPResponse {
	data := ErrorData{
		Code:    apperrors.GetCode(err),
		Kind:    apperrors.KindOf(err),
		Message: err.Error(),
	}
	if doc, ok := partial.(*document.Document); ok {
		data.Document = doc
	}

	code := codeToolFailed
	if data.Kind == apperrors.KindValidation || data.Kind == apperrors.KindConfig {
		code = codeInvalidParams
	}

	s.logger.Info("tool failed", zap.String("tool", tool), zap.String("code", data.Code), zap.Error(err))
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: "Tool execution failed",
			Data:    data,
		},
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals tool arguments, rejecting unknown fields. Missing
// arguments decode as an empty object.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(bytes.TrimSpace(args)) == 0 || string(bytes.TrimSpace(args)) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.Wrap(err, apperrors.ErrInvalidOption, "invalid arguments")
	}
	return nil
}

// options overlays raw JSON options onto the configured defaults.
func (s *Server) options(raw json.RawMessage) (pipeline.Options, error) {
	base := pipeline.DefaultOptions(s.coord.Config())
	if len(raw) == 0 {
		return base, nil
	}
	return pipeline.DecodeOptions(bytes.NewReader(raw), base)
}

// === Processing Handlers ===

type imageSourceArgs struct {
	Path string `json:"path,omitempty"`
	// Data is base64-encoded image bytes; Name supplies the title and
	// extension.
	Data string `json:"data,omitempty"`
	Name string `json:"name,omitempty"`
}

func (a imageSourceArgs) source() (pipeline.Source, error) {
	switch {
	case a.Path != "" && a.Data != "":
		return pipeline.Source{}, apperrors.Newf(apperrors.ErrInvalidOption, "path and data are mutually exclusive")
	case a.Path != "":
		return pipeline.FromPath(a.Path), nil
	case a.Data != "":
		data, err := base64.StdEncoding.DecodeString(a.Data)
		if err != nil {
			return pipeline.Source{}, apperrors.Wrap(err, apperrors.ErrInvalidOption, "data is not valid base64")
		}
		return pipeline.FromBytes(a.Name, data), nil
	}
	return pipeline.Source{}, apperrors.Newf(apperrors.ErrEmptyInput, "path or data is required")
}

type imageProcessArgs struct {
	imageSourceArgs
	Workspace string          `json:"workspace,omitempty"`
	Options   json.RawMessage `json:"options,omitempty"`
}

func (s *Server) handleImageProcess(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a imageProcessArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	src, err := a.source()
	if err != nil {
		return nil, err
	}
	opts, err := s.options(a.Options)
	if err != nil {
		return nil, err
	}
	return s.coord.Process(ctx, src, a.Workspace, opts)
}

type imageProcessBatchArgs struct {
	Paths     []string          `json:"paths,omitempty"`
	Images    []imageSourceArgs `json:"images,omitempty"`
	Workspace string            `json:"workspace,omitempty"`
	Options   json.RawMessage   `json:"options,omitempty"`
}

func (s *Server) handleImageProcessBatch(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a imageProcessBatchArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	sources := make([]pipeline.Source, 0, len(a.Paths)+len(a.Images))
	for _, p := range a.Paths {
		sources = append(sources, pipeline.FromPath(p))
	}
	for i, img := range a.Images {
		src, err := img.source()
		if err != nil {
			return nil, fmt.Errorf("images[%d]: %w", i, err)
		}
		sources = append(sources, src)
	}

	opts, err := s.options(a.Options)
	if err != nil {
		return nil, err
	}
	return s.coord.ProcessBatch(ctx, sources, a.Workspace, opts)
}

type imageValidateArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageValidate(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a imageValidateArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	// An invalid image is still a successful validation; the report says why.
	report, _ := s.coord.Validate(ctx, a.Path)
	return report, nil
}

// === Workspace and Service Handlers ===

type workspaceInfoArgs struct {
	Workspace string `json:"workspace,omitempty"`
}

func (s *Server) handleWorkspaceInfo(args json.RawMessage) (interface{}, error) {
	var a workspaceInfoArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	layout, err := s.coord.Layout(a.Workspace)
	if err != nil {
		return nil, err
	}
	return layout.Info()
}

func (s *Server) handleServiceConfig() interface{} {
	return map[string]interface{}{
		"name":     Name,
		"version":  s.version,
		"settings": s.coord.Config().Settings(),
		"pool":     s.coord.PoolStats(),
	}
}
