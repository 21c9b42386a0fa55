package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ca-srg/halalfinder/internal/metrics"
	"github.com/ca-srg/halalfinder/internal/types"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var mcpTracer = otel.Tracer("halalfinder/mcpserver")

// RestaurantSearchHandler wraps RestaurantSearchToolAdapter as an SDK tool handler
type RestaurantSearchHandler struct {
	adapter *RestaurantSearchToolAdapter
}

// NewRestaurantSearchHandler creates the SDK handler
func NewRestaurantSearchHandler(adapter *RestaurantSearchToolAdapter) *RestaurantSearchHandler {
	return &RestaurantSearchHandler{adapter: adapter}
}

// GetSDKToolDefinition returns the tool definition to register
func (h *RestaurantSearchHandler) GetSDKToolDefinition() *mcp.Tool {
	return h.adapter.GetToolDefinition()
}

// HandleSDKToolCall runs one search. Search failures are reported as error
// results carrying the user-facing message, not as protocol errors.
func (h *RestaurantSearchHandler) HandleSDKToolCall(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metrics.RecordInvocation(metrics.ModeMCP)

	start := time.Now()
	token := uuid.NewString()
	ctx = types.WithRunToken(ctx, token)

	ctx, span := mcpTracer.Start(ctx, "mcp.tool_call")
	defer span.End()
	span.SetAttributes(
		attribute.String("mcp.tool", h.adapter.ToolName()),
		attribute.String("search.run_token", token),
	)
	if ip := clientIPFrom(ctx); ip != "" {
		span.SetAttributes(attribute.String("client.address", ip))
	}

	var raw json.RawMessage
	if req != nil && req.Params != nil {
		raw = req.Params.Arguments
	}

	args, err := parseArgs(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid arguments")
		recordMCPMetrics(ctx, h.metricAttrs("invalid"), time.Since(start), 0, string(types.ErrorTypeValidation))
		return errorResult(err.Error(), ""), nil
	}

	inputKind := "coordinate"
	if args.Address != "" {
		inputKind = "address"
	}
	attrs := h.metricAttrs(inputKind)

	response, err := h.adapter.Search(ctx, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(types.ErrorTypeOf(err)))
		h.adapter.logger.Printf("search failed (run %s): %v", token, err)
		recordMCPMetrics(ctx, attrs, time.Since(start), 0, string(types.ErrorTypeOf(err)))

		var se *types.SearchError
		suggestion := ""
		if errors.As(err, &se) {
			suggestion = se.Suggestion
		}
		return errorResult(types.DisplayMessage(err), suggestion), nil
	}

	body, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode response")
		recordMCPMetrics(ctx, attrs, time.Since(start), 0, "encode")
		return nil, fmt.Errorf("failed to serialize response: %w", err)
	}

	span.SetAttributes(attribute.Int("search.results", response.Count))
	recordMCPMetrics(ctx, attrs, time.Since(start), response.Count, "")
	h.adapter.logger.Printf("search completed (run %s): %d restaurants in %v", token, response.Count, time.Since(start))

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
	}, nil
}

func (h *RestaurantSearchHandler) metricAttrs(inputKind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("mcp.tool", h.adapter.ToolName()),
		attribute.String("search.input", inputKind),
	}
}

func errorResult(message, suggestion string) *mcp.CallToolResult {
	text := message
	if suggestion != "" {
		text += "\n" + suggestion
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
