// Package mcpserve exposes the live synchronized view over MCP so that agent
// tooling can inspect the session, read the event log and issue commands
// without talking to the engine's REST API directly.
package mcpserve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/capsight/capsight/engine"
)

// Register adds the capsight tools to an MCP server.
func Register(srv *mcp.Server, eng *engine.Engine) {
	registerSnapshotTool(srv, eng)
	registerEventsTool(srv, eng)
	registerCommandTool(srv, eng)
	registerStatsTool(srv, eng)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// addTool wires a handler that returns a JSON-marshalable value. Handler
// errors become tool errors, never protocol errors.
func addTool(srv *mcp.Server, tool *mcp.Tool, handle func(ctx context.Context, args json.RawMessage) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := handle(ctx, req.Params.Arguments)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func registerSnapshotTool(srv *mcp.Server, eng *engine.Engine) {
	tool := &mcp.Tool{
		Name:        "session_snapshot",
		Description: "Return the last synchronized session snapshot: engine version, modules and their state.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	addTool(srv, tool, func(_ context.Context, _ json.RawMessage) (any, error) {
		snap, ok := eng.Snapshot()
		if !ok {
			return nil, errors.New("no session synchronized yet")
		}
		return snap, nil
	})
}

type eventsReq struct {
	Tag string `json:"tag"`
}

func registerEventsTool(srv *mcp.Server, eng *engine.Engine) {
	tool := &mcp.Tool{
		Name:        "events_list",
		Description: "Return the last synchronized event log, optionally filtered by tag.",
		InputSchema: inputSchema(map[string]any{
			"tag": map[string]any{"type": "string", "description": "Only return events with this exact tag"},
		}, nil),
	}
	addTool(srv, tool, func(_ context.Context, args json.RawMessage) (any, error) {
		var r eventsReq
		if len(args) > 0 {
			if err := json.Unmarshal(args, &r); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
		}
		list, ok := eng.Events()
		if !ok {
			return nil, errors.New("no events synchronized yet")
		}
		if r.Tag == "" {
			return list, nil
		}
		filtered := list[:0:0]
		for _, ev := range list {
			if ev.Tag == r.Tag {
				filtered = append(filtered, ev)
			}
		}
		return filtered, nil
	})
}

type commandReq struct {
	Command string `json:"command"`
}

func registerCommandTool(srv *mcp.Server, eng *engine.Engine) {
	tool := &mcp.Tool{
		Name:        "run_command",
		Description: "Execute an interactive engine command (e.g. 'net.probe on') and wait for its acceptance.",
		InputSchema: inputSchema(map[string]any{
			"command": map[string]any{"type": "string", "description": "Command line to execute"},
		}, []string{"command"}),
	}
	addTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var r commandReq
		if err := json.Unmarshal(args, &r); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if r.Command == "" {
			return nil, errors.New("command is required")
		}
		if err := eng.Run(ctx, r.Command); err != nil {
			return nil, err
		}
		return map[string]any{"accepted": true}, nil
	})
}

func registerStatsTool(srv *mcp.Server, eng *engine.Engine) {
	tool := &mcp.Tool{
		Name:        "sync_stats",
		Description: "Return synchronizer counters: ticks, failures, latency, pause and login state.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	addTool(srv, tool, func(_ context.Context, _ json.RawMessage) (any, error) {
		return eng.Stats(), nil
	})
}
