package tabwatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domresume/domstate"
	"github.com/hazyhaar/domresume/kit"
	"github.com/hazyhaar/domresume/resume"
)

// Controller is the set of page operations exposed as MCP tools. *Watcher
// implements it.
type Controller interface {
	Save(ctx context.Context, id string) (resume.Saved, error)
	Clear(ctx context.Context, id string, all bool) error
	AutoResume(ctx context.Context, id string, force *bool) (bool, error)
	Snapshot(ctx context.Context, id string) (domstate.Page, bool, error)
	Reload(ctx context.Context, id string) error
	Pages(ctx context.Context) ([]PageInfo, error)
}

var _ Controller = (*Watcher)(nil)

// RegisterMCP registers the watcher tools on an MCP server.
func (w *Watcher) RegisterMCP(srv *mcp.Server) {
	RegisterMCP(srv, w, w.logger)
}

// RegisterMCP registers the tools of c on an MCP server. Every tool is
// wrapped with kit.Logging.
func RegisterMCP(srv *mcp.Server, c Controller, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	t := tools{c: c, logger: logger}
	t.registerPagesTool(srv)
	t.registerSaveTool(srv)
	t.registerClearTool(srv)
	t.registerAutoResumeTool(srv)
	t.registerSnapshotTool(srv)
	t.registerReloadTool(srv)
}

type tools struct {
	c      Controller
	logger *slog.Logger
}

func (t tools) register(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	kit.RegisterMCPTool(srv, tool, kit.Logging(t.logger, tool.Name)(endpoint), decode)
}

// inputSchema builds a JSON Schema object with type "object".
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

var pageIDProp = map[string]any{"type": "string", "description": "Watched page id"}

type pageRequest struct {
	PageID string `json:"page_id"`
}

func decodePage(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r pageRequest
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	if r.PageID == "" {
		return nil, errors.New("page_id is required")
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

// --- pages ---

func (t tools) registerPagesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domresume_pages",
		Description: "List the watched pages with their storage key and auto-resume flag.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		pages, err := t.c.Pages(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"pages": pages}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	}

	t.register(srv, tool, endpoint, decode)
}

// --- save ---

type saveResponse struct {
	Key     string `json:"key"`
	Path    string `json:"path"`
	Version string `json:"version"`
	Entries int    `json:"entries"`
}

func (t tools) registerSaveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domresume_save",
		Description: "Save the current state of a page so the next reload resumes from it. Switches auto-resume off.",
		InputSchema: inputSchema(map[string]any{"page_id": pageIDProp}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pageRequest)
		saved, err := t.c.Save(ctx, r.PageID)
		if err != nil {
			return nil, err
		}
		return saveResponse{Key: saved.Key, Path: saved.Path, Version: saved.Version, Entries: saved.Page.Len()}, nil
	}

	t.register(srv, tool, endpoint, decodePage)
}

// --- clear ---

type clearRequest struct {
	PageID string `json:"page_id"`
	All    bool   `json:"all,omitempty"`
}

func (t tools) registerClearTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domresume_clear",
		Description: "Remove the saved state of a page, or of every page of its origin.",
		InputSchema: inputSchema(map[string]any{
			"page_id": pageIDProp,
			"all":     map[string]any{"type": "boolean", "description": "Clear every page of the origin"},
		}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*clearRequest)
		if err := t.c.Clear(ctx, r.PageID, r.All); err != nil {
			return nil, err
		}
		return map[string]any{"cleared": true, "all": r.All}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r clearRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.PageID == "" {
			return nil, errors.New("page_id is required")
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	t.register(srv, tool, endpoint, decode)
}

// --- auto_resume ---

type autoResumeRequest struct {
	PageID  string `json:"page_id"`
	Enabled *bool  `json:"enabled,omitempty"`
}

func (t tools) registerAutoResumeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domresume_auto_resume",
		Description: "Switch auto-resume on or off for the origin of a page. Toggles when enabled is omitted.",
		InputSchema: inputSchema(map[string]any{
			"page_id": pageIDProp,
			"enabled": map[string]any{"type": "boolean", "description": "New value; omit to toggle"},
		}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*autoResumeRequest)
		on, err := t.c.AutoResume(ctx, r.PageID, r.Enabled)
		if err != nil {
			return nil, err
		}
		return map[string]any{"enabled": on}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r autoResumeRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.PageID == "" {
			return nil, errors.New("page_id is required")
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	t.register(srv, tool, endpoint, decode)
}

// --- snapshot ---

func (t tools) registerSnapshotTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domresume_snapshot",
		Description: "Return the saved state of a page as selector to element state.",
		InputSchema: inputSchema(map[string]any{"page_id": pageIDProp}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pageRequest)
		page, ok, err := t.c.Snapshot(ctx, r.PageID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return map[string]any{"found": false}, nil
		}
		return map[string]any{"found": true, "state": page}, nil
	}

	t.register(srv, tool, endpoint, decodePage)
}

// --- reload ---

func (t tools) registerReloadTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domresume_reload",
		Description: "Reload a page. Its saved state is applied to the new document.",
		InputSchema: inputSchema(map[string]any{"page_id": pageIDProp}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pageRequest)
		if err := t.c.Reload(ctx, r.PageID); err != nil {
			return nil, err
		}
		return map[string]any{"reloaded": true}, nil
	}

	t.register(srv, tool, endpoint, decodePage)
}
