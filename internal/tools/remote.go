package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/localclaw/claw/internal/config"
	"github.com/localclaw/claw/internal/security"
)

// remoteToolPrefix is the fixed namespace prefix every bridged remote tool
// name carries, ahead of the server name and the tool's own name
// ("<prefix>_<server>_<originalname>", avoiding collisions across servers).
const remoteToolPrefix = "remote"

// RemoteAdapter dials each configured remote-tool server at startup, lists
// its tools, and bridges each one into a local Tool. A server that fails
// to dial is logged and skipped — the agent continues without it.
type RemoteAdapter struct {
	mu      sync.Mutex
	clients map[string]*mcpclient.Client
}

func NewRemoteAdapter() *RemoteAdapter {
	return &RemoteAdapter{clients: make(map[string]*mcpclient.Client)}
}

// Start connects to every server in servers and returns the bridged tools
// ready for registration. Connection failures are logged and the server
// is skipped; this never returns an error for that reason.
func (a *RemoteAdapter) Start(ctx context.Context, servers map[string]config.RemoteToolServerConfig) []Tool {
	var out []Tool
	for name, cfg := range servers {
		bridged, err := a.connect(ctx, name, cfg)
		if err != nil {
			slog.Warn("remote.server.connect_failed", "server", name, "error", err)
			continue
		}
		out = append(out, bridged...)
	}
	return out
}

func (a *RemoteAdapter) connect(ctx context.Context, name string, cfg config.RemoteToolServerConfig) ([]Tool, error) {
	client, err := createRemoteClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	if cfg.Transport != "stdio" {
		if err := client.Start(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("start transport: %w", err)
		}
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "claw", Version: "1.0.0"}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}

	listed, err := client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("list tools: %w", err)
	}

	a.mu.Lock()
	a.clients[name] = client
	a.mu.Unlock()

	bridged := make([]Tool, 0, len(listed.Tools))
	for _, mt := range listed.Tools {
		bridged = append(bridged, &RemoteTool{
			name:        fmt.Sprintf("%s_%s_%s", remoteToolPrefix, name, mt.Name),
			description: mt.Description,
			schema:      inputSchemaToMap(mt.InputSchema),
			origName:    mt.Name,
			client:      client,
		})
	}

	slog.Info("remote.server.connected", "server", name, "transport", cfg.Transport, "tools", len(bridged))
	return bridged, nil
}

// Close shuts down every dialed server connection.
func (a *RemoteAdapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name, c := range a.clients {
		if err := c.Close(); err != nil {
			slog.Debug("remote.server.close_error", "server", name, "error", err)
		}
	}
	a.clients = make(map[string]*mcpclient.Client)
}

func createRemoteClient(cfg config.RemoteToolServerConfig) (*mcpclient.Client, error) {
	switch cfg.Transport {
	case "stdio":
		return mcpclient.NewStdioMCPClient(cfg.Command, nil, cfg.Args...)
	case "http":
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		return mcpclient.NewStreamableHttpClient(cfg.URL, opts...)
	default:
		return nil, fmt.Errorf("unsupported transport: %q", cfg.Transport)
	}
}

func inputSchemaToMap(schema mcpgo.ToolInputSchema) map[string]interface{} {
	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	return m
}

// RemoteTool bridges a single tool exposed by a remote server into the
// local registry surface.
type RemoteTool struct {
	name        string
	description string
	schema      map[string]interface{}
	origName    string
	client      *mcpclient.Client
}

func (t *RemoteTool) Name() string                             { return t.name }
func (t *RemoteTool) Description() string                      { return t.description }
func (t *RemoteTool) ParametersSchema() map[string]interface{} { return t.schema }

// OriginalName is the tool's name as advertised by the remote server,
// before the collision-avoiding prefix was applied.
func (t *RemoteTool) OriginalName() string { return t.origName }

func (t *RemoteTool) PreValidate(args json.RawMessage, policy security.Policy) string {
	if !policy.AllowsExecution() {
		return "read-only mode: remote tool calls are not allowed"
	}
	return ""
}

func (t *RemoteTool) Execute(ctx context.Context, args json.RawMessage, policy security.Policy) (Result, error) {
	var params map[string]interface{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return Result{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
		}
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = t.origName
	req.Params.Arguments = params

	res, err := t.client.CallTool(ctx, req)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("remote call failed: %v", err)}, nil
	}

	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := mcpgo.AsTextContent(c); ok {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(tc.Text)
		}
	}
	output := sb.String()

	if res.IsError {
		return Result{Success: false, Error: output}, nil
	}
	return Result{Success: true, Output: output}, nil
}
