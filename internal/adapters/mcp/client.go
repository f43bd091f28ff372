package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/example/dialectica/internal/core/research"
	"github.com/example/dialectica/internal/ports/secondary"
)

// Timeouts bounds tool calls. A zero duration leaves the call unbounded.
type Timeouts struct {
	Manifest time.Duration
	PerClass map[research.ToolClass]time.Duration
}

// Client implements secondary.ToolProvider over an MCP session. The
// session is opened on first use and reopened after a transport failure.
type Client struct {
	transport func() sdkmcp.Transport
	timeouts  Timeouts
	version   string

	mu      sync.Mutex
	session *sdkmcp.ClientSession
}

var _ secondary.ToolProvider = (*Client)(nil)

// NewInProcessClient connects to srv through in-memory transports.
func NewInProcessClient(srv *Server, version string, timeouts Timeouts) *Client {
	return &Client{
		transport: func() sdkmcp.Transport {
			serverSide, clientSide := sdkmcp.NewInMemoryTransports()
			if _, err := srv.MCPServer.Connect(context.Background(), serverSide, nil); err != nil {
				return failedTransport{err: err}
			}
			return clientSide
		},
		timeouts: timeouts,
		version:  version,
	}
}

// NewCommandClient spawns argv and speaks MCP over its stdio.
func NewCommandClient(argv []string, version string, timeouts Timeouts) *Client {
	return &Client{
		transport: func() sdkmcp.Transport {
			return &sdkmcp.CommandTransport{Command: exec.Command(argv[0], argv[1:]...)}
		},
		timeouts: timeouts,
		version:  version,
	}
}

// NewHTTPClient connects to a streamable HTTP MCP endpoint.
func NewHTTPClient(endpoint, version string, timeouts Timeouts) *Client {
	return &Client{
		transport: func() sdkmcp.Transport {
			return &sdkmcp.StreamableClientTransport{Endpoint: endpoint}
		},
		timeouts: timeouts,
		version:  version,
	}
}

// Manifest implements secondary.ToolProvider.
func (c *Client) Manifest(ctx context.Context) ([]secondary.ToolDescriptor, error) {
	ctx, cancel := withTimeout(ctx, c.timeouts.Manifest)
	defer cancel()

	session, err := c.sessionFor(ctx)
	if err != nil {
		return nil, err
	}
	res, err := session.ListTools(ctx, nil)
	if err != nil {
		c.reset(session)
		return nil, fmt.Errorf("%w: failed to list tools: %w", secondary.ErrProvider, err)
	}

	tools := make([]secondary.ToolDescriptor, 0, len(res.Tools))
	for _, t := range res.Tools {
		tools = append(tools, secondary.ToolDescriptor{Name: t.Name, Description: t.Description})
	}
	return tools, nil
}

// Execute implements secondary.ToolProvider.
func (c *Client) Execute(ctx context.Context, tool, query string) (*secondary.ToolOutput, error) {
	args, err := arguments(tool, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", secondary.ErrProvider, err)
	}

	ctx, cancel := withTimeout(ctx, c.timeouts.PerClass[research.ClassOf(tool)])
	defer cancel()

	session, err := c.sessionFor(ctx)
	if err != nil {
		return nil, err
	}
	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		c.reset(session)
		return nil, fmt.Errorf("%w: %s call failed: %w", secondary.ErrProvider, tool, err)
	}

	text := firstText(res)
	if res.IsError {
		return nil, fmt.Errorf("%w: %s returned an error: %s", secondary.ErrProvider, tool, text)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: %s returned no content", secondary.ErrProvider, tool)
	}
	slog.DebugContext(ctx, "tool call complete", "tool", tool, "bytes", len(text))
	return &secondary.ToolOutput{Tool: tool, Payload: []byte(text)}, nil
}

// Close ends the current session, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

func (c *Client) sessionFor(ctx context.Context) (*sdkmcp.ClientSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.session, nil
	}

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "dialectica", Version: c.version}, nil)
	session, err := client.Connect(ctx, c.transport(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to tools server: %w", secondary.ErrProvider, err)
	}
	c.session = session
	return session, nil
}

// reset drops session so the next call reconnects, unless another caller
// already replaced it.
func (c *Client) reset(session *sdkmcp.ClientSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == session {
		_ = session.Close()
		c.session = nil
	}
}

// arguments converts a formulated query into the tool's input object.
func arguments(tool, query string) (map[string]any, error) {
	switch tool {
	case research.ToolFinancialFacts, research.ToolDocumentSection:
		kv := research.ParseKeyValues(query)
		year, err := strconv.Atoi(kv["year"])
		if err != nil {
			return nil, fmt.Errorf("query %q has no numeric year", query)
		}
		args := map[string]any{"symbol": kv["symbol"], "year": year}
		if tool == research.ToolFinancialFacts {
			args["concept"] = kv["concept"]
		} else {
			args["section"] = kv["section"]
		}
		return args, nil
	case research.ToolReasoning:
		return map[string]any{"prompt": query}, nil
	case research.ToolFilings:
		return map[string]any{"company": research.ParseKeyValues(query)["company"]}, nil
	default:
		return map[string]any{"query": query}, nil
	}
}

func firstText(res *sdkmcp.CallToolResult) string {
	for _, content := range res.Content {
		if tc, ok := content.(*sdkmcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// failedTransport reports an in-process wiring error on Connect.
type failedTransport struct{ err error }

func (f failedTransport) Connect(context.Context) (sdkmcp.Connection, error) {
	return nil, errors.Join(errors.New("in-process server unavailable"), f.err)
}
