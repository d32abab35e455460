package slack

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/infrastructure/resilience"
)

const DefaultServerURL = "https://server.smithery.ai/@smithery-ai/slack/mcp"

type Config struct {
	ServerURL string
	BotToken  string
	APIKey    string
	Version   string
}

type session interface {
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

type dialFunc func(ctx context.Context) (session, error)

// Client exposes the Slack MCP server tools. The connection is opened on first use.
type Client struct {
	dial     dialFunc
	executor *resilience.Executor

	mu      sync.Mutex
	session session
}

func New(cfg Config) (*Client, error) {
	endpoint, err := BuildServerURL(cfg)
	if err != nil {
		return nil, err
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	return &Client{dial: func(ctx context.Context) (session, error) {
		return connect(ctx, endpoint, version)
	}}, nil
}

func newWithDialer(dial dialFunc) *Client {
	return &Client{dial: dial}
}

func (c *Client) WithResilience(executor *resilience.Executor) *Client {
	c.executor = executor
	return c
}

// BuildServerURL encodes the bot token as url-safe base64 JSON in the config parameter.
func BuildServerURL(cfg Config) (string, error) {
	base := cfg.ServerURL
	if base == "" {
		base = DefaultServerURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse mcp server url: %w", err)
	}

	configJSON, err := json.Marshal(map[string]string{"token": cfg.BotToken})
	if err != nil {
		return "", fmt.Errorf("encode mcp config: %w", err)
	}
	q := u.Query()
	q.Set("config", base64.URLEncoding.EncodeToString(configJSON))
	if cfg.APIKey != "" {
		q.Set("api_key", cfg.APIKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func connect(ctx context.Context, endpoint, version string) (session, error) {
	cli, err := mcpclient.NewStreamableHttpClient(endpoint)
	if err != nil {
		return nil, fmt.Errorf("create mcp client: %w", err)
	}
	if err := cli.Start(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("start mcp client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "museum-docent", Version: version}
	if _, err := cli.Initialize(ctx, initReq); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("initialize mcp session: %w", err)
	}
	return cli, nil
}

func (c *Client) current(ctx context.Context) (session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return c.session, nil
	}
	s, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.session = s
	return s, nil
}

// reset drops a broken session so the next call reconnects.
func (c *Client) reset(s session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == s {
		_ = s.Close()
		c.session = nil
	}
}

func (c *Client) ListTools(ctx context.Context) ([]domain.ToolDefinition, error) {
	result, err := resilience.Do(ctx, c.executor, "mcp.list_tools", func(ctx context.Context) (*mcp.ListToolsResult, error) {
		s, err := c.current(ctx)
		if err != nil {
			return nil, err
		}
		res, err := s.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			c.reset(s)
			return nil, err
		}
		return res, nil
	}, classifyError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("mcp list tools", err)
	}

	tools := make([]domain.ToolDefinition, 0, len(result.Tools))
	for _, tool := range result.Tools {
		schema, err := inputSchema(tool)
		if err != nil {
			return nil, fmt.Errorf("tool %s schema: %w", tool.Name, err)
		}
		tools = append(tools, domain.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}
	return tools, nil
}

func inputSchema(tool mcp.Tool) (map[string]any, error) {
	var raw []byte
	if len(tool.RawInputSchema) > 0 {
		raw = tool.RawInputSchema
	} else {
		encoded, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	schema := map[string]any{}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	return schema, nil
}

// CallTool runs a remote tool and returns its text content joined by newlines.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	result, err := resilience.Do(ctx, c.executor, "mcp.call_tool", func(ctx context.Context) (*mcp.CallToolResult, error) {
		s, err := c.current(ctx)
		if err != nil {
			return nil, err
		}
		req := mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = args
		res, err := s.CallTool(ctx, req)
		if err != nil {
			c.reset(s)
			return nil, err
		}
		return res, nil
	}, classifyError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("mcp call "+name, err)
	}

	text := contentText(result.Content)
	if result.IsError {
		return "", fmt.Errorf("mcp tool %s failed: %s", name, text)
	}
	return text, nil
}

func contentText(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, item := range content {
		switch v := item.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		}
	}
	return strings.Join(parts, "\n")
}

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
