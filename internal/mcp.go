package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer wraps the MCP server and application dependencies
type MCPServer struct {
	app       *App
	mcpServer *server.MCPServer
}

// NewMCPServer creates a new MCP server instance
func NewMCPServer(app *App) *MCPServer {
	mcpServer := server.NewMCPServer(
		"ytscribe-server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s := &MCPServer{
		app:       app,
		mcpServer: mcpServer,
	}

	// Register tools
	s.registerTools()

	return s
}

// registerTools registers all available MCP tools
func (s *MCPServer) registerTools() {
	// resolve_transcript tool
	s.mcpServer.AddTool(mcp.NewTool("resolve_transcript",
		mcp.WithDescription("Resolve the transcript for a YouTube video, falling back through captions, the caption endpoint, browser capture, and finally audio transcription. Returns the transcript text plus which strategy produced it. The audio fallback uses OpenAI Whisper (PAID) and only runs when OPENAI_API_KEY is set."),
		mcp.WithString("url",
			mcp.Description("YouTube video URL or bare video ID"),
			mcp.Required(),
		),
		mcp.WithString("languages",
			mcp.Description("Comma-separated language preference list, e.g. 'en,de'"),
		),
		mcp.WithBoolean("force_proxy",
			mcp.Description("Route every network attempt through the configured proxy"),
		),
	), s.handleResolveTranscript)

	// get_video_metadata tool
	s.mcpServer.AddTool(mcp.NewTool("get_video_metadata",
		mcp.WithDescription("Fetch video metadata including caption availability. Useful to gauge whether resolve_transcript will succeed cheaply (captions present) or fall through to paid transcription."),
		mcp.WithString("url",
			mcp.Description("YouTube video URL or bare video ID"),
			mcp.Required(),
		),
	), s.handleGetMetadata)

	// pipeline_status tool
	s.mcpServer.AddTool(mcp.NewTool("pipeline_status",
		mcp.WithDescription("Report pipeline health: circuit breaker state, proxy configuration, enabled strategies, and attempt counters."),
	), s.handlePipelineStatus)
}

// handleResolveTranscript implements the resolve_transcript tool
func (s *MCPServer) handleResolveTranscript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url parameter is required and must be a string"), nil
	}

	_, videoID := ParseArg(url)
	req := &TranscriptRequest{
		VideoID:    videoID,
		Languages:  s.app.Config().Languages,
		ForceProxy: request.GetBool("force_proxy", false),
	}
	if langs := request.GetString("languages", ""); langs != "" {
		req.Languages = splitLanguages(langs)
	}

	result, err := s.app.ResolveTranscript(ctx, req)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("resolve error", err), nil
	}
	if !result.Found() && result.Source != SourceCache {
		return mcp.NewToolResultError(fmt.Sprintf("no transcript could be obtained for %s; every strategy was exhausted", videoID)), nil
	}

	var buf strings.Builder
	buf.WriteString(fmt.Sprintf("Source: %s\n", result.Source))
	if result.Elapsed > 0 {
		buf.WriteString(fmt.Sprintf("Elapsed: %dms\n", result.ElapsedMS()))
	}
	buf.WriteString("\n")
	buf.WriteString(result.Text)

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(buf.String())},
	}, nil
}

// handleGetMetadata implements the get_video_metadata tool
func (s *MCPServer) handleGetMetadata(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url parameter is required and must be a string"), nil
	}

	_, videoID := ParseArg(url)
	metadata, err := s.app.Metadata(ctx, videoID)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("metadata error", err), nil
	}

	var buf strings.Builder
	buf.WriteString(fmt.Sprintf("Title: %s\n", metadata.Title))
	buf.WriteString(fmt.Sprintf("Channel: %s\n", metadata.Channel))
	buf.WriteString(fmt.Sprintf("Duration: %.0f seconds\n", metadata.Duration))
	buf.WriteString(fmt.Sprintf("Has Captions: %t\n", metadata.HasCaptions))

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(buf.String())},
	}, nil
}

// handlePipelineStatus implements the pipeline_status tool
func (s *MCPServer) handlePipelineStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report := s.app.Status()
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return mcp.NewToolResultErrorFromErr("encoding status", err), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
	}, nil
}

// splitLanguages parses a comma-separated language list, dropping blanks.
func splitLanguages(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Start starts the MCP server using the specified transport
func (s *MCPServer) Start(ctx context.Context, transport string, port int) error {
	if transport == "http" {
		httpServer := server.NewStreamableHTTPServer(s.mcpServer)
		addr := fmt.Sprintf(":%d", port)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return httpServer.Start(addr)
	}

	// Default to stdio transport
	return server.ServeStdio(s.mcpServer)
}

// GetServer returns the underlying MCP server for advanced configuration
func (s *MCPServer) GetServer() *server.MCPServer {
	return s.mcpServer
}
