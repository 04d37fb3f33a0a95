package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/distill/config"
	"github.com/use-agent/distill/models"
	"github.com/use-agent/distill/pipeline"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the MCP protocol; logs go to stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	p, err := pipeline.FromConfig(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise pipeline: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()

	s := server.NewMCPServer(
		"distill",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	extractPageTool := mcp.NewTool("extract_page",
		mcp.WithDescription("Scrape a web page, extract the requested fields with an LLM, and save the result as JSON and Excel. Returns the run report with artifact paths and the extracted data."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the web page to extract from"),
		),
		mcp.WithArray("fields",
			mcp.Description("Field names to extract (default: title, type, release_year, genre, rating, cast, synopsis)"),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("max_chars",
			mcp.Description("Characters of page text sent to the model (default: 3000)"),
		),
	)
	s.AddTool(extractPageTool, handleExtractPage(p))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// handleExtractPage runs the pipeline in-process for one tool call.
func handleExtractPage(p *pipeline.Pipeline) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		report, err := p.Run(ctx, models.RunRequest{
			URL:      url,
			Fields:   request.GetStringSlice("fields", nil),
			MaxChars: request.GetInt("max_chars", 0),
		})
		if err != nil {
			return mcp.NewToolResultError(models.AsPipelineError(err).Error()), nil
		}

		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to format report: %v", err)), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}
