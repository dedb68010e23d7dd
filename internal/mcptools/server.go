// Package mcptools adapts the orchestrator's eight operations to the Model
// Context Protocol tool surface an LLM agent drives: argument coercion,
// country-default injection, timing capture, and error shaping onto the
// MCP error taxonomy.
package mcptools

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/patentfusion/rrfusion/internal/orchestrator"
	"github.com/patentfusion/rrfusion/pkg/version"
)

// Server is the MCP server for the patent fusion engine. It bridges an LLM
// agent with the orchestrator's lane search, fusion, snippet, and
// provenance operations.
type Server struct {
	mcp    *mcp.Server
	orch   *orchestrator.Orchestrator
	logger *slog.Logger

	// DefaultCountries is injected into a lane_search filter when the
	// caller omits one, so an agent doesn't have to repeat it on every call.
	DefaultCountries []string

	mu sync.RWMutex
}

// NewServer creates a new MCP server over an already-wired orchestrator.
func NewServer(orch *orchestrator.Orchestrator, defaultCountries []string) (*Server, error) {
	if orch == nil {
		return nil, NewInvalidParamsError("orchestrator is required")
	}

	s := &Server{
		orch:             orch,
		logger:           slog.Default(),
		DefaultCountries: defaultCountries,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "rrfusion",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Serve starts the server over the given transport, blocking until ctx is
// canceled or the transport fails. Only stdio is supported: an LLM agent
// drives this server as a subprocess over JSON-RPC on stdin/stdout.
func (s *Server) Serve(ctx context.Context, transport string) error {
	if transport != "" && transport != "stdio" {
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}

	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}

// registerTools registers the eight fusion operations plus representative
// registration with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "lane_search",
		Description: "Run a single retrieval lane (fulltext, semantic, or semantic_alt) against the patent corpus and cache the ranked result as a reusable run.",
	}, s.handleLaneSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "multi_lane_search",
		Description: "Run several retrieval lanes in one call, sequentially and in request order. A lane that errors doesn't block the others — inspect each entry's status and error.",
	}, s.handleMultiLaneSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "blend",
		Description: "Fuse cached lane runs into a new ranked fusion run via reciprocal rank fusion, with optional code-aware and facet-aware boosts. Returns the ranked documents, no-ground-truth quality metrics, and a precision/recall frontier.",
	}, s.handleBlend)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "mutate",
		Description: "Re-blend a fusion run's original source runs with a new recipe. The parent run is never modified; the result is a new run with a parent pointer and extended lineage.",
	}, s.handleMutate)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "peek_snippets",
		Description: "Fetch budget-shaped text excerpts for the top documents of a run, without spending the full publication-fetch budget.",
	}, s.handlePeekSnippets)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_snippets",
		Description: "Fetch text excerpts for an explicit list of document ids.",
	}, s.handleGetSnippets)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_publication",
		Description: "Fetch the full bibliographic record for a single document.",
	}, s.handleGetPublication)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "provenance",
		Description: "Report a run's recipe, source runs, and lineage: how it came to exist.",
	}, s.handleProvenance)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "register_representatives",
		Description: "Attach A/B/C priority labels to documents in a fusion run, reordering the run's read-time presentation without minting a new run.",
	}, s.handleRegisterRepresentatives)

	s.logger.Info("MCP tools registered", slog.Int("count", 9))
}

func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (s *Server) logCall(tool, requestID string, start time.Time, err error) {
	tookMS := time.Since(start).Milliseconds()
	if err != nil {
		s.logger.Warn("tool call failed",
			slog.String("tool", tool),
			slog.String("request_id", requestID),
			slog.Int64("took_ms", tookMS),
			slog.String("error", err.Error()))
		return
	}
	s.logger.Info("tool call completed",
		slog.String("tool", tool),
		slog.String("request_id", requestID),
		slog.Int64("took_ms", tookMS))
}
