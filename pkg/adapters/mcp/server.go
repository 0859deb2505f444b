// Package mcp exposes research, refinement and the run history as Model
// Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rimraf-adi/socrates"
	"github.com/rimraf-adi/socrates/internal/logging"
	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/rimraf-adi/socrates/pkg/ports"
)

const HistoryURI = "socrates://history"

// Engine is the part of socrates.Engine the server drives.
type Engine interface {
	Research(ctx context.Context, req socrates.Request, obs ...domain.Observer) (*socrates.Result, error)
	Refine(ctx context.Context, req socrates.Request, obs ...domain.Observer) (*socrates.Result, error)
}

// Server wraps the engine and exposes it as an MCP server.
type Server struct {
	engine    Engine
	sink      ports.Sink
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer registers the tools. sink may be nil, in which case the history
// tools report that history is disabled.
func NewServer(engine Engine, sink ports.Sink, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		sink:   sink,
		logger: logging.NewNop(),
		mcpServer: server.NewMCPServer("socrates-mcp", socrates.Version,
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio serves on stdin and stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("research",
		mcp.WithDescription("Research a question: plan sub-questions, search the web, analyze each and write a cited report."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The research question")),
		mcp.WithString("depth", mcp.Description("quick, standard, deep or exhaustive"),
			mcp.Enum(domain.DepthQuick, domain.DepthStandard, domain.DepthDeep, domain.DepthExhaustive)),
		mcp.WithNumber("max_iterations", mcp.Description("Override the cycle budget of the depth")),
		mcp.WithString("model", mcp.Description("Model override for this run")),
	), s.handleResearch)

	s.mcpServer.AddTool(mcp.NewTool("refine",
		mcp.WithDescription("Draft an answer to a task and improve it through generator and critic cycles."),
		mcp.WithString("task", mcp.Required(), mcp.Description("The task to answer")),
		mcp.WithNumber("max_iterations", mcp.Description("Number of cycles (default 3)")),
		mcp.WithBoolean("use_tools", mcp.Description("Let the generator search the web and read files")),
		mcp.WithString("model", mcp.Description("Model override for this run")),
	), s.handleRefine)

	s.mcpServer.AddTool(mcp.NewTool("list_history",
		mcp.WithDescription("List recorded runs, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of records (default 20)")),
	), s.handleListHistory)

	s.mcpServer.AddTool(mcp.NewTool("get_history",
		mcp.WithDescription("Return the document of a recorded run."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Record name from list_history")),
	), s.handleGetHistory)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(HistoryURI, "Run history",
		mcp.WithResourceDescription("Summaries of recorded runs"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list, err := s.history(ctx, 0)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(list)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: HistoryURI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

func (s *Server) handleResearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	req := socrates.Request{
		Task:          query,
		Depth:         request.GetString("depth", ""),
		MaxIterations: request.GetInt("max_iterations", 0),
		Model:         request.GetString("model", ""),
	}
	res, err := s.engine.Research(ctx, req, s.progress())
	return s.runResult(res, err), nil
}

func (s *Server) handleRefine(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task, err := request.RequireString("task")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	req := socrates.Request{
		Task:          task,
		MaxIterations: request.GetInt("max_iterations", 3),
		UseTools:      request.GetBool("use_tools", false),
		Model:         request.GetString("model", ""),
	}
	res, err := s.engine.Refine(ctx, req, s.progress())
	return s.runResult(res, err), nil
}

// runResult renders the output with a footer naming the run and its record.
// Partial runs are reported as errors that still carry the partial output.
func (s *Server) runResult(res *socrates.Result, err error) *mcp.CallToolResult {
	if res == nil {
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", err))
	}

	var b strings.Builder
	b.WriteString(res.Output)
	b.WriteString("\n\n---\n")
	fmt.Fprintf(&b, "run: %s", res.RunID)
	if res.State != nil {
		fmt.Fprintf(&b, " | status: %s | iterations: %d", res.State.Status, res.State.Iteration)
	}
	if res.Record != nil {
		fmt.Fprintf(&b, " | record: %s", res.Record.Name)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(&b, "\nwarning: %v", w)
	}

	if err != nil {
		s.logger.Warn("MCP run stopped early", "run_id", res.RunID, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("%v\n\npartial result:\n%s", err, b.String()))
	}
	return mcp.NewToolResultText(b.String())
}

// progress forwards step events to the calling client as log notifications.
// Clients without a session simply do not receive them.
func (s *Server) progress() domain.Observer {
	return domain.ObserverFunc(func(ctx context.Context, e domain.Event) {
		srv := server.ServerFromContext(ctx)
		if srv == nil || e.Type != domain.EventProgress {
			return
		}
		msg := fmt.Sprintf("%s: %s", e.Step, e.Message)
		if err := srv.SendNotificationToClient(ctx, "notifications/message", map[string]any{
			"level":  "info",
			"logger": "socrates",
			"data":   msg,
		}); err != nil {
			s.logger.Debug("MCP progress not delivered", "error", err)
		}
	})
}

func (s *Server) handleListHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.history(ctx, request.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleGetHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.sink == nil {
		return mcp.NewToolResultError("history is disabled"), nil
	}
	rec, err := s.sink.Get(ctx, name)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("no record named %q", name)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history unavailable: %v", err)), nil
	}
	return mcp.NewToolResultText(rec.Document), nil
}

func (s *Server) history(ctx context.Context, limit int) ([]domain.RecordSummary, error) {
	if s.sink == nil {
		return []domain.RecordSummary{}, nil
	}
	list, err := s.sink.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("history unavailable: %w", err)
	}
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}
