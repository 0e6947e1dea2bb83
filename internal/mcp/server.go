// Package mcp provides a Model Context Protocol server for vitalog.
//
// It exposes the interpretation pipeline (log, clarify) and the record
// store (recent, review, stats) as MCP tools, plus store statistics and
// recent entries as MCP resources, over stdio transport for MCP clients
// such as Claude Desktop and Cursor.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vitalog/vitalog/internal/clarify"
	"github.com/vitalog/vitalog/internal/classify"
	"github.com/vitalog/vitalog/internal/pipeline"
	"github.com/vitalog/vitalog/internal/store"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Version  string // version string for MCP server info
	UserID   string // default user when a tool call omits one
}

// dbMu serializes all MCP tool calls that touch the database.
// The mcp-go library dispatches handlers concurrently via goroutines.
// SQLite (even with WAL) supports only one writer at a time, and concurrent
// reads during writes can return stale results. A global mutex ensures
// correct ordering: a log completes before recent/stats see its record.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all vitalog tools and
// resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	defaultUser := cfg.UserID
	if defaultUser == "" {
		defaultUser = "default"
	}

	s := server.NewMCPServer(
		"Vitalog",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	emitter := pipeline.NewEmitter(cfg.Store)
	sessions := newSessionRegistry()

	registerLogTool(s, cfg.Pipeline, emitter, cfg.Store, sessions, defaultUser)
	registerClarifyTool(s, cfg.Pipeline, emitter, sessions)
	registerRecentTool(s, cfg.Store, defaultUser)
	registerReviewTool(s, cfg.Store, defaultUser)
	registerStatsTool(s, cfg.Store)

	registerStatsResource(s, cfg.Store)
	registerRecentResource(s, cfg.Store, defaultUser)

	return s
}

// --- Tools ---

func registerLogTool(s *server.MCPServer, p *pipeline.Pipeline, emitter *pipeline.Emitter, st store.Store, sessions *sessionRegistry, defaultUser string) {
	tool := mcp.NewTool("vitalog_log",
		mcp.WithDescription("Log a wellness activity from natural language (e.g. 'slept 8 hours', 'weight 175', 'ran 5k in 25 minutes'). High-confidence interpretations are stored immediately; ambiguous ones open a clarification session answered via vitalog_clarify."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The activity to log, in the user's own words"),
		),
		mcp.WithString("user",
			mcp.Description("User identifier. Defaults to the server's configured user."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}

		user := defaultUser
		if u, err := req.RequireString("user"); err == nil && u != "" {
			user = u
		}

		in := pipeline.Input{Text: text, UserID: user}
		out := p.Interpret(ctx, in, buildContext(ctx, st, user))

		if out.Action == pipeline.ActionClarify {
			sessions.add(in, out.Session)
			return mcp.NewToolResultText(marshalPayload(clarifyPayload(out.Session))), nil
		}

		record, err := emitter.EmitOutcome(ctx, in, out)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("storing record: %v", err)), nil
		}
		payload := map[string]interface{}{
			"action": out.Action,
			"record": record,
		}
		if out.Action == pipeline.ActionStoreWithFlag {
			payload["message"] = "Stored with a review flag; confidence was too low to trust the interpretation."
		}
		return mcp.NewToolResultText(marshalPayload(payload)), nil
	})
}

func registerClarifyTool(s *server.MCPServer, p *pipeline.Pipeline, emitter *pipeline.Emitter, sessions *sessionRegistry) {
	tool := mcp.NewTool("vitalog_clarify",
		mcp.WithDescription("Answer, navigate, or skip an open clarification session started by vitalog_log. When the last question is answered (or the session is skipped) the record is stored and the session closes."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session identifier returned by vitalog_log"),
		),
		mcp.WithString("action",
			mcp.Description("What to do: answer the current question, go back to the previous one, or skip the whole session (default: answer)"),
			mcp.Enum("answer", "back", "skip"),
		),
		mcp.WithString("answer",
			mcp.Description("The answer to the current question (required when action is answer)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		id, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}

		pending := sessions.get(id)
		if pending == nil {
			return mcp.NewToolResultError(fmt.Sprintf("no open session %q; it may have expired. Log the entry again.", id)), nil
		}
		session := pending.session

		action := "answer"
		if a, err := req.RequireString("action"); err == nil && a != "" {
			action = a
		}

		switch action {
		case "answer":
			answer, err := req.RequireString("answer")
			if err != nil || answer == "" {
				return mcp.NewToolResultError("answer is required when action is answer"), nil
			}
			if err := session.Answer(answer); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("answer rejected: %v", err)), nil
			}
		case "back":
			if err := session.Back(); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("cannot go back: %v", err)), nil
			}
		case "skip":
			if err := session.Skip(); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("cannot skip: %v", err)), nil
			}
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), nil
		}

		if session.State() == clarify.StateActive {
			return mcp.NewToolResultText(marshalPayload(clarifyPayload(session))), nil
		}

		// Terminal: finalize, store, drop the session.
		result, opts, err := p.FinalizeSession(session)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("finalizing session: %v", err)), nil
		}
		record, err := emitter.Emit(ctx, pending.input, result, opts)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("storing record: %v", err)), nil
		}
		sessions.remove(id)

		payload := map[string]interface{}{
			"action": "stored",
			"state":  session.State(),
			"record": record,
		}
		return mcp.NewToolResultText(marshalPayload(payload)), nil
	})
}

func registerRecentTool(s *server.MCPServer, st store.Store, defaultUser string) {
	tool := mcp.NewTool("vitalog_recent",
		mcp.WithDescription("List the most recent activity records for a user, newest first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("user",
			mcp.Description("User identifier. Defaults to the server's configured user."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of records (default: 10, max: 50)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		user := defaultUser
		if u, err := req.RequireString("user"); err == nil && u != "" {
			user = u
		}
		limit := 10
		if v, err := req.RequireFloat("limit"); err == nil && int(v) > 0 {
			limit = int(v)
			if limit > 50 {
				limit = 50
			}
		}

		records, err := st.QueryRecent(ctx, user, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("querying records: %v", err)), nil
		}
		return mcp.NewToolResultText(marshalPayload(map[string]interface{}{
			"records": records,
			"count":   len(records),
		})), nil
	})
}

func registerReviewTool(s *server.MCPServer, st store.Store, defaultUser string) {
	tool := mcp.NewTool("vitalog_review",
		mcp.WithDescription("Work the review queue of low-confidence records. Without resolve_id, lists flagged records; with resolve_id, clears that record's review flag."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("user",
			mcp.Description("User identifier. Defaults to the server's configured user."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of flagged records to list (default: 20)"),
		),
		mcp.WithString("resolve_id",
			mcp.Description("Record ID to mark as reviewed"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		if id, err := req.RequireString("resolve_id"); err == nil && id != "" {
			if err := st.MarkReviewed(ctx, id); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("marking reviewed: %v", err)), nil
			}
			return mcp.NewToolResultText(marshalPayload(map[string]interface{}{
				"resolved": id,
			})), nil
		}

		user := defaultUser
		if u, err := req.RequireString("user"); err == nil && u != "" {
			user = u
		}
		limit := 20
		if v, err := req.RequireFloat("limit"); err == nil && int(v) > 0 {
			limit = int(v)
		}

		records, err := st.ListNeedsReview(ctx, user, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("querying review queue: %v", err)), nil
		}
		return mcp.NewToolResultText(marshalPayload(map[string]interface{}{
			"records": records,
			"count":   len(records),
		})), nil
	})
}

func registerStatsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("vitalog_stats",
		mcp.WithDescription("Get store statistics: total records, per-kind counts, review queue depth, database size."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats error: %v", err)), nil
		}
		return mcp.NewToolResultText(marshalPayload(stats)), nil
	})
}

// --- Helpers ---

// buildContext assembles classifier context from the user's recent history
// so the fallback LLM sees what kinds of entries this user typically logs.
// History failures are not fatal; the classifier just works with less.
func buildContext(ctx context.Context, st store.Store, user string) classify.Context {
	cctx := classify.Context{Profile: classify.Profile{UserID: user}}
	if st == nil {
		return cctx
	}
	records, err := st.QueryRecent(ctx, user, 5)
	if err != nil {
		return cctx
	}
	for _, r := range records {
		cctx.RecentLogs = append(cctx.RecentLogs, classify.RecentLog{
			Kind:     r.Kind,
			RawText:  r.RawText,
			LoggedAt: r.CreatedAt,
		})
	}
	return cctx
}

// clarifyPayload describes an open session: the current question and how
// far along the user is.
func clarifyPayload(session *clarify.Session) map[string]interface{} {
	answered, total := session.Progress()
	payload := map[string]interface{}{
		"action":     pipeline.ActionClarify,
		"session_id": session.ID(),
		"progress":   fmt.Sprintf("%d/%d", answered, total),
	}
	if q, ok := session.Current(); ok {
		payload["question"] = q
	}
	return payload
}

func marshalPayload(v interface{}) string {
	data, _ := json.MarshalIndent(v, "", "  ")
	return string(data)
}
