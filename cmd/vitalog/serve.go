package main

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"

	vitalogmcp "github.com/vitalog/vitalog/internal/mcp"
)

// runServe starts the MCP server on stdio. All diagnostics go to stderr;
// stdout belongs to the protocol.
func runServe(args []string) error {
	opts, rest, err := parseCommon(args)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("unknown argument: %s", rest[0])
	}

	resolved, err := resolve(opts)
	if err != nil {
		return err
	}
	s, err := openStore(resolved)
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := buildPipeline(resolved, opts.noLLM)
	if err != nil {
		return err
	}

	srv := vitalogmcp.NewServer(vitalogmcp.ServerConfig{
		Store:    s,
		Pipeline: p,
		Version:  version,
		UserID:   resolved.UserID.Value,
	})

	if err := server.ServeStdio(srv); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
