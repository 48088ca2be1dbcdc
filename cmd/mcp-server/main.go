// Package main implements the officedesk MCP server.
//
// The server exposes the task, calendar, client and profile repositories of
// the shared office document as tools. Communicates via stdio JSON-RPC
// (Model Context Protocol).
//
// Configuration is read from ~/.config/officedesk/config.toml (override with
// OFFICEDESK_CONFIG) and the OFFICEDESK_* environment variables. When the
// document cannot be connected at startup, or the connection is lost later,
// the server still runs and every tool call first tries to connect again, so
// a store granted with `officedesk connect` is picked up without a restart.
package main

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/JamesPrial/officedesk/internal/app"
	"github.com/JamesPrial/officedesk/internal/logging"
	"github.com/JamesPrial/officedesk/internal/mcpserver"
)

func run() int {
	sink := logging.NewSink(os.Getenv("OFFICEDESK_LOG_FILE"))
	defer func() { _ = sink.Close() }()
	errLogger := sink.Logger("mcp-server")

	a, err := app.New(app.Options{ConfigPath: os.Getenv("OFFICEDESK_CONFIG"), Sink: sink})
	if err != nil {
		errLogger.Printf("Failed to load configuration: %v", err)
		return 1
	}
	defer func() { _ = a.Close() }()

	if err := a.Connect(context.Background()); err != nil {
		errLogger.Printf("Document not connected: %v", err)
	}

	srv, err := mcpserver.NewServer(mcpserver.Deps{
		Gateway:   a.Gateway,
		Repos:     a.Repos,
		Actor:     a.Config.Actor,
		Reconnect: a.Connect,
		Logger:    errLogger,
	})
	if err != nil {
		errLogger.Printf("Failed to create MCP server: %v", err)
		return 1
	}

	if err := server.ServeStdio(srv, server.WithErrorLogger(errLogger)); err != nil {
		errLogger.Printf("Server error: %v", err)
		return 1
	}

	return 0
}

func main() {
	os.Exit(run())
}
