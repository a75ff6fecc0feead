// Package server provides the HTTP server implementation for the conductor API.
//
// The server package implements a RESTful API that hosts conductor documents
// and lets clients drive them remotely. It provides endpoints for loading
// documents, dispatching commands, firing events, activating elements, and
// real-time event streaming.
//
// # Core Components
//
// The server is built around several key components:
//
//   - HTTP Server: Chi-based router with middleware for CORS, logging, and recovery
//   - Document Hosting: Each loaded document runs in its own engine with its own bus
//   - Event Streaming: Server-Sent Events (SSE) and websockets for real-time updates
//   - Command Registry: Introspection of builtin, plugin, and alias commands
//
// # API Endpoints
//
// The server exposes the following main endpoint categories:
//
//   - /document/*: Document lifecycle, rendering, and introspection
//   - /document/{id}/dispatch: Command dispatch against a hosted document
//   - /document/{id}/event: Synthetic document events
//   - /document/{id}/activate: Programmatic element activation
//   - /command/*: Command registry listing and lookup
//   - /event: Real-time event streaming via SSE
//   - /ws/{id}: Bidirectional document control over a websocket
//   - /config: The effective application configuration
//
// # Document Hosting
//
// Documents are the core abstraction. Each hosted document:
//   - Parses its markup into a live DOM with trigger bindings
//   - Owns a dispatch manager seeded from the shared application config
//   - Publishes lifecycle and mutation events on its own bus
//   - Can be replaced in place, rebinding triggers against fresh markup
//
// The server bridges every hosted document's bus into a shared stream
// registry, tagging each event with its document ID so one SSE
// connection can observe many documents.
//
// # Event System
//
// Bus events cross the wire as envelopes of the form
//
//	{"type": "command.dispatched", "documentID": "...", "properties": {...}}
//
// SSE clients receive every envelope as a "message" event and may narrow
// the feed with ?documentID=. Websocket clients additionally receive
// "document.html" frames carrying the re-rendered document after loads
// and mutations.
//
// # Usage Example
//
//	config := server.DefaultConfig()
//	config.Port = 8080
//
//	srv, err := server.New(config, appConfig)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	id, err := srv.Host(markup, "dashboard.html")
//	if err != nil {
//		log.Fatal(err)
//	}
//	_ = id
//
//	// Start server
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
//
// # SSE Implementation
//
// The SSE implementation includes heartbeat support, proper error
// handling, and document-based event filtering so clients only receive
// the updates they asked for.
package server
