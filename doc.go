/*
Package staticserver is a small HTTP/1.1 server that serves static files
from a root directory.

It speaks just enough of the protocol to serve files: GET requests,
keep-alive connections with Content-Length framed responses, and an
embedded 404 page. Each accepted connection runs in its own goroutine and
the server drains open connections on shutdown.

Quick Start

	static-server --port 8080 --root ./public

Modules

  - app: Application lifecycle, logging and signal handling
  - config: Configuration from defaults, YAML, environment and flags
  - core: Accept loop, connection state machine and graceful shutdown
  - core/http: Request parser, response writer, MIME types
  - core/static: URL path to file resolution below the root
  - core/pools: Buffered reader/writer and copy buffer pools
  - core/observability: Request and connection counters
  - cmd/static-server: Command-line entry point
*/
package staticserver
