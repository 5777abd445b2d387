// Package server hosts the Fiber HTTP service that exposes asset resolution:
// GET /assets/<path> runs a tiered read, POST /assets/<path> triggers a remote
// refresh. Each request is tagged with an X-Request-ID, routed through the
// asset dispatcher, and answered with the dispatcher's terminal message.
// Diagnostics live under /-/ and are registered by the routes subpackage.
package server
