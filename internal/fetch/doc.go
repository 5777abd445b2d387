// Package fetch performs single-attempt text retrievals from the two content
// origins: the read-only bundle shipped next to the binary and the remote
// origin that update requests refresh from. Fetches never retry; timeouts and
// transport errors surface as the same *Error so callers only need one
// failure path. The package also exports ReadText, the context-aware whole-file
// reader that the cache tier reuses for its own reads.
package fetch
