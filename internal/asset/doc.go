// Package asset resolves logical asset paths through the tiered policy:
// persistent cache first, the bundled read-only copy as fallback, and the
// remote origin only on an explicit Update. The Resolver holds no state of its
// own; it coordinates the cache tier and the fetcher for each request and
// always ends in exactly one terminal Result. Dispatcher turns those results
// into Messages for an external listener.
package asset
