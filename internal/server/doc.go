// Package server provides HTTP routing, middleware, and the implicit grant callback for the CLI and TUI.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation registers method patterns ("GET /healthz") on an [http.ServeMux].
//
// # Callback Handler
//
// [CallbackHandler] receives the identity provider's redirect. The access token is in the URL fragment, so the
// callback route answers with a relay page that forwards the fragment to [TokenPath] as a query string. The token
// route delivers the fragment through a channel and only accepts one delivery to prevent replays.
//
// # Callback Server
//
// [CallbackServer] is started for the duration of a login. It listens on the redirect URI's host and port,
// serves the callback routes plus /healthz and, when a registry is supplied, /metrics, and shuts down when the
// login finishes or times out.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
