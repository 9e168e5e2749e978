// Package server hosts the short-lived HTTP endpoint that completes the Google OAuth consent flow.
//
// # Callback Flow
//
// `gpyt auth login` builds an [OAuthHandler] for the configured redirect URI, binds it with [Listen] on the
// configured host and port, opens the consent page, and blocks in [CallbackServer.Wait]. The handler checks
// the state token, exchanges the code using the request context, renders a small confirmation page, and
// delivers exactly one [OAuthResult]. The server shuts down as soon as Wait returns.
//
// # Router
//
// [BasicRouter] registers method patterns on [http.ServeMux] and wraps each handler with [Middleware].
// The first middleware passed to Use is the outermost. [Recover] and [RequestLogger] are installed by Listen.
package server
