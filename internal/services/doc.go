// Package services defines the [Catalog] interface for the music catalog and playlist API and implements it for Spotify.
//
// # Catalog Interface
//
// The playlist workflow depends only on [Catalog], so tests swap in a stub server and the UI never talks HTTP directly.
//
// # Spotify Implementation
//
// [SpotifyService] carries no session state. Every call takes the caller's [oauth2.Token] and sets it as the bearer header.
// Calls are throttled with a token bucket from golang.org/x/time/rate and reported to an optional [RequestObserver].
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : no token supplied
//   - [shared.ErrSessionExpired] : the API answered 401, the token is no longer valid
//   - [shared.ErrServiceUnavailable] : transport failure, nothing was received
//   - [APIError] : any other non-2xx status, unwraps to [shared.ErrAPIRequest]
package services
