// Package api implements the HTTP client for the guideline ingestion backend.
//
// # Authentication
//
// Every request carries the stored access token as an Authorization bearer
// header (the refresh call itself is the one exception). When a request comes
// back 401 and has not been retried yet, the client refreshes the access token
// via POST /auth/refresh and resubmits the original request exactly once.
//
// Concurrent 401s share a single in-flight refresh through
// [singleflight.Group]; duplicate refresh calls are never issued. When the
// refresh itself fails the client clears the token store and returns
// [shared.ErrSessionExpired], which callers map to a forced re-login.
//
// # Operations
//
//   - [Client.Login], [Client.Register], [Client.Me], [Client.Logout]
//   - [Client.Upload] : multipart PDF upload returning the processing session id
//   - [Client.FetchResult] : final YAML/JSON payload for a completed session
//   - [Client.Get], [Client.Post] : raw passthrough used by the api command
//
// # Error Handling
//
// Typed sentinels from the shared package:
//   - [shared.ErrSessionExpired] : refresh failed, credentials cleared
//   - [shared.ErrSessionIDMissing] : upload succeeded but no session id returned
//   - [shared.ErrAPIRequest] : transport failure or non-2xx status
package api
