// Package pipeline implements the shared request pipeline every transport
// dispatches into.
//
// A Pipeline is an ordered stack of [Middleware] wrapped around a router
// that maps (method, URL) to a [Handler]. For HTTP(S) the URL is the request
// path; for the channel transport it is the event name and the method is
// api.MethodSocket. Any error or panic that escapes a handler is passed to
// the terminal [ErrorHandler] registered with Catch, which turns it into a
// response for that request only.
//
// Setup is single-threaded: Use, Handle, and Catch are called while the web
// surface initializes, and Seal freezes the pipeline before any transport
// starts. Dispatch is safe for concurrent use.
package pipeline
