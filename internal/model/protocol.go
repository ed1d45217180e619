package model

// HTTP headers of the chunk protocol. A client starts a session by calling a
// chunk route without HeaderSession and keeps echoing the session ID it got
// back for as long as HeaderState reports Partial.
const (
	HeaderState   = "X-Partial-Loader-State"
	HeaderSession = "X-Partial-Loader-Session"
	// HeaderError carries the source fault of a Faulted call on streamed
	// routes, where the status code is already sent.
	HeaderError = "X-Partial-Loader-Error"
)
