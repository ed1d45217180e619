// Package engine runs partial loading sessions on behalf of the API. It
// keeps live loaders between calls, records every call in the store,
// publishes session events to subscribers and expires abandoned sessions.
package engine
