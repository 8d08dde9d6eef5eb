package external

import "errors"

// ErrUpstreamFetch wraps every failure to obtain data from a market-data
// provider: transport errors, non-200 responses and malformed payloads.
var ErrUpstreamFetch = errors.New("upstream fetch failed")
