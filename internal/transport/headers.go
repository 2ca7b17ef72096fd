package transport

// MergeHeaders merges per-request headers on top of the transport's
// configured headers. spec.md §4.1: "per-request header merging with
// user-supplied headers overriding caller headers" — here "caller" is the
// transport's static configuration and "user-supplied" is the per-call
// override, so request-time values always win.
func MergeHeaders(configured, perRequest map[string]string) map[string]string {
	if len(configured) == 0 && len(perRequest) == 0 {
		return nil
	}
	merged := make(map[string]string, len(configured)+len(perRequest))
	for k, v := range configured {
		merged[k] = v
	}
	for k, v := range perRequest {
		merged[k] = v
	}
	return merged
}
