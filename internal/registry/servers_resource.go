package registry

import "encoding/json"

// ServerSummary is one entry in the hatago://servers resource (spec.md §6).
type ServerSummary struct {
	ID        string   `json:"id"`
	Status    string   `json:"status"`
	Type      string   `json:"type"` // "remote" | "local"
	URL       *string  `json:"url"`
	Command   *string  `json:"command"`
	Tools     []string `json:"tools"`
	Resources []string `json:"resources"`
	Prompts   []string `json:"prompts"`
	Error     *string  `json:"error"`
}

// serversDocument is the top-level shape returned by hatago://servers.
type serversDocument struct {
	Total   int             `json:"total"`
	Servers []ServerSummary `json:"servers"`
}

// RenderServersResource serializes the current server summaries into the
// JSON text served at the internal hatago://servers resource.
func RenderServersResource(servers []ServerSummary) (string, error) {
	doc := serversDocument{Total: len(servers), Servers: servers}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

const ServersResourceURI = "hatago://servers"
