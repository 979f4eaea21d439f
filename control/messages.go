package control

// Empty is the request of calls without arguments.
type Empty struct{}

// ExtensionRequest names the extension an operation applies to.
type ExtensionRequest struct {
	Name string `json:"name"`
}

// ExtensionInfo describes one registered extension.
type ExtensionInfo struct {
	Name             string   `json:"name"`
	Title            string   `json:"title,omitempty"`
	Version          string   `json:"version,omitempty"`
	Author           string   `json:"author,omitempty"`
	ShortDescription string   `json:"short_description,omitempty"`
	Capabilities     []string `json:"capabilities,omitempty"`
	State            string   `json:"state"` // lifecycle state, e.g. "active"
}

// ListExtensionsResponse lists the extensions in activation order.
type ListExtensionsResponse struct {
	Extensions []ExtensionInfo `json:"extensions"`
}

// StateResponse reports the state of an extension after an operation.
type StateResponse struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// ListCapabilitiesResponse lists the capability names known to the registry.
type ListCapabilitiesResponse struct {
	Capabilities []string `json:"capabilities"`
}

// ListCandidatesRequest names the capability whose candidates are listed.
type ListCandidatesRequest struct {
	Capability string `json:"capability"`
}

// CandidateInfo describes one registered candidate of a capability.
type CandidateInfo struct {
	Name        string   `json:"name"`
	Shortcuts   []string `json:"shortcuts,omitempty"` // alternative names accepted in preference lists
	Description string   `json:"description,omitempty"`
	Priority    int      `json:"priority"` // higher is probed first
}

// ListCandidatesResponse lists the candidates of a capability in probing
// order.
type ListCandidatesResponse struct {
	Capability string          `json:"capability"`
	Candidates []CandidateInfo `json:"candidates"`
}
