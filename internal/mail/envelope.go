package mail

// Envelope is one fully rendered message addressed to a single recipient.
type Envelope struct {
	To          string
	Subject     string
	HTML        string
	Text        string
	Tags        []string
	Metadata    map[string]string
	Attachments []string
}

// Receipt is what a transport reports back for an accepted message.
// Both fields are passed through verbatim from the provider.
type Receipt struct {
	MessageID string
	Response  string
}
