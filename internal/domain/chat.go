package domain

// Chat roles accepted by the document-chat service.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one conversation turn as sent to the document-chat service.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PageReference is a page citation attached to an assistant reply.
type PageReference struct {
	PageNumber int `json:"pageNumber"`
}
