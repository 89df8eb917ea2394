package domain

import "time"

// Source is a document registered with the document-chat service.
// ID is issued by the service and is opaque to us.
type Source struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	DateAdded time.Time `json:"dateAdded"`
}
