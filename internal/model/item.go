package model

import "time"

// Fields are the free-text values supplied by the uploader. None of them are validated;
// Tag is a descriptive label ("Tafsir", "Fiqh") and is unrelated to the storage category.
type Fields struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      string `json:"author"`
	Tag         string `json:"category"`
}

// StoredItem is a persisted upload as described by its metadata sidecar.
// The JSON layout is the sidecar format and the API response body.
type StoredItem struct {
	ID string `json:"id"`
	Fields
	// ContentType is the storage category (article, book, video, audio).
	ContentType  string    `json:"contentType"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType,omitempty"`
	Size         int64     `json:"size"`
	UploadDate   time.Time `json:"uploadDate"`
	URL          string    `json:"url"`
}
