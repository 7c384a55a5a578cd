package models

// ContentKind separates pages we pull a title from and everything else.
type ContentKind string

const (
	ContentTextual ContentKind = "textual"
	ContentBinary  ContentKind = "binary"
)

// UnknownSize marks a binary response without a declared Content-Length.
const UnknownSize int64 = -1

// Classification describes the final resource of a resolution.
type Classification struct {
	Kind           ContentKind `json:"kind"`
	MediaType      string      `json:"media_type"`
	RawContentType string      `json:"raw_content_type,omitempty"`
	Size           int64       `json:"size"`
}

// Textual reports whether the resource is eligible for title extraction.
func (c Classification) Textual() bool {
	return c.Kind == ContentTextual
}

// SizeKnown reports whether the server declared a length.
func (c Classification) SizeKnown() bool {
	return c.Size >= 0
}
