package answer

// ContentKind tags the representation carried by a Content item.
type ContentKind string

const (
	KindPlainText ContentKind = "plaintext"
	KindImage     ContentKind = "image"
	KindMathML    ContentKind = "mathml"
	KindSound     ContentKind = "sound"
	KindUnknown   ContentKind = "unknown"
)

// Content is a single item of a subpod. Kind decides which payload field is set:
// Text for plaintext and mathml, URL/Alt for image and sound, Raw for unknown.
type Content struct {
	Kind ContentKind `json:"kind"`
	Text string      `json:"text,omitempty"`
	URL  string      `json:"url,omitempty"`
	Alt  string      `json:"alt,omitempty"`
	Name string      `json:"name,omitempty"`
	Raw  string      `json:"raw,omitempty"`
}

// PlainText builds a plaintext content item.
func PlainText(text string) Content {
	return Content{Kind: KindPlainText, Text: text}
}

// Image builds an image content item.
func Image(url, alt string) Content {
	return Content{Kind: KindImage, URL: url, Alt: alt}
}

// Unknown wraps a content representation this package does not model.
func Unknown(name, raw string) Content {
	return Content{Kind: KindUnknown, Name: name, Raw: raw}
}
