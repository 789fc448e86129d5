package answer

// Row is one rendered answer section as shown in the results list.
type Row struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// QueryResult is the structured answer returned by the knowledge service.
type QueryResult struct {
	Success      bool   `json:"success"`
	Error        bool   `json:"error"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Pods         []Pod  `json:"pods"`
}

// Pod is a titled answer section.
type Pod struct {
	ID      string   `json:"id,omitempty"`
	Title   string   `json:"title"`
	Error   bool     `json:"error"`
	Subpods []Subpod `json:"subpods"`
}

// Subpod groups content items inside a pod.
type Subpod struct {
	Title    string    `json:"title,omitempty"`
	Contents []Content `json:"contents"`
}
