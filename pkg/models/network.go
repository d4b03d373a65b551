package models

// NetworkTransaction is the consolidated record of one HTTP request/response
// pair assembled from possibly partial protocol messages.
type NetworkTransaction struct {
	RequestID       string            `json:"request_id"`
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	ResourceType    string            `json:"type,omitempty"`
	Status          int               `json:"status,omitempty"`
	StatusText      string            `json:"status_text,omitempty"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	PostData        any               `json:"post_data,omitempty"`
	ResponseBody    string            `json:"response_body,omitempty"`
	SetCookies      []string          `json:"set_cookies,omitempty"`
	MimeType        string            `json:"mime_type,omitempty"`
	ErrorText       string            `json:"error_text,omitempty"`
	Failed          bool              `json:"failed"`
	Timestamp       int64             `json:"timestamp"`
}

// Cookie is one browser cookie record as reported by a full cookie poll.
type Cookie struct {
	Domain   string  `json:"domain"`
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// CookieModification pairs the previous and current value of a cookie whose
// value changed between two polls.
type CookieModification struct {
	Old Cookie `json:"old"`
	New Cookie `json:"new"`
}
