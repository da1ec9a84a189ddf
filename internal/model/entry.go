package model

import "time"

// AccessEntry represents a single parsed access-log line.
type AccessEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source"` // originating file path
	Raw       string            `json:"raw"`    // original line text
	Method    string            `json:"method"` // GET, POST, ...
	Path      string            `json:"path"`   // request URI as logged
	Fields    map[string]string `json:"fields,omitempty"`
}

// RawLine is an unparsed line read from a followed file.
type RawLine struct {
	Text   string
	Source string
}

// ViewModel is the field set handed to a page template for one render.
type ViewModel map[string]string
