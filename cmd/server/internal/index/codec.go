// Package index encodes and decodes the repository's index file (an ordered
// array of template headers) and the per-template content files.
//
// Wire keys follow the files already committed in the repository, so field
// names such as "Department" and "link" are not idiomatic JSON casing.
package index

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DefaultVersion 当前所有模板的版本号（无版本递增逻辑）
const DefaultVersion = "v1.0"

// Header is one index entry.
type Header struct {
	ID          string `json:"id"`
	Department  string `json:"Department"`
	AppCode     string `json:"AppCode"`
	Name        string `json:"name"`
	ContentPath string `json:"link"`
	Version     string `json:"version"`
	CreatedAt   string `json:"createdAt"`
	CreatedBy   string `json:"createdBy"`
	UpdatedAt   string `json:"updatedAt"`
	UpdatedBy   string `json:"updatedBy"`
}

// Example is one input/output pair stored in a content file.
type Example struct {
	UserInput      string `json:"User Input"`
	ExpectedOutput string `json:"Expected Output"`
}

// Content is the body of a content file.
type Content struct {
	MainContent  string    `json:"Main Prompt Content"`
	Instructions string    `json:"Additional Instructions"`
	Examples     []Example `json:"Examples"`
}

// Decode parses index file bytes. Empty input is an empty index; unknown
// fields are ignored and will not survive a subsequent Encode.
func Decode(data []byte) ([]Header, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []Header{}, nil
	}
	var headers []Header
	if err := json.Unmarshal(data, &headers); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if headers == nil {
		headers = []Header{}
	}
	return headers, nil
}

// Encode serializes headers in order. A nil slice encodes as [].
func Encode(headers []Header) ([]byte, error) {
	if headers == nil {
		headers = []Header{}
	}
	data, err := marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}
	return data, nil
}

// DecodeContent parses a content file. Missing keys decode as empty values.
func DecodeContent(data []byte) (*Content, error) {
	var c Content
	if len(bytes.TrimSpace(data)) == 0 {
		c.Examples = []Example{}
		return &c, nil
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	if c.Examples == nil {
		c.Examples = []Example{}
	}
	return &c, nil
}

// EncodeContent serializes a content file. Examples is always written as an array.
func EncodeContent(c Content) ([]byte, error) {
	if c.Examples == nil {
		c.Examples = []Example{}
	}
	data, err := marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}
	return data, nil
}

// Find returns the position of id in headers, or -1.
func Find(headers []Header, id string) int {
	for i := range headers {
		if headers[i].ID == id {
			return i
		}
	}
	return -1
}

// Without returns a copy of headers with the entry at i removed.
func Without(headers []Header, i int) []Header {
	out := make([]Header, 0, len(headers))
	out = append(out, headers[:i]...)
	return append(out, headers[i+1:]...)
}

// marshal 两空格缩进、不转义 HTML、末尾带换行
func marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
