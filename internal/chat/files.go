package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxFileChars = 10000

// Attachment is an uploaded file reduced to the text the model sees.
type Attachment struct {
	Name        string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Text        string `json:"-"`
}

type FileTooLargeError struct {
	Name  string
	Limit int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("File %s exceeds %s limit", e.Name, formatBytes(e.Limit))
}

// CheckFileSize rejects a file larger than limit. A non-positive limit
// disables the check.
func CheckFileSize(name string, size, limit int64) error {
	if limit > 0 && size > limit {
		return &FileTooLargeError{Name: name, Limit: limit}
	}
	return nil
}

// DescribeFile keeps the leading text of text and json uploads and notes
// anything else by type and size.
func DescribeFile(name, contentType string, data []byte) Attachment {
	a := Attachment{Name: name, ContentType: contentType, Size: int64(len(data))}

	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "text") || strings.Contains(ct, "json"):
		if !utf8.Valid(data) {
			a.Text = fmt.Sprintf("File: %s (binary file, %d bytes)", name, a.Size)
			return a
		}
		a.Text = fmt.Sprintf("File: %s\n%s", name, truncateRunes(string(data), maxFileChars))
	default:
		a.Text = fmt.Sprintf("File: %s (%s, %d bytes)", name, contentType, a.Size)
	}
	return a
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

func formatBytes(n int64) string {
	const (
		mb = 1024 * 1024
		gb = 1024 * mb
	)
	switch {
	case n >= gb && n%gb == 0:
		return fmt.Sprintf("%dGB", n/gb)
	case n >= mb:
		return fmt.Sprintf("%dMB", n/mb)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func attachedSuffix(files []Attachment) string {
	if len(files) == 0 {
		return ""
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return "\n\n[Attached files: " + strings.Join(names, ", ") + "]"
}
