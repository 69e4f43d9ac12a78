package vendors

import (
	"net/url"
	"path"
	"strings"

	"github.com/civiclight/civiclight/internal/civic"
)

// ClassifyAttachment derives the attachment type from a URL's extension
// or a vendor-declared format string.
func ClassifyAttachment(rawURL, declared string) civic.AttachmentType {
	if t := byDeclared(declared); t != civic.AttachmentUnknown {
		return t
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return civic.AttachmentUnknown
	}
	switch strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), ".")) {
	case "pdf":
		return civic.AttachmentPDF
	case "doc", "docx", "rtf":
		return civic.AttachmentDoc
	case "xls", "xlsx":
		return civic.AttachmentXLS
	case "ppt", "pptx":
		return civic.AttachmentPPT
	case "csv", "ods":
		return civic.AttachmentSpreadsheet
	}
	// Vendor download endpoints hide the extension but declare it in a
	// query parameter more often than not.
	q := strings.ToLower(u.RawQuery)
	switch {
	case strings.Contains(q, "pdf"):
		return civic.AttachmentPDF
	case strings.Contains(q, "docx") || strings.Contains(q, "doc"):
		return civic.AttachmentDoc
	}
	return civic.AttachmentUnknown
}

func byDeclared(declared string) civic.AttachmentType {
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "pdf", "application/pdf":
		return civic.AttachmentPDF
	case "doc", "docx", "word":
		return civic.AttachmentDoc
	case "xls", "xlsx", "excel":
		return civic.AttachmentXLS
	case "ppt", "pptx", "powerpoint":
		return civic.AttachmentPPT
	case "csv", "spreadsheet":
		return civic.AttachmentSpreadsheet
	}
	return civic.AttachmentUnknown
}

// NewAttachment builds a classified attachment, trimming vendor
// whitespace from names.
func NewAttachment(name, rawURL, declared string) civic.Attachment {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		name = path.Base(rawURL)
	}
	return civic.Attachment{
		Name: name,
		URL:  rawURL,
		Type: ClassifyAttachment(rawURL, declared),
	}
}
