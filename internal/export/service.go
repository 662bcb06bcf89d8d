package export

import (
	"context"
	"fmt"
	"html/template"

	"opsdesk/api/internal/markdown"
	"opsdesk/api/internal/store"
)

type converter func(ctx context.Context, html, title string) (*Result, error)

type Service struct {
	pdf  converter
	docx converter
}

func NewService() *Service {
	return &Service{pdf: exportPDF, docx: exportDOCX}
}

// Export renders doc in the requested format. Content HTML is re-derived
// from the markdown so exports never use a stale cached rendering.
func (s *Service) Export(ctx context.Context, doc store.Document, format Format) (*Result, error) {
	html, err := RenderDocumentHTML(TemplateData{
		Title:       doc.Title,
		Summary:     doc.Summary,
		Category:    doc.Category,
		Status:      string(doc.Status),
		Tags:        doc.Tags,
		Author:      doc.AuthorName,
		UpdatedAt:   doc.UpdatedAt,
		ContentHTML: template.HTML(markdown.ToHTML(doc.Content)),
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(doc.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return s.pdf(ctx, html, doc.Title)
	case FormatDOCX:
		return s.docx(ctx, html, doc.Title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
