package rest

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"strings"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// writeMultipart encodes parts as a multipart/form-data body, in order.
func writeMultipart(parts []Part) ([]byte, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, p := range parts {
		if err := writePart(writer, p); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return body.Bytes(), writer.FormDataContentType(), nil
}

func writePart(writer *multipart.Writer, p Part) error {
	data := p.Data
	if p.Path != "" {
		content, err := os.ReadFile(p.Path)
		if err != nil {
			return fmt.Errorf("failed to read file for field %s: %w", p.Name, err)
		}
		data = content
	}

	header := make(textproto.MIMEHeader)
	disposition := fmt.Sprintf(`form-data; name="%s"`, quoteEscaper.Replace(p.Name))
	if p.FileName != "" {
		disposition += fmt.Sprintf(`; filename="%s"`, quoteEscaper.Replace(p.FileName))
	}
	header.Set("Content-Disposition", disposition)
	if p.MimeType != "" {
		header.Set("Content-Type", p.MimeType)
	}

	w, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create part %s: %w", p.Name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write part %s: %w", p.Name, err)
	}
	return nil
}
