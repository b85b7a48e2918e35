package sandbox

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Format selects the artifact encoding.
type Format string

const (
	// FormatJSON writes one indented JSON array.
	FormatJSON Format = "json"
	// FormatNDJSON writes one patient document per line.
	FormatNDJSON Format = "ndjson"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatNDJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want json or ndjson)", s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatNDJSON {
		return "application/x-ndjson"
	}
	return "application/json"
}

// Export writes the corpus to w in format f.
func (c *Corpus) Export(w io.Writer, f Format) error {
	if f == FormatNDJSON {
		return c.ExportNDJSON(w)
	}
	return c.ExportJSON(w)
}

// ExportJSON writes the corpus as a single indented JSON array.
func (c *Corpus) ExportJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(c.Documents()); err != nil {
		return fmt.Errorf("encoding corpus: %w", err)
	}
	return nil
}

// ExportNDJSON writes each patient document as one JSON line.
func (c *Corpus) ExportNDJSON(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, doc := range c.Documents() {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encoding patient %s: %w", doc.PatientID, err)
		}
		if _, err := bw.Write(data); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
