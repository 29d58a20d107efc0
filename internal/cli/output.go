package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Printer renders command results.
type Printer struct {
	w      io.Writer
	format Format
}

func NewPrinter(w io.Writer, format Format) (*Printer, error) {
	switch format {
	case FormatJSON, FormatYAML:
	case "":
		format = FormatJSON
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}

	return &Printer{w: w, format: format}, nil
}

func (p *Printer) Print(v any) error {
	if p.format == FormatYAML {
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding yaml output: %w", err)
		}
		_, err = p.w.Write(data)

		return err
	}

	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding json output: %w", err)
	}

	return nil
}
