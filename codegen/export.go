package codegen

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// Format selects the output encoding of a plan.
type Format string

const (
	FormatCPP  Format = "cpp"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// ParseFormat maps a user supplied name onto a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cpp", "c++":
		return FormatCPP, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	case "cbor":
		return FormatCBOR, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", name)
	}
}

// Encode writes plan to w in the requested format.
func Encode(w io.Writer, plan *Plan, format Format, opts RenderOptions) error {
	if plan == nil {
		return fmt.Errorf("encode: plan is nil")
	}
	switch format {
	case FormatCPP, "":
		return RenderCPP(w, plan, opts)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(plan); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(plan); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	case FormatCBOR:
		em, err := cbor.CoreDetEncOptions().EncMode()
		if err != nil {
			return fmt.Errorf("cbor encoder: %w", err)
		}
		if err := em.NewEncoder(w).Encode(plan); err != nil {
			return fmt.Errorf("encode cbor: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// DecodeCBOR reads a plan previously written with FormatCBOR.
func DecodeCBOR(data []byte) (*Plan, error) {
	var plan Plan
	if err := cbor.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("decode cbor plan: %w", err)
	}
	return &plan, nil
}
