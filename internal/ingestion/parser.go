// Package ingestion turns uploaded EEG sample files into validated channel maps.
package ingestion

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adhd-assessment-server/internal/domain"
	"gopkg.in/yaml.v3"
)

// Format identifies an upload encoding
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// DefaultMaxBytes bounds a single upload
const DefaultMaxBytes int64 = 10 << 20

// DetectFormat picks the decoder from the file extension
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", domain.NewInvalidEEGDataError("unsupported file type %q (expected .csv, .json or .yaml)", filepath.Ext(filename))
}

// Parser validates EEG uploads
type Parser struct {
	maxBytes int64
}

// NewParser creates a parser; a non-positive limit selects DefaultMaxBytes
func NewParser(maxBytes int64) *Parser {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Parser{maxBytes: maxBytes}
}

// MaxBytes returns the upload limit
func (p *Parser) MaxBytes() int64 {
	return p.maxBytes
}

// ParseReader reads at most MaxBytes from r and parses it
func (p *Parser) ParseReader(filename string, r io.Reader) (domain.ChannelMap, error) {
	data, err := io.ReadAll(io.LimitReader(r, p.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > p.maxBytes {
		return nil, domain.NewInvalidEEGDataError("file exceeds %d bytes", p.maxBytes)
	}
	return p.Parse(filename, data)
}

// Parse decodes data according to the filename's extension and checks all 19 channels.
// Either the full map is returned or a single *domain.InvalidEEGDataError.
func (p *Parser) Parse(filename string, data []byte) (domain.ChannelMap, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	switch format {
	case FormatCSV:
		raw, err = decodeCSV(data)
	case FormatJSON:
		raw, err = decodeJSON(data)
	case FormatYAML:
		raw, err = decodeYAML(data)
	}
	if err != nil {
		return nil, err
	}
	return Validate(raw)
}

// Validate checks that every required channel is present with a finite number.
// Extra keys are ignored.
func Validate(raw map[string]interface{}) (domain.ChannelMap, error) {
	out := make(domain.ChannelMap, len(domain.Channels))
	var missing, invalid []string
	for _, ch := range domain.Channels {
		v, ok := raw[ch]
		if !ok {
			missing = append(missing, ch)
			continue
		}
		f, ok := toFinite(v)
		if !ok {
			invalid = append(invalid, ch)
			continue
		}
		out[ch] = f
	}
	if len(missing) > 0 || len(invalid) > 0 {
		return nil, &domain.InvalidEEGDataError{
			Reason:  "required channels missing or non-numeric",
			Missing: missing,
			Invalid: invalid,
		}
	}
	return out, nil
}

func toFinite(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// decodeCSV zips the header row with the first data row by position
func decodeCSV(data []byte) (map[string]interface{}, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.NewInvalidEEGDataError("file is empty")
	}
	if err != nil {
		return nil, domain.NewInvalidEEGDataError("malformed CSV header: %v", err)
	}
	values, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.NewInvalidEEGDataError("no data row after header")
	}
	if err != nil {
		return nil, domain.NewInvalidEEGDataError("malformed CSV data row: %v", err)
	}

	// columns pair up by position; unpaired trailing cells are ignored
	n := min(len(header), len(values))
	raw := make(map[string]interface{}, n)
	for i, name := range header[:n] {
		name = strings.TrimSpace(name)
		cell := strings.TrimSpace(values[i])
		if f, err := strconv.ParseFloat(cell, 64); err == nil {
			raw[name] = f
		} else {
			raw[name] = cell
		}
	}
	return raw, nil
}

func decodeJSON(data []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, domain.NewInvalidEEGDataError("expected a JSON object of channel values: %v", err)
	}
	if raw == nil {
		return nil, domain.NewInvalidEEGDataError("expected a JSON object of channel values")
	}
	return raw, nil
}

func decodeYAML(data []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, domain.NewInvalidEEGDataError("expected a YAML mapping of channel values: %v", err)
	}
	if raw == nil {
		return nil, domain.NewInvalidEEGDataError("expected a YAML mapping of channel values")
	}
	return raw, nil
}
