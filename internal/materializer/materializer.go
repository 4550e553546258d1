// Package materializer decodes type-tagged row images into plain items.
package materializer

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/telhawk-systems/ttl-archiver/internal/stream"
)

// IDAttribute is the attribute every archived item must carry.
const IDAttribute = "id"

var (
	ErrMissingImage    = errors.New("prior image is absent")
	ErrMissingID       = errors.New("item has no usable id attribute")
	ErrUnsupportedType = errors.New("unsupported attribute type")
	ErrMalformedValue  = errors.New("malformed attribute value")
)

// MaterializationError reports why a row image could not be decoded.
type MaterializationError struct {
	// Path locates the offending attribute, e.g. "profile.tags[2]". Empty for whole-image faults.
	Path string
	Err  error
}

func (e *MaterializationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("materialize: %v", e.Err)
	}
	return fmt.Sprintf("materialize %s: %v", e.Path, e.Err)
}

func (e *MaterializationError) Unwrap() error {
	return e.Err
}

// Item is a decoded row: attribute name to string, json.Number, []byte, bool, nil,
// []string, []json.Number, [][]byte, []any or map[string]any.
type Item map[string]any

// ID returns the item identifier in its textual form.
func (i Item) ID() (string, bool) {
	switch v := i[IDAttribute].(type) {
	case string:
		return v, v != ""
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

// Materialize decodes a prior image into an Item. The image must be present and
// must yield a non-empty id.
func Materialize(image stream.Image) (Item, error) {
	if image == nil {
		return nil, &MaterializationError{Err: ErrMissingImage}
	}

	item := make(Item, len(image))
	for _, name := range slices.Sorted(maps.Keys(image)) {
		value, err := decodeValue(name, image[name])
		if err != nil {
			return nil, err
		}
		item[name] = value
	}

	if _, ok := item.ID(); !ok {
		return nil, &MaterializationError{Path: IDAttribute, Err: ErrMissingID}
	}
	return item, nil
}

func decodeValue(path string, raw json.RawMessage) (any, error) {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return nil, malformed(path, "not a type-tagged object: %v", err)
	}
	if len(tagged) != 1 {
		return nil, malformed(path, "expected exactly one type tag, got %d", len(tagged))
	}

	for tag, v := range tagged {
		if isNull(v) {
			return nil, malformed(path, "%s value is null", tag)
		}
		switch tag {
		case "S":
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return nil, malformed(path, "S: %v", err)
			}
			return s, nil
		case "N":
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return nil, malformed(path, "N: %v", err)
			}
			return parseNumber(path, s)
		case "B":
			var b []byte
			if err := json.Unmarshal(v, &b); err != nil {
				return nil, malformed(path, "B: %v", err)
			}
			return b, nil
		case "BOOL":
			var b bool
			if err := json.Unmarshal(v, &b); err != nil {
				return nil, malformed(path, "BOOL: %v", err)
			}
			return b, nil
		case "NULL":
			var b bool
			if err := json.Unmarshal(v, &b); err != nil || !b {
				return nil, malformed(path, "NULL must be true")
			}
			return nil, nil
		case "SS":
			var ss []string
			if err := json.Unmarshal(v, &ss); err != nil {
				return nil, malformed(path, "SS: %v", err)
			}
			return ss, nil
		case "NS":
			var ns []string
			if err := json.Unmarshal(v, &ns); err != nil {
				return nil, malformed(path, "NS: %v", err)
			}
			out := make([]json.Number, 0, len(ns))
			for i, s := range ns {
				n, err := parseNumber(path+"["+strconv.Itoa(i)+"]", s)
				if err != nil {
					return nil, err
				}
				out = append(out, n)
			}
			return out, nil
		case "BS":
			var bs [][]byte
			if err := json.Unmarshal(v, &bs); err != nil {
				return nil, malformed(path, "BS: %v", err)
			}
			return bs, nil
		case "L":
			var elems []json.RawMessage
			if err := json.Unmarshal(v, &elems); err != nil {
				return nil, malformed(path, "L: %v", err)
			}
			out := make([]any, 0, len(elems))
			for i, elem := range elems {
				decoded, err := decodeValue(path+"["+strconv.Itoa(i)+"]", elem)
				if err != nil {
					return nil, err
				}
				out = append(out, decoded)
			}
			return out, nil
		case "M":
			var members map[string]json.RawMessage
			if err := json.Unmarshal(v, &members); err != nil {
				return nil, malformed(path, "M: %v", err)
			}
			out := make(map[string]any, len(members))
			for _, name := range slices.Sorted(maps.Keys(members)) {
				decoded, err := decodeValue(path+"."+name, members[name])
				if err != nil {
					return nil, err
				}
				out[name] = decoded
			}
			return out, nil
		default:
			return nil, &MaterializationError{Path: path, Err: fmt.Errorf("%w %q", ErrUnsupportedType, tag)}
		}
	}
	return nil, malformed(path, "no type tag")
}

// DynamoDB number limits.
const (
	maxNumberDigits   = 38
	maxNumberExponent = 125
	minNumberExponent = -130
	maxNumberText     = 256
)

// parseNumber validates a DynamoDB number and returns its canonical decimal form.
func parseNumber(path, s string) (json.Number, error) {
	if len(s) > maxNumberText {
		return "", malformed(path, "number text exceeds %d characters", maxNumberText)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return "", malformed(path, "invalid number %q", s)
	}
	if d.IsZero() {
		return "0", nil
	}

	coef := strings.TrimPrefix(d.Coefficient().String(), "-")
	if len(strings.TrimRight(coef, "0")) > maxNumberDigits {
		return "", malformed(path, "number %q has more than %d significant digits", s, maxNumberDigits)
	}
	// exponent of the leading digit
	magnitude := int64(d.Exponent()) + int64(len(coef)) - 1
	if magnitude > maxNumberExponent || magnitude < minNumberExponent {
		return "", malformed(path, "number %q is outside the supported range", s)
	}
	return json.Number(d.String()), nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func malformed(path, format string, args ...any) error {
	return &MaterializationError{Path: path, Err: fmt.Errorf("%w: "+format, append([]any{ErrMalformedValue}, args...)...)}
}
