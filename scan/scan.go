// Package scan turns raw barcode reads into either an ISBN or a share id, and
// builds the payload shown in a share QR code.
package scan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Format is the barcode value type reported by the scanner.
type Format string

const (
	FormatISBN    Format = "ISBN"
	FormatProduct Format = "PRODUCT"
	FormatText    Format = "TEXT"
	FormatURL     Format = "URL"
)

// ParseFormat accepts the format names case-insensitively. "QR" is an alias for TEXT.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToUpper(strings.TrimSpace(s))); f {
	case FormatISBN, FormatProduct, FormatText, FormatURL:
		return f, nil
	case "QR":
		return FormatText, nil
	}
	return "", &DecodeError{Raw: s, Reason: "unsupported barcode format"}
}

type Kind int

const (
	KindISBN Kind = iota + 1
	KindShare
)

func (k Kind) String() string {
	switch k {
	case KindISBN:
		return "isbn"
	case KindShare:
		return "share"
	}
	return "unknown"
}

// Result is what a scan resolved to. Exactly one of ISBN and ShareID is set.
type Result struct {
	Kind    Kind   `json:"-"`
	ISBN    string `json:"isbn,omitempty"`
	ShareID string `json:"shareId,omitempty"`
}

// DecodeError means the scanned value cannot be used.
type DecodeError struct {
	Raw    string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode scan %q: %s", e.Raw, e.Reason)
}

type sharePayload struct {
	ShareID string `json:"shareId"`
}

// EncodePayload returns the QR content for a share: {"shareId":"<id>"}.
func EncodePayload(shareID string) string {
	b, _ := json.Marshal(sharePayload{ShareID: shareID})
	return string(b)
}

// Decode classifies raw according to the scanner's format.
func Decode(raw string, format Format) (Result, error) {
	switch format {
	case FormatISBN:
		isbn := SanitizeISBN(raw)
		if !IsValidISBN(isbn) {
			return Result{}, &DecodeError{Raw: raw, Reason: "not an ISBN"}
		}
		return Result{Kind: KindISBN, ISBN: isbn}, nil
	case FormatProduct:
		ean := strings.TrimSpace(raw)
		if len(ean) != 13 || !allDigits(ean) {
			return Result{}, &DecodeError{Raw: raw, Reason: "product code is not a 13 digit EAN"}
		}
		return Result{Kind: KindISBN, ISBN: ean}, nil
	case FormatText, FormatURL:
		id := shareIDFrom(raw)
		if id == "" {
			return Result{}, &DecodeError{Raw: raw, Reason: "empty share code"}
		}
		return Result{Kind: KindShare, ShareID: id}, nil
	}
	return Result{}, &DecodeError{Raw: raw, Reason: "unsupported barcode format"}
}

// shareIDFrom reads the shareId field of a JSON payload, falling back to the
// whole value for bare-string codes.
func shareIDFrom(raw string) string {
	raw = strings.TrimSpace(raw)
	var p sharePayload
	if err := json.Unmarshal([]byte(raw), &p); err == nil && p.ShareID != "" {
		return p.ShareID
	}
	return raw
}

// SanitizeISBN drops everything but digits, keeping a trailing X check digit.
func SanitizeISBN(isbn string) string {
	isbn = strings.TrimSpace(isbn)
	var cleaned strings.Builder
	for i, r := range isbn {
		switch {
		case r >= '0' && r <= '9':
			cleaned.WriteRune(r)
		case (r == 'X' || r == 'x') && i == len(isbn)-1:
			cleaned.WriteByte('X')
		}
	}
	return cleaned.String()
}

// IsValidISBN reports whether a sanitized value has an ISBN-10 or ISBN-13 length.
func IsValidISBN(cleaned string) bool {
	switch len(cleaned) {
	case 13:
		return allDigits(cleaned)
	case 10:
		return allDigits(cleaned[:9])
	}
	return false
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
