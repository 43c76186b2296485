package scan

import (
	"errors"
	"testing"
)

func TestPayloadRoundTrip(t *testing.T) {
	for _, id := range []string{
		"2f1c3a9e-4b7d-4c1e-9a55-0d3b7e2f6a10",
		`quote"and\backslash`,
		"ünïcødé",
	} {
		payload := EncodePayload(id)
		res, err := Decode(payload, FormatText)
		if err != nil {
			t.Fatalf("decode %q: %v", payload, err)
		}
		if res.Kind != KindShare || res.ShareID != id {
			t.Fatalf("round trip of %q gave %+v", id, res)
		}
	}
}

func TestDecodeBareText(t *testing.T) {
	res, err := Decode("s1", FormatText)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Kind != KindShare || res.ShareID != "s1" {
		t.Fatalf("got %+v", res)
	}
}

func TestDecodeJSONWithoutShareID(t *testing.T) {
	raw := `{"other":"x"}`
	res, err := Decode(raw, FormatURL)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.ShareID != raw {
		t.Fatalf("want raw fallback, got %q", res.ShareID)
	}
}

func TestDecodeISBN(t *testing.T) {
	tests := []struct {
		raw    string
		format Format
		want   string
		ok     bool
	}{
		{"978-0-441-17271-9", FormatISBN, "9780441172719", true},
		{"0-8044-2957-x", FormatISBN, "080442957X", true},
		{"12345", FormatISBN, "", false},
		{"9780441172719", FormatProduct, "9780441172719", true},
		{"012345678905", FormatProduct, "", false},
		{"978044117271A", FormatProduct, "", false},
	}
	for _, tt := range tests {
		res, err := Decode(tt.raw, tt.format)
		if !tt.ok {
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Errorf("%s %q: want DecodeError, got %v", tt.format, tt.raw, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s %q: %v", tt.format, tt.raw, err)
			continue
		}
		if res.Kind != KindISBN || res.ISBN != tt.want {
			t.Errorf("%s %q: got %+v, want %s", tt.format, tt.raw, res, tt.want)
		}
	}
}

func TestDecodeEmptyAndUnknown(t *testing.T) {
	if _, err := Decode("   ", FormatText); err == nil {
		t.Fatal("empty text should not decode")
	}
	if _, err := Decode("x", Format("AZTEC")); err == nil {
		t.Fatal("unknown format should not decode")
	}
	if f, err := ParseFormat("qr"); err != nil || f != FormatText {
		t.Fatalf("qr alias: %v %v", f, err)
	}
}
