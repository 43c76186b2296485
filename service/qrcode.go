package service

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultQRSize is the PNG edge length in pixels.
const DefaultQRSize = 320

// RenderQR encodes payload as a PNG.
func RenderQR(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}

// TerminalQR renders payload with half-height block characters for a terminal.
func TerminalQR(payload string) (string, error) {
	q, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("render qr: %w", err)
	}
	return q.ToSmallString(false), nil
}
