// Package invite builds add-friend links and renders them as terminal QR codes.
package invite

import (
	"errors"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// Prefix starts every add-friend link.
const Prefix = "chatsync://add/"

// ErrInvalidLink is returned by Parse for anything that is not an add-friend link.
var ErrInvalidLink = errors.New("invalid invite link")

// URL returns the add-friend link for userID.
func URL(userID string) string {
	return Prefix + userID
}

// Parse extracts the user id from an add-friend link.
func Parse(link string) (string, error) {
	id, ok := strings.CutPrefix(strings.TrimSpace(link), Prefix)
	if !ok || id == "" || strings.ContainsAny(id, "/?#") {
		return "", fmt.Errorf("%w: %q", ErrInvalidLink, link)
	}
	return id, nil
}

// Render converts content to a compact QR code drawn with Unicode
// half-block characters, two modules per character row.
func Render(content string) (string, error) {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "", fmt.Errorf("generate qr: %w", err)
	}
	qr.DisableBorder = false

	bitmap := qr.Bitmap()
	rows := len(bitmap)
	cols := 0
	if rows > 0 {
		cols = len(bitmap[0])
	}

	var sb strings.Builder
	for y := 0; y < rows; y += 2 {
		sb.WriteString("  ")
		for x := range cols {
			top := bitmap[y][x]
			bot := y+1 < rows && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String(), nil
}
