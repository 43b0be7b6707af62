// Package qr draws entry tickets: a QR code with rounded modules, an
// optional centred logo and a caption under the code.
package qr

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/fogleman/gg"
	"github.com/nfnt/resize"
	"github.com/skip2/go-qrcode"
)

type Config struct {
	Size          int     // side of the code area in pixels
	QuietZone     int     // margin around the code
	CornerRadius  float64 // 0 draws square modules, 0.5 draws dots
	LogoPath      string
	LogoScale     float64 // share of Size covered by the logo
	Background    color.Color
	Foreground    color.Color
	CaptionHeight int
}

// DefaultConfig renders a 512px code with a two line caption.
func DefaultConfig() Config {
	return Config{
		Size:          512,
		QuietZone:     24,
		CornerRadius:  0.35,
		LogoScale:     0.2,
		Background:    color.White,
		Foreground:    color.Black,
		CaptionHeight: 64,
	}
}

// Ticket is what gets encoded and printed under the code.
type Ticket struct {
	RegistrationID string
	EventID        string
	UserEmail      string
	Caption        []string
}

// Content is the text stored in the code.
func (t Ticket) Content() string {
	return fmt.Sprintf("EVT:%s;REG:%s;EMAIL:%s", t.EventID, t.RegistrationID, t.UserEmail)
}

// Generate renders the ticket as PNG.
func (c Config) Generate(t Ticket) ([]byte, error) {
	recovery := qrcode.Medium
	if c.LogoPath != "" {
		// the logo hides modules in the middle
		recovery = qrcode.High
	}
	code, err := qrcode.New(t.Content(), recovery)
	if err != nil {
		return nil, err
	}
	code.DisableBorder = true

	width := c.Size + 2*c.QuietZone
	captionLines := len(t.Caption)
	height := width
	if captionLines > 0 {
		height += c.CaptionHeight
	}

	dc := gg.NewContext(width, height)
	dc.SetColor(c.Background)
	dc.Clear()

	matrix := code.Bitmap()
	n := len(matrix)
	module := float64(c.Size) / float64(n)
	radius := module * c.CornerRadius

	dc.SetColor(c.Foreground)
	for y, row := range matrix {
		for x, on := range row {
			if !on {
				continue
			}
			px := float64(c.QuietZone) + float64(x)*module
			py := float64(c.QuietZone) + float64(y)*module
			if radius > 0 {
				dc.DrawRoundedRectangle(px, py, module, module, radius)
			} else {
				dc.DrawRectangle(px, py, module, module)
			}
		}
	}
	dc.Fill()

	if c.LogoPath != "" {
		logo, errLoad := gg.LoadImage(c.LogoPath)
		if errLoad != nil {
			return nil, errLoad
		}
		side := uint(float64(c.Size) * c.LogoScale)
		scaled := resize.Resize(side, side, logo, resize.Lanczos3)
		center := float64(width) / 2
		pad := float64(side)/2 + module

		dc.SetColor(c.Background)
		dc.DrawRoundedRectangle(center-pad, center-pad, 2*pad, 2*pad, module)
		dc.Fill()
		dc.DrawImageAnchored(scaled, int(center), int(center), 0.5, 0.5)
	}

	if captionLines > 0 {
		dc.SetColor(c.Foreground)
		lineHeight := float64(c.CaptionHeight) / float64(captionLines)
		for i, line := range t.Caption {
			y := float64(width) + lineHeight*(float64(i)+0.5)
			dc.DrawStringAnchored(line, float64(width)/2, y, 0.5, 0.5)
		}
	}

	return encode(dc.Image())
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
