package x11

import (
	"fmt"
	"image"
	"strconv"
	"strings"
)

// convertBGRA copies a 32bpp ZPixmap into dst. Depth 32 visuals carry
// premultiplied alpha, which is undone for the non-premultiplied dst; depth 24
// pixels are opaque.
func convertBGRA(dst *image.NRGBA, data []byte, width, height int, depth byte) error {
	if depth != 24 && depth != 32 {
		return fmt.Errorf("unsupported color depth %d", depth)
	}
	if len(data) < width*height*4 {
		return fmt.Errorf("short image data: got %d bytes, want %d", len(data), width*height*4)
	}

	for y := 0; y < height; y++ {
		row := dst.PixOffset(dst.Rect.Min.X, dst.Rect.Min.Y+y)
		for x := 0; x < width; x++ {
			i := (y*width + x) * 4
			o := row + x*4
			alpha := byte(0xff)
			if depth == 32 {
				alpha = data[i+3]
			}
			dst.Pix[o] = unpremultiply(data[i+2], alpha)
			dst.Pix[o+1] = unpremultiply(data[i+1], alpha)
			dst.Pix[o+2] = unpremultiply(data[i], alpha)
			dst.Pix[o+3] = alpha
		}
	}
	return nil
}

// unpremultiply rounds c/a back to a straight channel value. Channels larger
// than their alpha come from clients that ignore premultiplication and clamp.
func unpremultiply(c, a byte) byte {
	switch a {
	case 0xff:
		return c
	case 0:
		return 0
	}
	v := (int(c)*0xff + int(a)/2) / int(a)
	if v > 0xff {
		v = 0xff
	}
	return byte(v)
}

// ParseColor parses "#rrggbb" or "rrggbb" into a 0xRRGGBB pixel
func ParseColor(s string) (uint32, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return 0, fmt.Errorf("invalid color %q: want #rrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return uint32(v), nil
}
