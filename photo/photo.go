// Package photo validates the photos attached to attendance records and shrinks them so that a
// month of records still fits in one Firestore document.
package photo

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/jpeg"
	_ "image/png" // register the PNG decoder
	"net/http"
	"strings"

	"attendserver/apperr"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

const (
	// MaxUploadBytes bounds the decoded size of an incoming photo.
	MaxUploadBytes = 8 << 20
	// DefaultMaxDimension is the longest side of a stored photo.
	DefaultMaxDimension = 480
	jpegQuality         = 75
)

// AllowedMimes are the accepted photo types.
var AllowedMimes = []string{"image/png", "image/jpeg", "image/webp"}

// ParseDataURL decodes a base64 data URL, checking its declared type against allowed and against
// the sniffed content.
func ParseDataURL(value string, allowed []string, maxBytes int) ([]byte, string, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return nil, "", errors.New("empty data url")
	}
	if !strings.HasPrefix(raw, "data:") {
		return nil, "", errors.New("invalid data url prefix")
	}
	comma := strings.Index(raw, ",")
	if comma <= 5 {
		return nil, "", errors.New("invalid data url payload")
	}
	meta := raw[5:comma]
	payload := raw[comma+1:]
	if !strings.HasSuffix(strings.ToLower(meta), ";base64") {
		return nil, "", errors.New("data url must be base64")
	}
	mime := strings.TrimSpace(meta[:len(meta)-len(";base64")])
	if mime == "" {
		return nil, "", errors.New("missing data url mime type")
	}
	if len(allowed) > 0 && !contains(allowed, mime) {
		return nil, "", errors.New("unsupported data url mime type")
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", errors.New("unable to decode data url")
	}
	if len(decoded) == 0 {
		return nil, "", errors.New("empty data url content")
	}
	if maxBytes > 0 && len(decoded) > maxBytes {
		return nil, "", errors.New("data url exceeds max size")
	}
	detected := http.DetectContentType(decoded)
	if !strings.EqualFold(detected, mime) {
		return nil, "", errors.New("data url mime does not match content")
	}
	return decoded, detected, nil
}

func contains(list []string, mime string) bool {
	for _, allowed := range list {
		if strings.EqualFold(strings.TrimSpace(allowed), mime) {
			return true
		}
	}
	return false
}

// Normalizer re-encodes photos as JPEG scaled to fit a MaxDimension square.
type Normalizer struct {
	MaxDimension int
}

// NewNormalizer returns a normalizer for maxDimension (DefaultMaxDimension when not positive).
func NewNormalizer(maxDimension int) *Normalizer {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	return &Normalizer{MaxDimension: maxDimension}
}

// Normalize turns a png/jpeg/webp data URL into a bounded JPEG data URL.
func (n *Normalizer) Normalize(dataURL string) (string, error) {
	raw, mime, err := ParseDataURL(dataURL, AllowedMimes, MaxUploadBytes)
	if err != nil {
		return "", apperr.Invalid("photo: %v", err)
	}
	var img image.Image
	if mime == "image/webp" {
		img, err = webp.Decode(bytes.NewReader(raw))
	} else {
		img, _, err = image.Decode(bytes.NewReader(raw))
	}
	if err != nil {
		return "", apperr.Invalid("unable to decode photo")
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return "", apperr.Invalid("invalid image dimensions")
	}

	width, height := fit(bounds.Dx(), bounds.Dy(), n.MaxDimension)
	resized := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, xdraw.Src, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, resized, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", apperr.Invalid("unable to encode photo")
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(out.Bytes()), nil
}

// fit scales width x height down to fit within limit x limit, keeping the aspect ratio. Smaller
// images are left as they are.
func fit(width, height, limit int) (int, int) {
	if width <= limit && height <= limit {
		return width, height
	}
	if width >= height {
		h := height * limit / width
		if h < 1 {
			h = 1
		}
		return limit, h
	}
	w := width * limit / height
	if w < 1 {
		w = 1
	}
	return w, limit
}
