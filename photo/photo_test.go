package photo

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"attendserver/apperr"
)

func pngDataURL(t *testing.T, width, height int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestParseDataURL(t *testing.T) {
	valid := pngDataURL(t, 4, 4)
	cases := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid png", valid, false},
		{"empty", "", true},
		{"no prefix", "image/png;base64,AAAA", true},
		{"not base64", "data:image/png,hello", true},
		{"disallowed type", "data:image/gif;base64,R0lGODlh", true},
		{"type mismatch", strings.Replace(valid, "image/png", "image/jpeg", 1), true},
		{"bad payload", "data:image/png;base64,!!!", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, mime, err := ParseDataURL(tc.value, AllowedMimes, MaxUploadBytes)
			if tc.wantErr != (err != nil) {
				t.Fatalf("err = %v, wantErr %t", err, tc.wantErr)
			}
			if !tc.wantErr && mime != "image/png" {
				t.Errorf("mime = %s", mime)
			}
		})
	}
}

func TestParseDataURLMaxBytes(t *testing.T) {
	if _, _, err := ParseDataURL(pngDataURL(t, 16, 16), AllowedMimes, 10); err == nil {
		t.Error("oversized data url accepted")
	}
}

func TestNormalize(t *testing.T) {
	n := NewNormalizer(64)
	cases := []struct {
		name          string
		width, height int
		wantW, wantH  int
	}{
		{"landscape", 200, 100, 64, 32},
		{"portrait", 100, 200, 32, 64},
		{"small", 20, 10, 20, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := n.Normalize(pngDataURL(t, tc.width, tc.height))
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			const prefix = "data:image/jpeg;base64,"
			if !strings.HasPrefix(out, prefix) {
				t.Fatalf("Normalize returned %q...", out[:20])
			}
			raw, err := base64.StdEncoding.DecodeString(out[len(prefix):])
			if err != nil {
				t.Fatal(err)
			}
			img, err := jpeg.Decode(bytes.NewReader(raw))
			if err != nil {
				t.Fatalf("result is not a jpeg: %v", err)
			}
			if b := img.Bounds(); b.Dx() != tc.wantW || b.Dy() != tc.wantH {
				t.Errorf("size = %dx%d, want %dx%d", b.Dx(), b.Dy(), tc.wantW, tc.wantH)
			}
		})
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	_, err := NewNormalizer(0).Normalize("data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("not an image")))
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("Normalize = %v, want ErrInvalid", err)
	}
}
