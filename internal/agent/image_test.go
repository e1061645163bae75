package agent

import (
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
)

func pngBytes() []byte {
	return append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 32)...)
}

func TestImagePart(t *testing.T) {
	img := &Image{Data: pngBytes()}

	part, err := img.Part()
	if err != nil {
		t.Fatalf("Part() error = %v", err)
	}
	if part.Kind != ai.PartMedia {
		t.Errorf("Kind = %v, want PartMedia", part.Kind)
	}
	if part.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png (sniffed)", part.ContentType)
	}
	if !strings.HasPrefix(part.Text, "data:image/png;base64,") {
		t.Errorf("media URL = %q, want data URL prefix", part.Text)
	}
}

func TestImagePart_ExplicitMIME(t *testing.T) {
	img := &Image{Data: []byte{0x01, 0x02}, MIME: "image/jpeg"}

	part, err := img.Part()
	if err != nil {
		t.Fatalf("Part() error = %v", err)
	}
	if part.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q, want image/jpeg", part.ContentType)
	}
}

func TestImagePart_Errors(t *testing.T) {
	tests := []struct {
		name string
		img  *Image
	}{
		{name: "empty data", img: &Image{}},
		{name: "not an image", img: &Image{Data: []byte("just some text content here")}},
		{name: "too large", img: &Image{Data: make([]byte, maxImageBytes+1), MIME: "image/png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.img.Part(); err == nil {
				t.Error("Part() error = nil, want error")
			}
		})
	}
}
