package agent

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/firebase/genkit/go/ai"
)

// maxImageBytes caps inline image payloads. Provider APIs reject inline
// data much past this size anyway.
const maxImageBytes = 10 << 20 // 10 MiB

// ErrImageTooLarge indicates the image exceeds the inline payload cap.
var ErrImageTooLarge = errors.New("image too large")

// Image is a photo attached to a single turn.
type Image struct {
	Data []byte
	// MIME is optional; when empty it is sniffed from Data.
	MIME string
}

// Part encodes the image as an inline data-URL media part.
func (img *Image) Part() (*ai.Part, error) {
	if len(img.Data) == 0 {
		return nil, errors.New("image has no data")
	}
	if len(img.Data) > maxImageBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrImageTooLarge, len(img.Data))
	}

	mime := img.MIME
	if mime == "" {
		mime = http.DetectContentType(img.Data)
	}
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("unsupported content type %q", mime)
	}

	encoded := base64.StdEncoding.EncodeToString(img.Data)
	return ai.NewMediaPart(mime, "data:"+mime+";base64,"+encoded), nil
}
