package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	// Registered decoders for incoming payloads.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrDecode is wrapped by every payload decoding failure.
var ErrDecode = errors.New("decode frame")

// Decode parses an encoded image (JPEG, PNG, WebP, BMP) into a Frame.
func Decode(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: decoded frame buffer is empty", ErrDecode)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode frame as image: %v", ErrDecode, err)
	}
	f, err := New(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return f, nil
}

// DecodeBase64 decodes a base64 payload, optionally prefixed with a data-URL
// header such as "data:image/jpeg;base64,".
func DecodeBase64(payload string) (*Frame, error) {
	part := payload
	if i := strings.LastIndexByte(part, ','); i >= 0 {
		part = part[i+1:]
	}
	part = strings.TrimSpace(part)
	if part == "" {
		return nil, fmt.Errorf("%w: empty frame data", ErrDecode)
	}

	data, err := base64.StdEncoding.DecodeString(part)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 frame data", ErrDecode)
	}
	return Decode(data)
}
