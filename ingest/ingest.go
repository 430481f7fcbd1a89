package ingest

import (
	iface "FloorPlanServer/interface"
	"encoding/base64"
	"errors"
	"strings"

	"gocv.io/x/gocv"
)

var ErrEmptyImage = errors.New("decoded image is empty or unsupported format")

// Loader decodes uploaded bytes into an 8-bit, 3-channel BGR tensor.
type Loader struct{}

// Load decodes raw with IMReadColor, so grayscale input is expanded and any
// alpha channel dropped.
func (Loader) Load(raw []byte) (iface.ImageData, error) {
	if len(raw) == 0 {
		return iface.ImageData{}, ErrEmptyImage
	}
	mat, err := gocv.IMDecode(raw, gocv.IMReadColor)
	if err != nil {
		return iface.ImageData{}, err
	}
	defer mat.Close()
	if mat.Empty() {
		return iface.ImageData{}, ErrEmptyImage
	}
	return iface.ImageData{
		Data:     mat.ToBytes(),
		Width:    mat.Cols(),
		Height:   mat.Rows(),
		Channels: mat.Channels(),
		Encoded:  raw,
	}, nil
}

// DecodeBase64 accepts plain base64 or a data URL.
func DecodeBase64(b64 string) ([]byte, error) {
	if i := strings.Index(b64, ","); i != -1 && strings.HasPrefix(b64, "data:") {
		b64 = b64[i+1:]
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
}
