//go:build gocv

package imagesource

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

func init() {
	decode = decodeGocv
}

// decodeGocv decodes through OpenCV, for builds linked against it.
func decodeGocv(raw []byte) (image.Image, error) {
	mat, err := gocv.IMDecode(raw, gocv.IMReadColor)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, errors.New("decoded image is empty or unsupported format")
	}
	return mat.ToImage()
}
