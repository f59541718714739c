package imagesource

import (
	"encoding/base64"
	"strings"

	"WasteDetServer/engine"
)

// DecodeBase64 decodes a base64 image, accepting an optional
// "data:image/...;base64," prefix.
func DecodeBase64(b64 string) ([]byte, error) {
	b64 = strings.TrimSpace(b64)
	if i := strings.Index(b64, ","); i != -1 && strings.HasPrefix(b64, "data:") {
		b64 = b64[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, engine.Resourcef("invalid base64 image: %v", err)
	}
	return data, nil
}
