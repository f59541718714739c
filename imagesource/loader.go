package imagesource

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"WasteDetServer/engine"
	iface "WasteDetServer/interface"

	"github.com/disintegration/imaging"
)

// decode is swapped for an OpenCV implementation under the gocv build tag.
var decode = decodeImaging

func decodeImaging(raw []byte) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
}

// Decode turns encoded bytes into ImageData identified by id.
func Decode(id string, raw []byte) (*iface.ImageData, error) {
	if len(raw) == 0 {
		return nil, engine.Resourcef("empty image data")
	}
	img, err := decode(raw)
	if err != nil {
		return nil, engine.Resourcef("decode image: %v", err)
	}
	format := ""
	if _, f, err := image.DecodeConfig(bytes.NewReader(raw)); err == nil {
		format = f
	}
	b := img.Bounds()
	return &iface.ImageData{
		ID:     id,
		Raw:    raw,
		Format: format,
		Image:  img,
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

// FileLoader loads images from the filesystem; identifiers are paths.
type FileLoader struct{}

func (FileLoader) Load(path string) (*iface.ImageData, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, engine.Resourcef("Image file not found: %s", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.Resourcef("Could not read image: %s", path)
	}
	img, err := Decode(filepath.Base(path), raw)
	if err != nil {
		return nil, engine.Resourcef("Could not load image: %s", path)
	}
	return img, nil
}

// MemoryLoader serves images held in memory, typically one request's uploads.
// Identifiers are opaque tokens chosen by the caller.
type MemoryLoader struct {
	mu     sync.RWMutex
	images map[string][]byte
	order  []string
}

func NewMemoryLoader() *MemoryLoader {
	return &MemoryLoader{images: map[string][]byte{}}
}

// Add stores raw under name and returns the identifier to classify it by.
// Repeated names get a numeric suffix so every upload keeps its own slot.
func (m *MemoryLoader) Add(name string, raw []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name == "" {
		name = "image"
	}
	id := name
	for i := 1; ; i++ {
		if _, taken := m.images[id]; !taken {
			break
		}
		id = fmt.Sprintf("%s#%d", name, i)
	}
	m.images[id] = raw
	m.order = append(m.order, id)
	return id
}

// IDs returns identifiers in insertion order.
func (m *MemoryLoader) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

func (m *MemoryLoader) Load(id string) (*iface.ImageData, error) {
	m.mu.RLock()
	raw, ok := m.images[id]
	m.mu.RUnlock()
	if !ok {
		return nil, engine.Resourcef("Image not found: %s", id)
	}
	img, err := Decode(id, raw)
	if err != nil {
		return nil, engine.Resourcef("Could not load image: %s", id)
	}
	return img, nil
}
