package engine

import (
	"sync"

	iface "WasteDetServer/interface"

	"github.com/pkg/errors"
)

type fakeModel struct {
	mu     sync.Mutex
	dets   []iface.RawDetection
	err    error
	panics bool
	calls  []string
	closed bool
}

func (m *fakeModel) Infer(img *iface.ImageData) ([]iface.RawDetection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, img.ID)
	if m.panics {
		panic("boom")
	}
	if m.err != nil {
		return nil, m.err
	}
	return append([]iface.RawDetection(nil), m.dets...), nil
}

func (m *fakeModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fakeModel) CheckConfig() iface.EngineConfig {
	return iface.EngineConfig{Backend: "fake", ModelPath: "fake.onnx"}
}

// mapLoader resolves identifiers present in the map; anything else is
// unreadable.
type mapLoader map[string]bool

func (l mapLoader) Load(id string) (*iface.ImageData, error) {
	if !l[id] {
		return nil, Resourcef("Could not load image: %s", id)
	}
	return &iface.ImageData{ID: id, Width: 640, Height: 480}, nil
}

var errInfer = errors.New("cuda out of memory")

func wasteLabels() []string {
	return []string{"plastic", "paper", "glass", "metal", "organic", "electronic", "other"}
}

func newTestPipeline(t interface{ Fatalf(string, ...any) }, ids ...string) *Pipeline {
	mapper, err := NewCategoryMapper(iface.NamesConf{Data: wasteLabels()})
	if err != nil {
		t.Fatalf("mapper: %v", err)
	}
	loader := mapLoader{}
	for _, id := range ids {
		loader[id] = true
	}
	return &Pipeline{Mapper: mapper, Loader: loader}
}
