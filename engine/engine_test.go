package engine

import (
	"testing"

	iface "WasteDetServer/interface"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	RegisterBackend("fake", func(cfg BackendConfig) (iface.Backend, error) {
		if cfg.ModelPath == "broken" {
			return nil, errors.New("corrupt weights")
		}
		return &fakeModel{dets: []iface.RawDetection{{X2: 1, Y2: 1, Confidence: 0.9}}}, nil
	})
}

func TestDetector_All(t *testing.T) {
	d := &Detector{}

	t.Run("Test New", func(t *testing.T) {
		assert.True(t, d.New())
		assert.Equal(t, REGISTERED, d.State)
		_, err := d.Infer(&iface.ImageData{ID: "x"})
		require.Error(t, err)
		assert.Equal(t, ErrModel, KindOf(err))
	})

	t.Run("Test LoadModel", func(t *testing.T) {
		require.NoError(t, d.LoadModel(BackendConfig{UseBackend: "fake", ModelPath: "fake.onnx"}))
		assert.Equal(t, IDLE, d.State)
		assert.True(t, d.Loaded())
	})

	t.Run("Test CheckModel", func(t *testing.T) {
		cfg := d.CheckConfig()
		assert.Equal(t, "fake", cfg.Backend)
		assert.Equal(t, "fake.onnx", cfg.ModelPath)
	})

	t.Run("Test Infer", func(t *testing.T) {
		out, err := d.Infer(&iface.ImageData{ID: "x"})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, IDLE, d.State)
		assert.NoError(t, d.Ping())
	})

	t.Run("Test Destroy", func(t *testing.T) {
		require.NoError(t, d.Destroy())
		assert.Equal(t, UNREGISTERED, d.State)
		assert.False(t, d.Loaded())
		assert.Equal(t, iface.EngineConfig{}, d.CheckConfig())
		_, err := d.Infer(&iface.ImageData{ID: "x"})
		assert.Error(t, err)
	})
}

func TestLoadModelFailures(t *testing.T) {
	cases := []BackendConfig{
		{UseBackend: "tflite", ModelPath: "m.tflite"},
		{UseBackend: "fake", ModelPath: "broken"},
		{UseBackend: "onnx", ModelPath: "model.pt"},
		{UseBackend: "onnx", ModelPath: "/nonexistent/model.onnx"},
		{UseBackend: "remote"},
	}
	for _, cfg := range cases {
		d, err := LoadModel(cfg)
		require.Error(t, err, "%+v", cfg)
		assert.Nil(t, d)
		assert.Equal(t, ErrModel, KindOf(err), "%+v", cfg)
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrValidation, KindOf(Validationf("bad")))
	assert.Equal(t, ErrResource, KindOf(errors.Wrap(Resourcef("gone"), "context")))
	assert.Equal(t, ErrModel, KindOf(Modelf("no model")))
	assert.Equal(t, ErrInternal, KindOf(errors.New("other")))
	assert.Equal(t, "bad input 3", Validationf("bad input %d", 3).Error())
}

func TestDecodeYOLO(t *testing.T) {
	const nc, nb = 2, 4
	out := make([]float32, (4+nc)*nb)
	set := func(row, box int, v float32) { out[row*nb+box] = v }
	boxes := [][4]float32{
		{10, 10, 4, 4},
		{10.5, 10, 4, 4},
		{50, 50, 10, 10},
		{80, 80, 2, 2},
	}
	for i, b := range boxes {
		for r := 0; r < 4; r++ {
			set(r, i, b[r])
		}
	}
	set(4, 0, 0.9)
	set(5, 0, 0.1)
	set(4, 1, 0.8)
	set(5, 2, 0.6)
	set(4, 3, 0.1)

	dets := decodeYOLO(out, nc, nb, 2, 1, 0.25, 0.7)
	require.Len(t, dets, 2)

	assert.Equal(t, 0, dets[0].ClassID)
	assert.InDelta(t, 0.9, dets[0].Confidence, 1e-6)
	assert.InDelta(t, 16, dets[0].X1, 1e-6)
	assert.InDelta(t, 8, dets[0].Y1, 1e-6)
	assert.InDelta(t, 24, dets[0].X2, 1e-6)
	assert.InDelta(t, 12, dets[0].Y2, 1e-6)

	assert.Equal(t, 1, dets[1].ClassID)
	assert.InDelta(t, 0.6, dets[1].Confidence, 1e-6)

	assert.Nil(t, decodeYOLO(out[:5], nc, nb, 1, 1, 0.25, 0.7))
}

func TestNMSKeepsOtherClasses(t *testing.T) {
	in := []iface.RawDetection{
		{X1: 0, Y1: 0, X2: 10, Y2: 10, ClassID: 0, Confidence: 0.7},
		{X1: 0, Y1: 0, X2: 10, Y2: 10, ClassID: 1, Confidence: 0.8},
		{X1: 1, Y1: 1, X2: 10, Y2: 10, ClassID: 1, Confidence: 0.6},
	}
	out := nms(in, 0.5)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].ClassID)
	assert.Equal(t, 0, out[1].ClassID)
	assert.Equal(t, 0.0, iouOf(iface.RawDetection{X2: 1, Y2: 1}, iface.RawDetection{X1: 2, Y1: 2, X2: 3, Y2: 3}))
}

func TestReadLinesReadFile(t *testing.T) {
	_, err := ReadLinesReadFile("/nonexistent/labels.txt")
	assert.Error(t, err)
}
