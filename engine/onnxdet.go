package engine

import (
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	iface "WasteDetServer/interface"
	"WasteDetServer/logger"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

var ortInitMu sync.Mutex

// onnxBackend runs a YOLOv8-style export: input "images" [1,3,S,S], output
// "output0" [1,4+nc,N] with rows cx,cy,w,h followed by per-class scores.
type onnxBackend struct {
	cfg        BackendConfig
	session    *ort.AdvancedSession
	input      *ort.Tensor[float32]
	output     *ort.Tensor[float32]
	size       int
	numClasses int
	numBoxes   int
}

func newOnnxBackend(cfg BackendConfig) (iface.Backend, error) {
	if !strings.HasSuffix(strings.ToLower(cfg.ModelPath), ".onnx") {
		return nil, Modelf("onnx.LoadModel only supports .onnx, got %q", cfg.ModelPath)
	}
	if !fileExists(cfg.ModelPath) {
		return nil, Modelf("model file missing at %s", cfg.ModelPath)
	}
	if err := initRuntime(cfg); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, Modelf("read model io info: %v", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, Modelf("expected one input and one output, got %d and %d", len(inputs), len(outputs))
	}
	size := cfg.InputSize
	if dims := inputs[0].Dimensions; len(dims) == 4 && dims[2] > 0 {
		size = int(dims[2])
	}
	outDims := outputs[0].Dimensions
	if len(outDims) != 3 || outDims[1] <= 4 || outDims[2] <= 0 {
		return nil, Modelf("unsupported output shape %v", outDims)
	}
	b := &onnxBackend{
		cfg:        cfg,
		size:       size,
		numClasses: int(outDims[1]) - 4,
		numBoxes:   int(outDims[2]),
	}

	b.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return nil, Modelf("allocate input tensor: %v", err)
	}
	b.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, outDims[1], outDims[2]))
	if err != nil {
		b.input.Destroy()
		return nil, Modelf("allocate output tensor: %v", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		b.destroyTensors()
		return nil, Modelf("create session options: %v", err)
	}
	defer options.Destroy()
	if cfg.UseGPU {
		if cuda, cerr := ort.NewCUDAProviderOptions(); cerr == nil {
			if aerr := options.AppendExecutionProviderCUDA(cuda); aerr != nil {
				logger.Log().Warn("CUDA provider unavailable, using CPU", zap.Error(aerr))
			}
			cuda.Destroy()
		}
	}

	b.session, err = ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.Value{b.input},
		[]ort.Value{b.output},
		options,
	)
	if err != nil {
		b.destroyTensors()
		return nil, Modelf("create onnx session: %v", err)
	}
	return b, nil
}

func initRuntime(cfg BackendConfig) error {
	ortInitMu.Lock()
	defer ortInitMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	lib := resolveSharedLibraryPath(cfg.LibraryPath, filepath.Dir(cfg.ModelPath))
	if lib == "" {
		return Modelf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or libraryPath")
	}
	ort.SetSharedLibraryPath(lib)
	if err := ort.InitializeEnvironment(); err != nil {
		return Modelf("initialize onnxruntime: %v", err)
	}
	return nil
}

// resolveSharedLibraryPath picks the onnxruntime library: the environment
// variable wins, then the configured path, then common locations.
func resolveSharedLibraryPath(configured, modelDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}
	if configured != "" {
		return configured
	}
	names := []string{
		"libonnxruntime.so",
		"onnxruntime.so",
		"libonnxruntime.dylib",
		"onnxruntime.dll",
	}
	dirs := []string{
		modelDir,
		filepath.Join(modelDir, "lib"),
		".",
		"/usr/local/lib",
		"/usr/lib",
	}
	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if fileExists(candidate) {
				return candidate
			}
		}
	}
	return ""
}

func (b *onnxBackend) Infer(img *iface.ImageData) ([]iface.RawDetection, error) {
	if img == nil || img.Image == nil {
		return nil, errors.New("empty image")
	}
	fillInput(b.input.GetData(), img.Image, b.size)
	if err := b.session.Run(); err != nil {
		return nil, errors.Wrap(err, "onnx run")
	}
	bounds := img.Image.Bounds()
	scaleX := float64(bounds.Dx()) / float64(b.size)
	scaleY := float64(bounds.Dy()) / float64(b.size)
	return decodeYOLO(b.output.GetData(), b.numClasses, b.numBoxes, scaleX, scaleY, b.cfg.MinScore, b.cfg.Iou), nil
}

// fillInput resizes src to size x size and writes it as planar RGB in [0,1].
func fillInput(dst []float32, src image.Image, size int) {
	resized := imaging.Resize(src, size, size, imaging.Linear)
	stride := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := y*resized.Stride + x*4
			i := y*size + x
			dst[i] = float32(resized.Pix[off]) / 255.0
			dst[i+stride] = float32(resized.Pix[off+1]) / 255.0
			dst[i+2*stride] = float32(resized.Pix[off+2]) / 255.0
		}
	}
}

// decodeYOLO turns a [4+nc, N] output into detections in source pixels,
// ordered by score with class-wise NMS applied.
func decodeYOLO(out []float32, numClasses, numBoxes int, scaleX, scaleY float64, minScore, iou float32) []iface.RawDetection {
	if len(out) < (numClasses+4)*numBoxes {
		return nil
	}
	var candidates []iface.RawDetection
	for i := 0; i < numBoxes; i++ {
		classID, score := 0, float32(0)
		for c := 0; c < numClasses; c++ {
			if s := out[(c+4)*numBoxes+i]; s > score {
				score, classID = s, c
			}
		}
		if score < minScore {
			continue
		}
		cx, cy := float64(out[i]), float64(out[numBoxes+i])
		w, h := float64(out[2*numBoxes+i]), float64(out[3*numBoxes+i])
		candidates = append(candidates, iface.RawDetection{
			X1:         (cx - w/2) * scaleX,
			Y1:         (cy - h/2) * scaleY,
			X2:         (cx + w/2) * scaleX,
			Y2:         (cy + h/2) * scaleY,
			ClassID:    classID,
			Confidence: float64(score),
		})
	}
	return nms(candidates, float64(iou))
}

// nms keeps the highest scoring box of every overlapping same-class cluster.
func nms(in []iface.RawDetection, threshold float64) []iface.RawDetection {
	sort.SliceStable(in, func(i, j int) bool {
		return in[i].Confidence > in[j].Confidence
	})
	suppressed := make([]bool, len(in))
	out := make([]iface.RawDetection, 0, len(in))
	for i := range in {
		if suppressed[i] {
			continue
		}
		out = append(out, in[i])
		for j := i + 1; j < len(in); j++ {
			if !suppressed[j] && in[j].ClassID == in[i].ClassID && iouOf(in[i], in[j]) > threshold {
				suppressed[j] = true
			}
		}
	}
	return out
}

func iouOf(a, b iface.RawDetection) float64 {
	x1, y1 := max(a.X1, b.X1), max(a.Y1, b.Y1)
	x2, y2 := min(a.X2, b.X2), min(a.Y2, b.Y2)
	inter := max(0, x2-x1) * max(0, y2-y1)
	union := (a.X2-a.X1)*(a.Y2-a.Y1) + (b.X2-b.X1)*(b.Y2-b.Y1) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func (b *onnxBackend) destroyTensors() {
	if b.input != nil {
		b.input.Destroy()
	}
	if b.output != nil {
		b.output.Destroy()
	}
}

func (b *onnxBackend) Close() error {
	var err error
	if b.session != nil {
		err = b.session.Destroy()
		b.session = nil
	}
	b.destroyTensors()
	return err
}

func (b *onnxBackend) CheckConfig() iface.EngineConfig {
	return iface.EngineConfig{
		Backend:   "onnx",
		ModelPath: b.cfg.ModelPath,
		MinScore:  b.cfg.MinScore,
		Iou:       b.cfg.Iou,
		UseGPU:    b.cfg.UseGPU,
	}
}
