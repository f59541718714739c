package proto

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/color"
	"net"
	"testing"

	"WasteDetServer/engine"
	iface "WasteDetServer/interface"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type MockBackend struct{}

func (m *MockBackend) Infer(img *iface.ImageData) ([]iface.RawDetection, error) {
	return []iface.RawDetection{
		{X1: 1, Y1: 1, X2: 3, Y2: 4, ClassID: 0, Confidence: 0.99},
		{X1: 0, Y1: 0, X2: 2, Y2: 2, ClassID: 5, Confidence: 0.3},
	}, nil
}
func (m *MockBackend) Close() error { return nil }
func (m *MockBackend) CheckConfig() iface.EngineConfig {
	return iface.EngineConfig{Backend: "mock", ModelPath: "mock.onnx", MinScore: 0.25, Iou: 0.7}
}

func mockImage(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(16, 16, color.NRGBA{B: 255, A: 255}), imaging.JPEG))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func startMockServer(t *testing.T) *DetectServiceClient {
	t.Helper()
	mapper, err := engine.NewCategoryMapper(iface.NamesConf{Data: []string{"mock"}})
	require.NoError(t, err)
	pool := engine.NewPool([]iface.Model{&MockBackend{}})

	lis := bufconn.Listen(1 << 20)
	server := NewGRPCServer(&Server{
		Pipeline:  &engine.Pipeline{Mapper: mapper, MaxBatchSize: 2},
		Pool:      pool,
		Threshold: 0.5,
	})
	go func() { _ = server.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		server.GracefulStop()
		_ = pool.Close()
	})
	return NewDetectServiceClient(conn)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestMockEngine(t *testing.T) {
	client := startMockServer(t)
	ctx := context.Background()
	img := mockImage(t)

	t.Run("Test Classify", func(t *testing.T) {
		resp, err := client.Classify(ctx, mustStruct(t, map[string]any{"image": img, "name": "mock.jpg"}))
		require.NoError(t, err)
		out := resp.AsMap()
		assert.Equal(t, true, out["success"])
		assert.Equal(t, "mock.jpg", out["image"])
		assert.Equal(t, float64(1), out["total_detections"])
		dets := out["detections"].([]any)
		if assert.Len(t, dets, 1) {
			d := dets[0].(map[string]any)
			assert.Equal(t, "mock", d["type"])
			assert.InDelta(t, 0.99, d["confidence"], 0.0001)
			assert.Equal(t, float64(6), d["area"])
		}
	})

	t.Run("Test Classify with confidence", func(t *testing.T) {
		resp, err := client.Classify(ctx, mustStruct(t, map[string]any{"image": img, "confidence": 0.2}))
		require.NoError(t, err)
		out := resp.AsMap()
		assert.Equal(t, float64(2), out["total_detections"])
		summary := out["summary"].(map[string]any)
		assert.Contains(t, summary, "unknown")
	})

	t.Run("Test Classify validation", func(t *testing.T) {
		_, err := client.Classify(ctx, mustStruct(t, map[string]any{}))
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
		_, err = client.Classify(ctx, mustStruct(t, map[string]any{"image": img, "confidence": 3}))
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
		_, err = client.Classify(ctx, mustStruct(t, map[string]any{"image": "%%%"}))
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("Test ClassifyBatch", func(t *testing.T) {
		resp, err := client.ClassifyBatch(ctx, mustStruct(t, map[string]any{
			"images": []any{img, "bm90IGFuIGltYWdl"},
		}))
		require.NoError(t, err)
		out := resp.AsMap()
		assert.Equal(t, true, out["success"])
		assert.Equal(t, float64(2), out["total_images"])
		assert.Equal(t, float64(1), out["processed_images"])
		assert.Equal(t, float64(1), out["failed_images"])
		results := out["batch_results"].([]any)
		assert.Equal(t, "image_1", results[0].(map[string]any)["image"])
		assert.Equal(t, false, results[1].(map[string]any)["success"])
	})

	t.Run("Test ClassifyBatch validation", func(t *testing.T) {
		_, err := client.ClassifyBatch(ctx, mustStruct(t, map[string]any{"images": []any{}}))
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
		_, err = client.ClassifyBatch(ctx, mustStruct(t, map[string]any{"images": []any{img, img, img}}))
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
		assert.Contains(t, status.Convert(err).Message(), "maximum limit of 2")
	})

	t.Run("Test CheckEngine", func(t *testing.T) {
		resp, err := client.CheckEngine(ctx, &emptypb.Empty{})
		require.NoError(t, err)
		out := resp.AsMap()
		assert.Equal(t, true, out["success"])
		assert.Equal(t, float64(1), out["workers"])
		assert.Equal(t, []any{"mock"}, out["labels"])
		engines := out["engines"].([]any)
		if assert.Len(t, engines, 1) {
			assert.Equal(t, "mock.onnx", engines[0].(map[string]any)["model_path"])
		}
	})
}
