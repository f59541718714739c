package proto

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"WasteDetServer/engine"
	"WasteDetServer/imagesource"
	iface "WasteDetServer/interface"
	"WasteDetServer/logger"
	"WasteDetServer/monitor"
	"WasteDetServer/report"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type Server struct {
	Pipeline  *engine.Pipeline
	Pool      *engine.Pool
	Threshold float64
}

// toStruct re-encodes a report value as a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func codeFor(err error) codes.Code {
	switch engine.KindOf(err) {
	case engine.ErrValidation:
		return codes.InvalidArgument
	case engine.ErrModel:
		return codes.Unavailable
	case engine.ErrResource:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

func (s *Server) threshold(req *structpb.Struct) (float64, error) {
	v, ok := req.GetFields()["confidence"]
	if !ok {
		return s.Threshold, engine.ValidateThreshold(s.Threshold)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, engine.Validationf("confidence must be a number")
	}
	return n.NumberValue, engine.ValidateThreshold(n.NumberValue)
}

func (s *Server) Classify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	monitor.RequestsTotal.WithLabelValues("grpc").Inc()
	threshold, err := s.threshold(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	encoded := req.GetFields()["image"].GetStringValue()
	if encoded == "" {
		return nil, status.Error(codes.InvalidArgument, "No image provided")
	}
	raw, err := imagesource.DecodeBase64(encoded)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	name := req.GetFields()["name"].GetStringValue()
	if name == "" {
		name = uuid.NewString()
	}
	loader := imagesource.NewMemoryLoader()
	id := loader.Add(name, raw)
	pipeline := s.Pipeline.WithLoader(loader)

	var res iface.ImageResult
	if err := s.Pool.Submit(ctx, func(model iface.Model) {
		res = pipeline.Classify(id, model, threshold)
	}); err != nil {
		return nil, status.Error(codeFor(err), err.Error())
	}
	return toStruct(report.FromImage(res))
}

func (s *Server) ClassifyBatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	monitor.RequestsTotal.WithLabelValues("grpc").Inc()
	threshold, err := s.threshold(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	values := req.GetFields()["images"].GetListValue().GetValues()
	if err := s.Pipeline.ValidateBatch(len(values)); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	loader := imagesource.NewMemoryLoader()
	ids := make([]string, 0, len(values))
	for i, v := range values {
		// undecodable entries are stored empty and fail on their own
		raw, err := imagesource.DecodeBase64(v.GetStringValue())
		if err != nil {
			logger.Log().Warn("batch entry is not valid base64", zap.Int("index", i), zap.Error(err))
		}
		ids = append(ids, loader.Add(fmt.Sprintf("image_%d", i+1), raw))
	}
	pipeline := s.Pipeline.WithLoader(loader)

	var res iface.BatchResult
	var batchErr error
	if err := s.Pool.Submit(ctx, func(model iface.Model) {
		res, batchErr = pipeline.ClassifyBatch(ids, model, threshold)
	}); err != nil {
		return nil, status.Error(codeFor(err), err.Error())
	}
	if batchErr != nil && engine.KindOf(batchErr) == engine.ErrValidation {
		return nil, status.Error(codes.InvalidArgument, batchErr.Error())
	}
	return toStruct(report.FromBatch(res))
}

type engineInfo struct {
	Backend   string  `json:"backend"`
	ModelPath string  `json:"model_path"`
	MinScore  float32 `json:"min_score"`
	Iou       float32 `json:"iou"`
	UseGPU    bool    `json:"use_gpu"`
}

func (s *Server) CheckEngine(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	monitor.RequestsTotal.WithLabelValues("grpc").Inc()
	engines := make([]engineInfo, 0, s.Pool.Size())
	for _, m := range s.Pool.Models() {
		b, ok := m.(iface.Backend)
		if !ok {
			continue
		}
		cfg := b.CheckConfig()
		engines = append(engines, engineInfo{
			Backend:   cfg.Backend,
			ModelPath: cfg.ModelPath,
			MinScore:  cfg.MinScore,
			Iou:       cfg.Iou,
			UseGPU:    cfg.UseGPU,
		})
	}
	return toStruct(map[string]any{
		"success":        true,
		"workers":        s.Pool.Size(),
		"engines":        engines,
		"labels":         s.Pipeline.Mapper.Labels(),
		"confidence":     s.Threshold,
		"max_batch_size": s.Pipeline.MaxBatch(),
		"message":        "Detector status retrieved successfully",
	})
}

func logUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	logger.Log().Info("grpc request",
		zap.String("method", info.FullMethod),
		zap.String("code", status.Code(err).String()),
		zap.Duration("latency", time.Since(start)))
	return resp, err
}

// NewGRPCServer returns a gRPC server with the service registered.
func NewGRPCServer(srv *Server) *grpc.Server {
	s := grpc.NewServer(grpc.UnaryInterceptor(logUnary))
	RegisterDetectServiceServer(s, srv)
	return s
}

// StartGRPCServer serves srv on port in the background.
func StartGRPCServer(port int, srv *Server) (*grpc.Server, error) {
	addr := fmt.Sprintf(":%d", port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	s := NewGRPCServer(srv)
	go func() {
		logger.Log().Info("gRPC server listening", zap.String("addr", addr))
		if err := s.Serve(lis); err != nil {
			logger.Log().Error("Failed to serve gRPC server", zap.Error(err))
		}
	}()
	return s, nil
}
