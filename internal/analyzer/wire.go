// Package analyzer is the remote-call boundary between the HTTP front end and the
// image analysis service. Messages travel over gRPC using a JSON codec, so the
// contract is defined here by hand instead of by generated protobuf code.
package analyzer

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	// ServiceName is the fully-qualified gRPC service name.
	ServiceName = "imageprocessor.ImageProcessor"
	// AnalyzeImageMethod is the full method path of the unary analysis call.
	AnalyzeImageMethod = "/" + ServiceName + "/AnalyzeImage"

	// RequestIDMetadataKey carries the correlation id across the hop.
	RequestIDMetadataKey = "x-request-id"

	// ErrorDomain is the ErrorInfo domain attached to caller-input failures.
	ErrorDomain = "imageprocessor"
	// ReasonUnsupportedFormat and ReasonUndecodableImage classify INVALID_ARGUMENT failures.
	ReasonUnsupportedFormat = "UNSUPPORTED_FORMAT"
	ReasonUndecodableImage  = "UNDECODABLE_IMAGE"

	codecName = "json"
)

// AnalyzeRequest is the AnalyzeImage request message.
type AnalyzeRequest struct {
	ImageData      []byte   `json:"image_data"`
	AllowedFormats []string `json:"allowed_formats"`
}

// AnalyzeResponse is the AnalyzeImage response message.
type AnalyzeResponse struct {
	AverageIntensity float64 `json:"average_intensity"`
	Width            int32   `json:"width"`
	Height           int32   `json:"height"`
	OriginalMode     string  `json:"original_mode"`
	PixelCount       int64   `json:"pixel_count"`
}

// AnalyzerServer is implemented by the analysis service.
type AnalyzerServer interface {
	AnalyzeImage(ctx context.Context, req *AnalyzeRequest) (*AnalyzeResponse, error)
}

// ServiceDesc describes the ImageProcessor service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnalyzerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "AnalyzeImage",
			Handler:    analyzeImageHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "imageprocessor/processing.proto",
}

// RegisterAnalyzerServer attaches srv to s.
func RegisterAnalyzerServer(s grpc.ServiceRegistrar, srv AnalyzerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func analyzeImageHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AnalyzeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyzerServer).AnalyzeImage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: AnalyzeImageMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AnalyzerServer).AnalyzeImage(ctx, req.(*AnalyzeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// jsonCodec marshals the plain Go messages above. It is selected per call with
// grpc.CallContentSubtype(codecName); other services on the same connection keep protobuf.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// MessageLimit sizes gRPC send/receive limits for uploads of up to maxUpload bytes:
// JSON carries bytes as base64 (4/3 growth) plus a small envelope.
func MessageLimit(maxUpload int64) int {
	return int((maxUpload+2)/3*4) + 64*1024
}
