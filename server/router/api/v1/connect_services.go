package v1

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/grpc/status"

	v1pb "github.com/hrygo/spansum/proto/api/v1"
)

// ConnectServiceHandler serves the gRPC services over the Connect protocol.
// Each method delegates to the gRPC implementation and converts its status.
type ConnectServiceHandler struct {
	*APIV1Service
}

func NewConnectServiceHandler(svc *APIV1Service) *ConnectServiceHandler {
	return &ConnectServiceHandler{APIV1Service: svc}
}

// RegisterConnectHandlers mounts every Connect procedure on mux.
func (s *ConnectServiceHandler) RegisterConnectHandlers(mux *http.ServeMux, opts ...connect.HandlerOption) {
	mux.Handle(v1pb.AbstractiveSummarizeProcedure, connect.NewUnaryHandler(
		v1pb.AbstractiveSummarizeProcedure,
		s.AbstractiveSummarize,
		append(codecOptions(), opts...)...,
	))
}

// codecOptions replaces connect's default proto and JSON codecs, which only
// accept generated messages.
func codecOptions() []connect.HandlerOption {
	opts := []connect.HandlerOption{connect.WithCodec(v1pb.Codec{})}
	for _, c := range v1pb.JSONCodecs() {
		opts = append(opts, connect.WithCodec(c))
	}
	return opts
}

func (s *ConnectServiceHandler) AbstractiveSummarize(ctx context.Context, req *connect.Request[v1pb.SummarizationRequest]) (*connect.Response[v1pb.Summaries], error) {
	resp, err := s.SummarizerService.AbstractiveSummarize(ctx, req.Msg)
	if err != nil {
		return nil, convertGRPCError(err)
	}
	return connect.NewResponse(resp), nil
}

// convertGRPCError converts a gRPC status error to a Connect error.
// The two protocols share code numbers.
func convertGRPCError(err error) error {
	if st, ok := status.FromError(err); ok {
		return connect.NewError(connect.Code(st.Code()), errors.New(st.Message()))
	}
	return connect.NewError(connect.CodeInternal, err)
}
