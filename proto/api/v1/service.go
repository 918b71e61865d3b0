package apiv1

import (
	"context"

	"google.golang.org/grpc"
)

const (
	// ServiceName is the fully-qualified name of the summarizer service.
	ServiceName = "spansum.api.v1.AbstractiveSummarizer"
	// AbstractiveSummarizeProcedure is the RPC path shared by gRPC and Connect.
	AbstractiveSummarizeProcedure = "/" + ServiceName + "/AbstractiveSummarize"
)

// AbstractiveSummarizerServer is the server API for AbstractiveSummarizer.
type AbstractiveSummarizerServer interface {
	AbstractiveSummarize(context.Context, *SummarizationRequest) (*Summaries, error)
}

// RegisterAbstractiveSummarizerServer registers srv on s. The grpc server must be
// built with ServerOptions() so that requests decode with Codec.
func RegisterAbstractiveSummarizerServer(s grpc.ServiceRegistrar, srv AbstractiveSummarizerServer) {
	s.RegisterService(&AbstractiveSummarizerServiceDesc, srv)
}

// ServerOptions returns the grpc options required to serve this package's messages.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{grpc.ForceServerCodec(Codec{})}
}

func abstractiveSummarizeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SummarizationRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AbstractiveSummarizerServer).AbstractiveSummarize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: AbstractiveSummarizeProcedure,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AbstractiveSummarizerServer).AbstractiveSummarize(ctx, req.(*SummarizationRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// AbstractiveSummarizerServiceDesc describes the AbstractiveSummarizer service.
var AbstractiveSummarizerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AbstractiveSummarizerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "AbstractiveSummarize",
			Handler:    abstractiveSummarizeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "api/v1/summarizer.proto",
}

// AbstractiveSummarizerClient is the client API for AbstractiveSummarizer.
type AbstractiveSummarizerClient interface {
	AbstractiveSummarize(ctx context.Context, in *SummarizationRequest, opts ...grpc.CallOption) (*Summaries, error)
}

type abstractiveSummarizerClient struct {
	cc grpc.ClientConnInterface
}

func NewAbstractiveSummarizerClient(cc grpc.ClientConnInterface) AbstractiveSummarizerClient {
	return &abstractiveSummarizerClient{cc}
}

func (c *abstractiveSummarizerClient) AbstractiveSummarize(ctx context.Context, in *SummarizationRequest, opts ...grpc.CallOption) (*Summaries, error) {
	out := new(Summaries)
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	if err := c.cc.Invoke(ctx, AbstractiveSummarizeProcedure, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
