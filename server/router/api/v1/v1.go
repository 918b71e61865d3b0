package v1

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/grpc"

	"github.com/hrygo/spansum/internal/profile"
	v1pb "github.com/hrygo/spansum/proto/api/v1"
)

type APIV1Service struct {
	SummarizerService *SummarizerService

	Profile *profile.Profile
}

func NewAPIV1Service(profile *profile.Profile, summarizer Summarizer) *APIV1Service {
	return &APIV1Service{
		SummarizerService: &SummarizerService{Summarizer: summarizer},
		Profile:           profile,
	}
}

// GRPCServerOptions returns the options the gRPC server must be built with.
func (s *APIV1Service) GRPCServerOptions() []grpc.ServerOption {
	logStacktraces := s.Profile.IsDev()
	return append(v1pb.ServerOptions(),
		grpc.ChainUnaryInterceptor(
			UnaryLoggingInterceptor(),
			UnaryRecoveryInterceptor(logStacktraces),
		),
	)
}

// RegisterGRPC registers the gRPC services.
func (s *APIV1Service) RegisterGRPC(grpcServer grpc.ServiceRegistrar) {
	v1pb.RegisterAbstractiveSummarizerServer(grpcServer, s.SummarizerService)
}

// RegisterGateway registers the Connect handlers with the given Echo instance.
func (s *APIV1Service) RegisterGateway(_ context.Context, echoServer *echo.Echo) error {
	logStacktraces := s.Profile.IsDev()
	connectInterceptors := connect.WithInterceptors(
		NewLoggingInterceptor(),
		NewRecoveryInterceptor(logStacktraces),
	)
	connectMux := http.NewServeMux()
	connectHandler := NewConnectServiceHandler(s)
	connectHandler.RegisterConnectHandlers(connectMux, connectInterceptors)

	// Wrap with CORS for browser access
	corsHandler := middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: func(_ string) (bool, error) {
			return true, nil
		},
		AllowMethods: []string{http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"*"},
	})
	connectGroup := echoServer.Group("", corsHandler)
	connectGroup.Any("/"+v1pb.ServiceName+"/*", echo.WrapHandler(connectMux))

	return nil
}
