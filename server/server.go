// Package server runs the gRPC and HTTP listeners of spansum.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"

	"github.com/hrygo/spansum/ai/metrics"
	"github.com/hrygo/spansum/internal/profile"
	apiv1 "github.com/hrygo/spansum/server/router/api/v1"
)

const shutdownTimeout = 10 * time.Second

// Server serves the summarizer over gRPC on one port, and over Connect next to
// /metrics and /healthz on another.
type Server struct {
	Profile *profile.Profile

	grpcServer *grpc.Server
	echoServer *echo.Echo
	httpServer *http.Server

	grpcListener net.Listener
	httpListener net.Listener
}

// NewServer wires the API services. exporter may be nil, which disables /metrics.
func NewServer(ctx context.Context, profile *profile.Profile, summarizer apiv1.Summarizer, exporter *metrics.PrometheusExporter) (*Server, error) {
	s := &Server{
		Profile: profile,
	}

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())
	s.echoServer = echoServer

	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": profile.Version,
			"mode":    profile.Mode,
		})
	})
	if exporter != nil {
		echoServer.GET("/metrics", echo.WrapHandler(exporter.Handler()))
	}

	apiV1Service := apiv1.NewAPIV1Service(profile, summarizer)
	if err := apiV1Service.RegisterGateway(ctx, echoServer); err != nil {
		return nil, fmt.Errorf("failed to register gateway: %w", err)
	}

	s.grpcServer = grpc.NewServer(apiV1Service.GRPCServerOptions()...)
	apiV1Service.RegisterGRPC(s.grpcServer)

	// h2c lets Connect clients use HTTP/2 without TLS.
	s.httpServer = &http.Server{
		Handler:           h2c.NewHandler(echoServer, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Start opens both listeners and serves in the background.
func (s *Server) Start(_ context.Context) error {
	var err error
	s.grpcListener, err = net.Listen("tcp", net.JoinHostPort(s.Profile.Addr, fmt.Sprint(s.Profile.GRPCPort)))
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}
	s.httpListener, err = net.Listen("tcp", net.JoinHostPort(s.Profile.Addr, fmt.Sprint(s.Profile.HTTPPort)))
	if err != nil {
		_ = s.grpcListener.Close()
		return fmt.Errorf("failed to listen on http port: %w", err)
	}

	go func() {
		if err := s.grpcServer.Serve(s.grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			slog.Error("grpc server stopped", "error", err)
		}
	}()
	go func() {
		if err := s.httpServer.Serve(s.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server stopped", "error", err)
		}
	}()
	return nil
}

// GRPCAddr returns the bound gRPC address. Valid after Start.
func (s *Server) GRPCAddr() string {
	return s.grpcListener.Addr().String()
}

// HTTPAddr returns the bound HTTP address. Valid after Start.
func (s *Server) HTTPAddr() string {
	return s.httpListener.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight calls, up to a
// fixed timeout after which remaining gRPC calls are cut.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	slog.Info("server shutting down")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown http server", "error", err)
	}

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		slog.Warn("grpc graceful stop timed out, forcing")
		s.grpcServer.Stop()
	}

	slog.Info("server stopped properly")
}
