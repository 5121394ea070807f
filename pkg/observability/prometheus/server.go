package prometheus

import (
	"context"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// NewHandler serves /metrics from gatherer and a /live probe
func NewHandler(gatherer prometheus.Gatherer) fasthttp.RequestHandler {
	if gatherer == nil {
		gatherer = DefaultRegistry
	}
	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(
		promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	)

	return func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/metrics":
			metricsHandler(ctx)
		case "/live":
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"status":"up"}`)
		default:
			ctx.Error("not found", fasthttp.StatusNotFound)
		}
	}
}

// Server exposes pool metrics over HTTP
type Server struct {
	srv *fasthttp.Server
}

// NewServer creates a metrics server for gatherer
func NewServer(gatherer prometheus.Gatherer) *Server {
	return &Server{
		srv: &fasthttp.Server{
			Handler: NewHandler(gatherer),
			Name:    "threadpool-metrics",
		},
	}
}

// Serve blocks serving ln until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

// ListenAndServe blocks serving addr until Shutdown
func (s *Server) ListenAndServe(addr string) error {
	return s.srv.ListenAndServe(addr)
}

// Shutdown stops accepting connections and waits for open ones up to ctx
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}
