package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	logx "sitepacer/pkg/logx"
)

const defaultListen = "127.0.0.1:9090"

// Server exposes /metrics over HTTP. Bind to localhost unless the host
// firewall is trusted.
type Server struct {
	srv *http.Server
	log logx.Logger
}

func NewServer(listen string, log logx.Logger) *Server {
	if listen == "" {
		listen = defaultListen
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv: &http.Server{
			Addr:              listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

func (s *Server) Start() {
	go func() {
		if !s.log.IsZero() {
			s.log.Info("metrics listener started", logx.String("addr", s.srv.Addr))
		}
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if !s.log.IsZero() {
				s.log.Error("metrics listener failed", logx.Any("err", err))
			}
		}
	}()
}

func (s *Server) Stop(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = s.srv.Shutdown(sctx)
}
