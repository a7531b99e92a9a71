package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/monitor-client/pkg/config"
	"github.com/monitor-client/pkg/module"
)

// ErrDuplicateRoute 同一 "METHOD pattern" 重复注册
var ErrDuplicateRoute = errors.New("route already registered")

// Server HTTP服务实例，封装核心依赖和配置
type Server struct {
	cfg      *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
	registry *prometheus.Registry
	mux      *customMux

	mu       sync.Mutex
	listener net.Listener
}

// statusWriter 包装ResponseWriter，捕获状态码
type statusWriter struct {
	http.ResponseWriter
	status int
}

// customMux 自定义Mux，记录已注册路由并拒绝重复注册
type customMux struct {
	http.ServeMux
	routes []string
	mu     sync.Mutex
}

// Handle 注册路由；重复或冲突的 pattern 返回错误（原生 ServeMux 会 panic）
func (m *customMux) Handle(pattern string, handler http.Handler) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("register route %q: %v", pattern, r)
		}
	}()

	for _, route := range m.routes {
		if route == pattern {
			return fmt.Errorf("%w: %s", ErrDuplicateRoute, pattern)
		}
	}
	m.ServeMux.Handle(pattern, handler)
	m.routes = append(m.routes, pattern)
	return nil
}

// HandleFunc 重写HandleFunc
func (m *customMux) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) error {
	return m.Handle(pattern, http.HandlerFunc(handler))
}

func (m *customMux) Routes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.routes...)
	sort.Strings(out)
	return out
}

// NewHTTPServer 创建HTTP服务实例；registry 为 nil 时不暴露 /metrics
func NewHTTPServer(cfg *config.ServerConfig, logger *zap.Logger, registry *prometheus.Registry) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		mux:      &customMux{},
	}

	// 注册核心端点
	srv.registerEndpoints()

	srv.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.logMiddleware(srv.mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return srv
}

// Handler 带日志中间件的根 handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Handle 注册额外的端点
func (s *Server) Handle(pattern string, handler http.Handler) error {
	return s.mux.Handle(pattern, handler)
}

// Mount 挂载模块路由，pattern 形如 "GET /modules/disk/usage"
func (s *Server) Mount(routes []module.Route) error {
	for _, r := range routes {
		pattern := strings.ToUpper(r.Method) + " " + r.Pattern
		if err := s.mux.Handle(pattern, r.Handler); err != nil {
			return err
		}
		s.logger.Debug("module route mounted", zap.String("route", pattern))
	}
	return nil
}

// logMiddleware 统一日志记录
func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		s.logger.Debug(
			"HTTP request",
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="zh-CN">
<head>
	<meta charset="UTF-8">
	<title>Monitor Client</title>
	<style>
		body { font-family: Arial, sans-serif; margin: 40px; }
		h1 { color: #333; }
		li { margin: 8px 0; font-size: 18px; }
	</style>
</head>
<body>
	<h1>Monitor Client</h1>
	<p>Service is running.</p>
	<h2>Available Endpoints:</h2>
	<ul>{{range .}}<li><code>{{.}}</code></li>{{end}}</ul>
</body>
</html>
`))

// registerEndpoints 注册核心路由
func (s *Server) registerEndpoints() {
	_ = s.mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = indexTmpl.Execute(w, s.mux.Routes())
	})

	if s.registry != nil {
		_ = s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
			ErrorLog: zap.NewStdLog(s.logger),
		}))
	}

	_ = s.mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

// WriteHeader 捕获状态码
func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Start 启动HTTP服务（非阻塞）；监听失败同步返回
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info(
		"starting HTTP server",
		zap.String("listen_addr", ln.Addr().String()),
		zap.Strings("handle_funcs", s.mux.Routes()),
	)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()
	return nil
}

// Addr 实际监听地址（Start 之后有效）
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown 优雅关闭HTTP服务
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("shutdown timeout exceeded")
			return nil
		}
		s.logger.Error("HTTP server shutdown failed", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server shutdown successfully")
	return nil
}
