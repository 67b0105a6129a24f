package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dep2p/go-connstate/internal/core/gate"
	"github.com/dep2p/go-connstate/internal/core/metrics"
	"github.com/dep2p/go-connstate/pkg/interfaces"
	"github.com/dep2p/go-connstate/pkg/lib/log"
	"github.com/dep2p/go-connstate/pkg/types"
)

var logger = log.Logger("debug/introspect")

// DefaultAddr 默认监听地址
const DefaultAddr = "127.0.0.1:7070"

const (
	// streamWriteTimeout 单帧写超时
	streamWriteTimeout = 10 * time.Second
	// streamPingInterval 心跳间隔
	streamPingInterval = 30 * time.Second
)

// ============================================================================
//                              配置
// ============================================================================

// Config 服务配置
type Config struct {
	// Addr 监听地址，默认 "127.0.0.1:7070"
	Addr string

	// Machine 连通性状态机
	Machine interfaces.ConnectivityMachine

	// Gate 可选的门控，用于 /retry 与 UI 指令
	Gate *gate.Gate

	// Metrics 可选的指标记录器，用于 /metrics
	Metrics *metrics.Recorder

	// CustomHandlers 自定义处理器
	CustomHandlers map[string]http.HandlerFunc
}

// ============================================================================
//                              Server
// ============================================================================

// Server 本地状态 HTTP 服务
type Server struct {
	config   Config
	upgrader websocket.Upgrader

	// HTTP 服务器
	server   *http.Server
	listener net.Listener

	// 状态流在服务停止时退出
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	streamsMu sync.Mutex

	// 状态
	running   bool
	startTime time.Time

	mu sync.Mutex
}

// New 创建本地状态服务
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config: cfg,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
		},
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Handler 返回路由
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// 连通性端点
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/status/stream", s.handleStream)
	mux.HandleFunc("/retry", s.handleRetry)

	// 指标
	if s.config.Metrics != nil {
		mux.Handle("/metrics", s.config.Metrics.Handler())
	}

	// 运行时与 pprof 端点
	mux.HandleFunc("/debug/introspect/runtime", s.handleRuntime)
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// 健康检查
	mux.HandleFunc("/health", s.handleHealth)

	// 自定义处理器
	for path, handler := range s.config.CustomHandlers {
		mux.HandleFunc(path, handler)
	}
	return mux
}

// Start 启动服务
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// 创建监听器
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.listener = listener

	// 创建 HTTP 服务器
	s.server = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
	}

	// 启动服务
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("状态服务异常退出", "error", err)
		}
	}()

	s.running = true
	s.startTime = time.Now()
	logger.Info("状态服务已启动", "addr", listener.Addr().String())
	return nil
}

// Stop 停止服务
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	// 先结束状态流，Shutdown 不会关闭已升级的连接
	s.streamsMu.Lock()
	s.cancel()
	s.streamsMu.Unlock()
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logger.Error("关闭状态服务失败", "error", err)
		return err
	}

	s.running = false
	logger.Info("状态服务已停止")
	return nil
}

// Addr 返回实际监听地址
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// ============================================================================
//                              响应结构
// ============================================================================

// StatusResponse 连通性状态响应
type StatusResponse struct {
	Timestamp  time.Time             `json:"timestamp"`
	Status     string                `json:"status"`
	Snapshot   types.NetworkSnapshot `json:"snapshot"`
	Directives gate.Directives       `json:"directives"`
	Metrics    *metrics.Snapshot     `json:"metrics,omitempty"`
}

// RetryResponse 重试响应
type RetryResponse struct {
	Status     string          `json:"status"`
	Directives gate.Directives `json:"directives"`
	Error      string          `json:"error,omitempty"`
}

// StreamFrame 状态流帧
type StreamFrame struct {
	// Type "snapshot"（连接建立时）或 "change"
	Type      string                `json:"type"`
	Previous  string                `json:"previous,omitempty"`
	Current   string                `json:"current"`
	Reason    string                `json:"reason,omitempty"`
	Snapshot  types.NetworkSnapshot `json:"snapshot"`
	Timestamp time.Time             `json:"timestamp"`
}

// RuntimeInfo 运行时信息
type RuntimeInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc"`
	MemSys       uint64 `json:"mem_sys"`
	NumGC        uint32 `json:"num_gc"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status     string    `json:"status"`
	Connection string    `json:"connection,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Uptime     string    `json:"uptime,omitempty"`
}

// ============================================================================
//                              HTTP 处理器
// ============================================================================

// handleStatus 处理状态查询
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.config.Machine == nil {
		http.Error(w, "Connectivity machine not available", http.StatusServiceUnavailable)
		return
	}

	snap := s.config.Machine.Snapshot()
	resp := StatusResponse{
		Timestamp:  time.Now(),
		Status:     snap.Status.String(),
		Snapshot:   snap,
		Directives: gate.Derive(snap),
	}
	if s.config.Metrics != nil {
		ms := s.config.Metrics.Snapshot()
		resp.Metrics = &ms
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleRetry 处理手动重试
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.config.Machine == nil {
		http.Error(w, "Connectivity machine not available", http.StatusServiceUnavailable)
		return
	}

	var resp RetryResponse
	code := http.StatusOK
	if s.config.Gate != nil {
		if err := s.config.Gate.Retry(r.Context()); err != nil {
			resp.Error = err.Error()
			code = http.StatusServiceUnavailable
		}
	} else {
		s.config.Machine.CheckFullConnectivity(r.Context())
	}

	snap := s.config.Machine.Snapshot()
	resp.Status = snap.Status.String()
	resp.Directives = gate.Derive(snap)

	logger.Debug("状态接口触发重试", "status", resp.Status)
	s.writeJSON(w, code, resp)
}

// handleStream 推送状态变更（WebSocket）
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.config.Machine == nil {
		http.Error(w, "Connectivity machine not available", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// 升级失败时 upgrader 已写入响应
		logger.Debug("WebSocket 升级失败", "error", err)
		return
	}

	defer conn.Close()

	s.streamsMu.Lock()
	if s.ctx.Err() != nil {
		s.streamsMu.Unlock()
		closeStream(conn, "server shutting down")
		return
	}
	s.wg.Add(1)
	s.streamsMu.Unlock()
	defer s.wg.Done()

	machine := s.config.Machine
	changes := machine.Subscribe()
	defer machine.Unsubscribe(changes)

	// 读循环只用于感知客户端关闭
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snap := machine.Snapshot()
	if err := writeFrame(conn, StreamFrame{
		Type:      "snapshot",
		Current:   snap.Status.String(),
		Snapshot:  snap,
		Timestamp: time.Now(),
	}); err != nil {
		return
	}

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case change, ok := <-changes:
			if !ok {
				closeStream(conn, "connectivity machine closed")
				return
			}
			if err := writeFrame(conn, StreamFrame{
				Type:      "change",
				Previous:  change.Previous.String(),
				Current:   change.Current.String(),
				Reason:    change.Reason.String(),
				Snapshot:  change.Snapshot,
				Timestamp: change.Timestamp,
			}); err != nil {
				logger.Debug("状态流写入失败", "error", err)
				return
			}

		case <-ping.C:
			deadline := time.Now().Add(streamWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}

		case <-closed:
			return

		case <-s.ctx.Done():
			closeStream(conn, "server shutting down")
			return
		}
	}
}

// handleRuntime 处理运行时信息请求
func (s *Server) handleRuntime(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	s.writeJSON(w, http.StatusOK, RuntimeInfo{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     memStats.Alloc,
		MemSys:       memStats.Sys,
		NumGC:        memStats.NumGC,
	})
}

// handleHealth 处理健康检查请求
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startTime).String(),
	}

	// 检查核心组件
	if s.config.Machine == nil {
		health.Status = "degraded"
	} else {
		health.Connection = s.config.Machine.Status().String()
	}

	s.writeJSON(w, http.StatusOK, health)
}

// ============================================================================
//                              辅助方法
// ============================================================================

// writeJSON 写入 JSON 响应
func (s *Server) writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		logger.Error("JSON 编码失败", "error", err)
	}
}

func writeFrame(conn *websocket.Conn, frame StreamFrame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(frame)
}

func closeStream(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
