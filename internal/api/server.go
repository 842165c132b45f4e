package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pvtclawn/swarm-verifier/internal/chain"
	xerrors "github.com/pvtclawn/swarm-verifier/internal/errors"
	"github.com/pvtclawn/swarm-verifier/internal/jobs"
	"github.com/pvtclawn/swarm-verifier/internal/observability/metrics"
	"github.com/pvtclawn/swarm-verifier/internal/verifier"
)

// 未配置账本时的挑战窗口默认值，按 12 秒级出块间隔标定。
const (
	defaultCommitBlocks = 25
	defaultRevealBlocks = 50
)

// Server 负责暴露 REST 接口，供外部发起验证。
type Server struct {
	addr     string
	verifier *verifier.Verifier
	jobs     *jobs.Service

	machine      *chain.Machine
	clock        chain.BlockClock
	commitBlocks uint64
	revealBlocks uint64
}

// ServerOption 定义可选的 Server 配置。
type ServerOption func(*Server)

// WithChainMachine 挂载承诺揭示状态机及其区块时钟，启用链上挑战接口。
func WithChainMachine(machine *chain.Machine, clock chain.BlockClock) ServerOption {
	return func(s *Server) {
		s.machine = machine
		s.clock = clock
	}
}

// WithChallengeWindows 覆盖创建挑战时的默认窗口长度。
func WithChallengeWindows(commitBlocks, revealBlocks uint64) ServerOption {
	return func(s *Server) {
		if commitBlocks > 0 {
			s.commitBlocks = commitBlocks
		}
		if revealBlocks > 0 {
			s.revealBlocks = revealBlocks
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, v *verifier.Verifier, jobService *jobs.Service, opts ...ServerOption) *Server {
	s := &Server{
		addr:         addr,
		verifier:     v,
		jobs:         jobService,
		commitBlocks: defaultCommitBlocks,
		revealBlocks: defaultRevealBlocks,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 返回挂载了全部路由的处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/verifications", instrument("verifications", s.handleVerifications))
	mux.HandleFunc("/api/v1/verifications/async", instrument("verifications_async", s.handleAsyncVerification))
	mux.HandleFunc("/api/v1/verifications/", instrument("verification", s.handleGetVerification))
	mux.HandleFunc("/api/v1/jobs", instrument("jobs", s.handleJobs))
	mux.HandleFunc("/api/v1/jobs/", instrument("job", s.handleGetJob))
	mux.HandleFunc("/api/v1/chain/challenges", instrument("chain_challenges", s.handleChainChallenges))
	mux.HandleFunc("/api/v1/chain/challenges/", instrument("chain_challenge", s.handleChainChallenge))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func (s *Server) handleVerifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.verifier == nil {
		http.Error(w, "验证器未初始化", http.StatusServiceUnavailable)
		return
	}

	var req verifier.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	verification, err := s.verifier.Verify(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.ObserveVerification(string(verification.Verdict))
	writeJSON(w, http.StatusOK, verification)
}

func (s *Server) handleGetVerification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.verifier == nil {
		http.Error(w, "验证器未初始化", http.StatusServiceUnavailable)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/verifications/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "非法的验证 ID", http.StatusBadRequest)
		return
	}

	verification, err := s.verifier.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verification)
}

// handleAsyncVerification 是异步验证的提交入口，任务排队后立即返回。
func (s *Server) handleAsyncVerification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.jobs == nil {
		http.Error(w, "任务服务未初始化", http.StatusServiceUnavailable)
		return
	}
	s.handleSubmitJob(w, r)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		http.Error(w, "任务服务未初始化", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req verifier.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	job, err := s.jobs.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	opts := jobs.ListOptions{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts.Limit = parsed
		}
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		opts.Statuses = append(opts.Statuses, jobs.Status(raw))
	}

	results, err := s.jobs.List(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.jobs == nil {
		http.Error(w, "任务服务未初始化", http.StatusServiceUnavailable)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "非法的任务 ID", http.StatusBadRequest)
		return
	}

	job, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError 按错误码映射 HTTP 状态，服务端错误不向调用方泄露细节。
func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	switch code {
	case xerrors.CodeInvalidArgument, jobs.CodeJobValidation:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case xerrors.CodeNotFound, jobs.CodeJobNotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	case xerrors.CodeConflict, jobs.CodeJobConflict:
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "内部服务错误", http.StatusInternalServerError)
	}
}

// instrument 记录请求指标。
func instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
