package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pvtclawn/swarm-verifier/internal/chain"
	xerrors "github.com/pvtclawn/swarm-verifier/internal/errors"
	"github.com/pvtclawn/swarm-verifier/pkg/logger"
)

// createChallengeRequest 描述链上挑战的创建参数。
// 未填写窗口长度时使用服务端按账本出块间隔配置的默认值。
type createChallengeRequest struct {
	PromptHash   string `json:"prompt_hash"`
	CommitBlocks uint64 `json:"commit_blocks"`
	RevealBlocks uint64 `json:"reveal_blocks"`
	Creator      string `json:"creator"`
}

type commitRequest struct {
	Agent      string `json:"agent"`
	CommitHash string `json:"commit_hash"`
}

type revealRequest struct {
	Agent  string `json:"agent"`
	Answer string `json:"answer"`
	Salt   string `json:"salt"`
}

type finalizeRequest struct {
	Caller string `json:"caller"`
}

type commitmentView struct {
	Agent       string `json:"agent"`
	CommitHash  string `json:"commit_hash"`
	CommitBlock uint64 `json:"commit_block"`
	Revealed    bool   `json:"revealed"`
	Answer      string `json:"answer,omitempty"`
}

type challengeView struct {
	ID             string           `json:"id"`
	PromptHash     string           `json:"prompt_hash"`
	StartBlock     uint64           `json:"start_block"`
	CommitDeadline uint64           `json:"commit_deadline"`
	RevealDeadline uint64           `json:"reveal_deadline"`
	Creator        string           `json:"creator"`
	Finalized      bool             `json:"finalized"`
	FinalScore     uint64           `json:"final_score"`
	Phase          chain.Phase      `json:"phase,omitempty"`
	Height         uint64           `json:"height,omitempty"`
	Commitments    []commitmentView `json:"commitments,omitempty"`
}

func newChallengeView(ch chain.Challenge) challengeView {
	return challengeView{
		ID:             ch.ID.Hex(),
		PromptHash:     ch.PromptHash.Hex(),
		StartBlock:     ch.StartBlock,
		CommitDeadline: ch.CommitDeadline,
		RevealDeadline: ch.RevealDeadline,
		Creator:        ch.Creator.Hex(),
		Finalized:      ch.Finalized,
		FinalScore:     ch.FinalScore,
	}
}

func (s *Server) handleChainChallenges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.machine == nil {
		http.Error(w, "链上验证未启用", http.StatusServiceUnavailable)
		return
	}

	var req createChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	promptHash, err := parseHash(req.PromptHash)
	if err != nil {
		http.Error(w, "非法的题目哈希", http.StatusBadRequest)
		return
	}
	creator, err := parseAddress(req.Creator)
	if err != nil {
		http.Error(w, "非法的创建者地址", http.StatusBadRequest)
		return
	}
	commitBlocks := req.CommitBlocks
	if commitBlocks == 0 {
		commitBlocks = s.commitBlocks
	}
	revealBlocks := req.RevealBlocks
	if revealBlocks == 0 {
		revealBlocks = s.revealBlocks
	}

	ch, err := s.machine.CreateChallenge(r.Context(), promptHash, commitBlocks, revealBlocks, creator)
	if err != nil {
		writeChainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newChallengeView(ch))
}

// handleChainChallenge 分派 /api/v1/chain/challenges/{id}[/{action}]。
func (s *Server) handleChainChallenge(w http.ResponseWriter, r *http.Request) {
	if s.machine == nil {
		http.Error(w, "链上验证未启用", http.StatusServiceUnavailable)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/chain/challenges/")
	idPart, action, _ := strings.Cut(rest, "/")
	id, err := parseHash(idPart)
	if err != nil {
		http.Error(w, "非法的挑战 ID", http.StatusBadRequest)
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
			return
		}
		s.handleChainChallengeState(w, r, id)
	case "commit":
		s.handleChainCommit(w, r, id)
	case "reveal":
		s.handleChainReveal(w, r, id)
	case "finalize":
		s.handleChainFinalize(w, r, id)
	default:
		http.Error(w, "未知的挑战操作", http.StatusNotFound)
	}
}

func (s *Server) handleChainChallengeState(w http.ResponseWriter, r *http.Request, id common.Hash) {
	ch, err := s.machine.Challenge(id)
	if err != nil {
		writeChainError(w, err)
		return
	}
	view := newChallengeView(ch)

	commitments, err := s.machine.Commitments(id)
	if err != nil {
		writeChainError(w, err)
		return
	}
	for _, c := range commitments {
		view.Commitments = append(view.Commitments, commitmentView{
			Agent:       c.Agent.Hex(),
			CommitHash:  c.CommitHash.Hex(),
			CommitBlock: c.CommitBlock,
			Revealed:    c.Revealed,
			Answer:      c.Answer,
		})
	}

	if s.clock != nil {
		if height, clockErr := s.clock.BlockNumber(r.Context()); clockErr == nil {
			view.Height = height
			if phase, phaseErr := s.machine.PhaseAt(id, height); phaseErr == nil {
				view.Phase = phase
			}
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleChainCommit(w http.ResponseWriter, r *http.Request, id common.Hash) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	agent, err := parseAddress(req.Agent)
	if err != nil {
		http.Error(w, "非法的智能体地址", http.StatusBadRequest)
		return
	}
	commitHash, err := parseHash(req.CommitHash)
	if err != nil {
		http.Error(w, "非法的承诺哈希", http.StatusBadRequest)
		return
	}
	if err := s.machine.Commit(r.Context(), id, agent, commitHash); err != nil {
		writeChainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "committed"})
}

func (s *Server) handleChainReveal(w http.ResponseWriter, r *http.Request, id common.Hash) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req revealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	agent, err := parseAddress(req.Agent)
	if err != nil {
		http.Error(w, "非法的智能体地址", http.StatusBadRequest)
		return
	}
	salt, err := hex.DecodeString(strings.TrimPrefix(req.Salt, "0x"))
	if err != nil {
		http.Error(w, "非法的盐值", http.StatusBadRequest)
		return
	}
	if err := s.machine.Reveal(r.Context(), id, agent, req.Answer, salt); err != nil {
		writeChainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revealed"})
}

func (s *Server) handleChainFinalize(w http.ResponseWriter, r *http.Request, id common.Hash) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		http.Error(w, "非法的调用者地址", http.StatusBadRequest)
		return
	}
	score, err := s.machine.Finalize(r.Context(), id, caller)
	if err != nil {
		writeChainError(w, err)
		return
	}
	logger.Audit().Info("链上挑战已定分",
		slog.String("challenge_id", id.Hex()),
		slog.Uint64("score", score),
	)
	writeJSON(w, http.StatusOK, map[string]uint64{"score": score})
}

// parseHash 要求 0x 前缀可选的 32 字节十六进制串。
func parseHash(raw string) (common.Hash, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return common.Hash{}, err
	}
	if len(decoded) != common.HashLength {
		return common.Hash{}, errors.New("hash must be 32 bytes")
	}
	return common.BytesToHash(decoded), nil
}

func parseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, errors.New("invalid address")
	}
	return common.HexToAddress(trimmed), nil
}

// writeChainError 把状态机的回退错误映射为客户端错误。
// 挑战不存在映射 404，其余前置条件失败映射 409。
func writeChainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chain.ErrChallengeNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case xerrors.CodeOf(err) == xerrors.CodeChainRevert:
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, err)
	}
}
