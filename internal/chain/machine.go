package chain

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "github.com/pvtclawn/swarm-verifier/internal/errors"
)

// Revert-style errors. Each precondition violation rejects the triggering
// call synchronously and leaves all prior state untouched.
var (
	ErrChallengeNotFound = xerrors.New(xerrors.CodeChainRevert, "challenge not found")
	ErrCommitClosed      = xerrors.New(xerrors.CodeChainRevert, "commit window closed")
	ErrAlreadyCommitted  = xerrors.New(xerrors.CodeChainRevert, "agent already committed")
	ErrRevealNotOpen     = xerrors.New(xerrors.CodeChainRevert, "reveal window not open yet")
	ErrRevealClosed      = xerrors.New(xerrors.CodeChainRevert, "reveal window closed")
	ErrNotCommitted      = xerrors.New(xerrors.CodeChainRevert, "agent never committed")
	ErrAlreadyRevealed   = xerrors.New(xerrors.CodeChainRevert, "agent already revealed")
	ErrHashMismatch      = xerrors.New(xerrors.CodeChainRevert, "reveal does not match commit hash")
	ErrNotCreator        = xerrors.New(xerrors.CodeChainRevert, "only the creator can finalize")
	ErrRevealStillOpen   = xerrors.New(xerrors.CodeChainRevert, "reveal window still open")
	ErrAlreadyFinalized  = xerrors.New(xerrors.CodeChainRevert, "challenge already finalized")
	ErrBadWindow         = xerrors.New(xerrors.CodeChainRevert, "window lengths must be positive")
)

// CommitHash derives the precommitment hash for an answer and salt, exactly
// the digest Reveal later checks against.
func CommitHash(answer string, salt []byte) common.Hash {
	return crypto.Keccak256Hash([]byte(answer), salt)
}

// challengeState bundles a challenge with its ordered participant list.
type challengeState struct {
	challenge   Challenge
	order       []common.Address
	commitments map[common.Address]*Commitment
}

// Machine is the commit-reveal state machine. A single mutex serializes all
// writes, standing in for the ledger's native transaction ordering; intra-block
// ordering is immaterial because scoring reads block heights only.
type Machine struct {
	mu         sync.Mutex
	clock      BlockClock
	spreads    SpreadBands
	challenges map[common.Hash]*challengeState
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithSpreadBands overrides the commit-spread scoring policy.
func WithSpreadBands(bands SpreadBands) MachineOption {
	return func(m *Machine) {
		m.spreads = bands
	}
}

// NewMachine creates a commit-reveal machine on top of the given clock.
func NewMachine(clock BlockClock, opts ...MachineOption) *Machine {
	m := &Machine{
		clock:      clock,
		spreads:    DefaultSpreadBands(),
		challenges: make(map[common.Hash]*challengeState),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// CreateChallenge publishes a prompt hash and opens the commit window.
// The id binds uniqueness to creator and moment: it is a hash over the prompt
// hash, the current block height and the creator address.
func (m *Machine) CreateChallenge(ctx context.Context, promptHash common.Hash, commitBlocks, revealBlocks uint64, creator common.Address) (Challenge, error) {
	if commitBlocks == 0 || revealBlocks == 0 {
		return Challenge{}, ErrBadWindow
	}
	height, err := m.clock.BlockNumber(ctx)
	if err != nil {
		return Challenge{}, xerrors.Wrap(xerrors.CodeChainRevert, err, "read block height")
	}

	var heightBytes [8]byte
	binary.BigEndian.PutUint64(heightBytes[:], height)
	id := crypto.Keccak256Hash(promptHash[:], heightBytes[:], creator[:])

	m.mu.Lock()
	defer m.mu.Unlock()

	ch := Challenge{
		ID:             id,
		PromptHash:     promptHash,
		StartBlock:     height,
		CommitDeadline: height + commitBlocks,
		RevealDeadline: height + commitBlocks + revealBlocks,
		Creator:        creator,
	}
	m.challenges[id] = &challengeState{
		challenge:   ch,
		commitments: make(map[common.Address]*Commitment),
	}
	return ch, nil
}

// Commit records an agent's hash precommitment. Accepted only strictly before
// the commit deadline and only once per agent; the hash can never be replaced
// or retracted afterwards.
func (m *Machine) Commit(ctx context.Context, id common.Hash, agent common.Address, commitHash common.Hash) error {
	height, err := m.clock.BlockNumber(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeChainRevert, err, "read block height")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.challenges[id]
	if !ok {
		return ErrChallengeNotFound
	}
	if height >= state.challenge.CommitDeadline {
		return ErrCommitClosed
	}
	if _, exists := state.commitments[agent]; exists {
		return ErrAlreadyCommitted
	}

	state.order = append(state.order, agent)
	state.commitments[agent] = &Commitment{
		Agent:       agent,
		CommitHash:  commitHash,
		CommitBlock: height,
	}
	return nil
}

// Reveal discloses an answer. Accepted only inside the reveal window, only for
// agents that committed and have not revealed, and only when the answer and
// salt reproduce the stored commit hash exactly.
func (m *Machine) Reveal(ctx context.Context, id common.Hash, agent common.Address, answer string, salt []byte) error {
	height, err := m.clock.BlockNumber(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeChainRevert, err, "read block height")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.challenges[id]
	if !ok {
		return ErrChallengeNotFound
	}
	if height < state.challenge.CommitDeadline {
		return ErrRevealNotOpen
	}
	if height > state.challenge.RevealDeadline {
		return ErrRevealClosed
	}
	commitment, exists := state.commitments[agent]
	if !exists {
		return ErrNotCommitted
	}
	if commitment.Revealed {
		return ErrAlreadyRevealed
	}
	if CommitHash(answer, salt) != commitment.CommitHash {
		return ErrHashMismatch
	}

	commitment.Answer = answer
	commitment.Revealed = true
	return nil
}

// Finalize closes a challenge. Only the creator may call it, only after the
// reveal deadline, only once. The score pairs commit-block clustering with
// reveal completion: final = (spreadScore + revealRate) / 2, integer math as
// a contract would compute it. Zero participants score 0.
func (m *Machine) Finalize(ctx context.Context, id common.Hash, caller common.Address) (uint64, error) {
	height, err := m.clock.BlockNumber(ctx)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeChainRevert, err, "read block height")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.challenges[id]
	if !ok {
		return 0, ErrChallengeNotFound
	}
	if caller != state.challenge.Creator {
		return 0, ErrNotCreator
	}
	if state.challenge.Finalized {
		return 0, ErrAlreadyFinalized
	}
	if height <= state.challenge.RevealDeadline {
		return 0, ErrRevealStillOpen
	}

	score := uint64(0)
	if len(state.order) > 0 {
		minBlock := state.commitments[state.order[0]].CommitBlock
		maxBlock := minBlock
		revealed := uint64(0)
		for _, agent := range state.order {
			c := state.commitments[agent]
			if c.CommitBlock < minBlock {
				minBlock = c.CommitBlock
			}
			if c.CommitBlock > maxBlock {
				maxBlock = c.CommitBlock
			}
			if c.Revealed {
				revealed++
			}
		}
		spreadScore := m.spreads.Score(maxBlock - minBlock)
		revealRate := revealed * 100 / uint64(len(state.order))
		score = (spreadScore + revealRate) / 2
	}

	state.challenge.Finalized = true
	state.challenge.FinalScore = score
	return score, nil
}

// Challenge returns a copy of the challenge state, usable at any phase.
func (m *Machine) Challenge(id common.Hash) (Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.challenges[id]
	if !ok {
		return Challenge{}, ErrChallengeNotFound
	}
	return state.challenge, nil
}

// Commitments returns copies of all commitments in commit order.
func (m *Machine) Commitments(id common.Hash) ([]Commitment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.challenges[id]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	out := make([]Commitment, 0, len(state.order))
	for _, agent := range state.order {
		out = append(out, *state.commitments[agent])
	}
	return out, nil
}

// PhaseAt reports the lifecycle phase of a challenge at the given height.
func (m *Machine) PhaseAt(id common.Hash, height uint64) (Phase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.challenges[id]
	if !ok {
		return "", ErrChallengeNotFound
	}
	switch {
	case state.challenge.Finalized:
		return PhaseFinalized, nil
	case height < state.challenge.CommitDeadline:
		return PhaseCommit, nil
	case height <= state.challenge.RevealDeadline:
		return PhaseReveal, nil
	default:
		return PhaseClosed, nil
	}
}
