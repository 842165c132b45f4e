package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// BlockClock supplies the current ledger height. Block height replaces
// wall-clock time for every deadline decision, so verdicts do not depend on
// any single observer's clock.
type BlockClock interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Phase describes where a challenge sits in its lifecycle.
type Phase string

const (
	PhaseCommit    Phase = "commit"
	PhaseReveal    Phase = "reveal"
	PhaseClosed    Phase = "closed"
	PhaseFinalized Phase = "finalized"
)

// Challenge is the on-chain counterpart of an off-chain verification: a
// prompt hash published at a known height with absolute commit and reveal
// deadlines.
type Challenge struct {
	ID             common.Hash
	PromptHash     common.Hash
	StartBlock     uint64
	CommitDeadline uint64
	RevealDeadline uint64
	Creator        common.Address
	Finalized      bool
	FinalScore     uint64
}

// Commitment records a single agent's hash precommitment and, once disclosed,
// its revealed answer. The commit hash is write-once.
type Commitment struct {
	Agent       common.Address
	CommitHash  common.Hash
	CommitBlock uint64
	Answer      string
	Revealed    bool
}

// SpreadBand maps a commit-block spread upper bound to a score.
type SpreadBand struct {
	MaxSpread uint64
	Score     uint64
}

// SpreadBands is the scoring policy for commit-block clustering. Bands assume
// a roughly fixed block interval; a ledger with a different interval should
// rescale MaxSpread values to keep the real-time semantics.
type SpreadBands struct {
	Bands     []SpreadBand
	BaseScore uint64
}

// DefaultSpreadBands returns the calibrated default policy.
func DefaultSpreadBands() SpreadBands {
	return SpreadBands{
		Bands: []SpreadBand{
			{MaxSpread: 2, Score: 100},
			{MaxSpread: 5, Score: 80},
			{MaxSpread: 10, Score: 60},
		},
		BaseScore: 40,
	}
}

// Score maps a spread to its band score.
func (s SpreadBands) Score(spread uint64) uint64 {
	for _, band := range s.Bands {
		if spread <= band.MaxSpread {
			return band.Score
		}
	}
	return s.BaseScore
}
