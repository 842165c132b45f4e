package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// manualClock is a hand-cranked block height source.
type manualClock struct {
	height uint64
}

func (c *manualClock) BlockNumber(context.Context) (uint64, error) {
	return c.height, nil
}

var (
	creator = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	agentA  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	agentB  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	agentC  = common.HexToAddress("0x00000000000000000000000000000000000000a3")
)

func newTestMachine(start uint64) (*Machine, *manualClock, Challenge) {
	clock := &manualClock{height: start}
	machine := NewMachine(clock)
	ch, err := machine.CreateChallenge(context.Background(), crypto.Keccak256Hash([]byte("prompt")), 10, 10, creator)
	if err != nil {
		panic(err)
	}
	return machine, clock, ch
}

func TestCreateChallengeDeadlines(t *testing.T) {
	_, _, ch := newTestMachine(100)
	if ch.StartBlock != 100 || ch.CommitDeadline != 110 || ch.RevealDeadline != 120 {
		t.Fatalf("unexpected windows: %+v", ch)
	}
	if ch.ID == (common.Hash{}) {
		t.Fatal("challenge id must be derived")
	}
	if ch.Creator != creator {
		t.Fatalf("unexpected creator: %s", ch.Creator)
	}
}

func TestChallengeIDBindsCreatorAndHeight(t *testing.T) {
	clock := &manualClock{height: 100}
	machine := NewMachine(clock)
	prompt := crypto.Keccak256Hash([]byte("prompt"))

	first, _ := machine.CreateChallenge(context.Background(), prompt, 10, 10, creator)
	other, _ := machine.CreateChallenge(context.Background(), prompt, 10, 10, agentA)
	if first.ID == other.ID {
		t.Fatal("different creators must yield different ids")
	}
	clock.height = 101
	later, _ := machine.CreateChallenge(context.Background(), prompt, 10, 10, creator)
	if first.ID == later.ID {
		t.Fatal("different heights must yield different ids")
	}
}

func TestCommitRules(t *testing.T) {
	machine, clock, ch := newTestMachine(100)
	hash := CommitHash("42", []byte("salt"))

	if err := machine.Commit(context.Background(), ch.ID, agentA, hash); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := machine.Commit(context.Background(), ch.ID, agentA, hash); !errors.Is(err, ErrAlreadyCommitted) {
		t.Fatalf("second commit must revert, got %v", err)
	}

	clock.height = 110 // commit deadline reached
	if err := machine.Commit(context.Background(), ch.ID, agentB, hash); !errors.Is(err, ErrCommitClosed) {
		t.Fatalf("commit at deadline must revert, got %v", err)
	}

	if err := machine.Commit(context.Background(), common.Hash{}, agentB, hash); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("unknown challenge must revert, got %v", err)
	}
}

func TestRevealRules(t *testing.T) {
	machine, clock, ch := newTestMachine(100)
	salt := []byte("pepper")
	if err := machine.Commit(context.Background(), ch.ID, agentA, CommitHash("42", salt)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := machine.Reveal(context.Background(), ch.ID, agentA, "42", salt); !errors.Is(err, ErrRevealNotOpen) {
		t.Fatalf("reveal during commit window must revert, got %v", err)
	}

	clock.height = 110
	if err := machine.Reveal(context.Background(), ch.ID, agentA, "42", []byte("wrong")); !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("wrong salt must revert, got %v", err)
	}
	if err := machine.Reveal(context.Background(), ch.ID, agentA, "43", salt); !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("changed answer must revert, got %v", err)
	}
	if err := machine.Reveal(context.Background(), ch.ID, agentB, "42", salt); !errors.Is(err, ErrNotCommitted) {
		t.Fatalf("reveal without commit must revert, got %v", err)
	}
	if err := machine.Reveal(context.Background(), ch.ID, agentA, "42", salt); err != nil {
		t.Fatalf("valid reveal: %v", err)
	}
	if err := machine.Reveal(context.Background(), ch.ID, agentA, "42", salt); !errors.Is(err, ErrAlreadyRevealed) {
		t.Fatalf("double reveal must revert, got %v", err)
	}

	clock.height = 121
	if err := machine.Commit(context.Background(), ch.ID, agentC, CommitHash("x", salt)); !errors.Is(err, ErrCommitClosed) {
		t.Fatalf("late commit must revert, got %v", err)
	}
}

func TestRevealAfterWindowReverts(t *testing.T) {
	machine, clock, ch := newTestMachine(100)
	salt := []byte("s")
	_ = machine.Commit(context.Background(), ch.ID, agentA, CommitHash("42", salt))

	clock.height = 121 // past reveal deadline
	if err := machine.Reveal(context.Background(), ch.ID, agentA, "42", salt); !errors.Is(err, ErrRevealClosed) {
		t.Fatalf("late reveal must revert, got %v", err)
	}
}

func TestFinalizeRules(t *testing.T) {
	machine, clock, ch := newTestMachine(100)
	salt := []byte("s")
	_ = machine.Commit(context.Background(), ch.ID, agentA, CommitHash("42", salt))

	if _, err := machine.Finalize(context.Background(), ch.ID, creator); !errors.Is(err, ErrRevealStillOpen) {
		t.Fatalf("finalize before reveal deadline must revert, got %v", err)
	}

	clock.height = 121
	if _, err := machine.Finalize(context.Background(), ch.ID, agentA); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("non-creator finalize must revert, got %v", err)
	}

	score, err := machine.Finalize(context.Background(), ch.ID, creator)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// One participant, no reveal: spread 0 scores 100, reveal rate 0.
	if score != 50 {
		t.Fatalf("unexpected score: %d", score)
	}

	if _, err := machine.Finalize(context.Background(), ch.ID, creator); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("second finalize must revert, got %v", err)
	}

	got, err := machine.Challenge(ch.ID)
	if err != nil {
		t.Fatalf("challenge view: %v", err)
	}
	if !got.Finalized || got.FinalScore != 50 {
		t.Fatalf("finalized state not recorded: %+v", got)
	}
}

func TestFinalizeScoresTightCluster(t *testing.T) {
	machine, clock, ch := newTestMachine(100)
	salts := [][]byte{[]byte("s1"), []byte("s2"), []byte("s3")}
	agents := []common.Address{agentA, agentB, agentC}

	// Commits land on blocks 100, 101, 102: spread 2.
	for i, agent := range agents {
		clock.height = 100 + uint64(i)
		if err := machine.Commit(context.Background(), ch.ID, agent, CommitHash("42", salts[i])); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}

	clock.height = 110
	for i, agent := range agents {
		if err := machine.Reveal(context.Background(), ch.ID, agent, "42", salts[i]); err != nil {
			t.Fatalf("reveal %d: %v", i, err)
		}
	}

	clock.height = 121
	score, err := machine.Finalize(context.Background(), ch.ID, creator)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if score != 100 {
		t.Fatalf("tight fully-revealed cluster must score 100, got %d", score)
	}
}

func TestFinalizeZeroParticipants(t *testing.T) {
	machine, clock, ch := newTestMachine(100)
	clock.height = 121
	score, err := machine.Finalize(context.Background(), ch.ID, creator)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if score != 0 {
		t.Fatalf("zero participants must score 0, got %d", score)
	}
}

func TestSpreadBands(t *testing.T) {
	bands := DefaultSpreadBands()
	cases := map[uint64]uint64{0: 100, 2: 100, 3: 80, 5: 80, 6: 60, 10: 60, 11: 40, 15: 40, 100: 40}
	for spread, want := range cases {
		if got := bands.Score(spread); got != want {
			t.Fatalf("spread %d: got %d want %d", spread, got, want)
		}
	}
}

func TestPhaseAt(t *testing.T) {
	machine, clock, ch := newTestMachine(100)

	for _, tc := range []struct {
		height uint64
		want   Phase
	}{
		{100, PhaseCommit},
		{109, PhaseCommit},
		{110, PhaseReveal},
		{120, PhaseReveal},
		{121, PhaseClosed},
	} {
		got, err := machine.PhaseAt(ch.ID, tc.height)
		if err != nil {
			t.Fatalf("phase at %d: %v", tc.height, err)
		}
		if got != tc.want {
			t.Fatalf("phase at %d: got %s want %s", tc.height, got, tc.want)
		}
	}

	clock.height = 121
	if _, err := machine.Finalize(context.Background(), ch.ID, creator); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	got, err := machine.PhaseAt(ch.ID, 121)
	if err != nil {
		t.Fatalf("phase after finalize: %v", err)
	}
	if got != PhaseFinalized {
		t.Fatalf("expected finalized, got %s", got)
	}
}

func TestCommitmentsOrdered(t *testing.T) {
	machine, clock, ch := newTestMachine(100)
	_ = machine.Commit(context.Background(), ch.ID, agentB, CommitHash("1", []byte("s")))
	clock.height = 101
	_ = machine.Commit(context.Background(), ch.ID, agentA, CommitHash("2", []byte("s")))

	commitments, err := machine.Commitments(ch.ID)
	if err != nil {
		t.Fatalf("commitments: %v", err)
	}
	if len(commitments) != 2 || commitments[0].Agent != agentB || commitments[1].Agent != agentA {
		t.Fatalf("participant order not preserved: %+v", commitments)
	}
	if commitments[0].CommitBlock != 100 || commitments[1].CommitBlock != 101 {
		t.Fatalf("commit blocks not recorded: %+v", commitments)
	}
}
