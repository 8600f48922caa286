package core

import (
	"bytes"
	"testing"

	"newton-kernel/internal/testutil"
)

/*
	--------------------------------------------------------------------
	Ledger: genesis, hash-chain linkage, tamper detection, export/replay
	--------------------------------------------------------------------
*/

func TestNewLedger_HasGenesisEntry(t *testing.T) {
	t.Parallel()

	l := NewLedger(DefaultKernelConfig())
	if l.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", l.Len())
	}
	entries := l.Entries()
	g := entries[0]
	if g.Forge != "<genesis>" || g.Status != StatusFin || g.PrevHash == "" {
		t.Fatalf("genesis entry = %+v, want forge=<genesis> status=fin", g)
	}
	if g.PrevHash != zeroHash()[:len(g.PrevHash)] {
		t.Fatalf("genesis PrevHash = %q, want a prefix of the zero hash", g.PrevHash)
	}
}

func TestLedger_AppendChain_VerifiesClean(t *testing.T) {
	t.Parallel()

	l := NewLedger(DefaultKernelConfig())
	state := map[string]TaggedValue{"balance": Money(100)}
	for i := 0; i < 5; i++ {
		next := map[string]TaggedValue{"balance": Money(float64(100 + i))}
		l.Append("deposit", map[string]TaggedValue{"amount": Money(1)}, StatusFin, state, next, nil, nil)
		state = next
	}
	if l.Len() != 6 {
		t.Fatalf("Len() = %d, want 6 (genesis + 5 appends)", l.Len())
	}
	if res := l.VerifyChain(); !res.Valid {
		t.Fatalf("VerifyChain() = %+v, want valid", res)
	}
}

// TestLedger_TamperDetection: after several successful runs, mutating a
// single entry's payload in place must be caught by VerifyChain at the
// tampered index, not silently accepted.
func TestLedger_TamperDetection(t *testing.T) {
	t.Parallel()

	l := NewLedger(DefaultKernelConfig())
	state := map[string]TaggedValue{"balance": Money(100)}
	for i := 0; i < 5; i++ {
		next := map[string]TaggedValue{"balance": Money(float64(100 + i))}
		l.Append("deposit", map[string]TaggedValue{"amount": Money(1)}, StatusFin, state, next, nil, nil)
		state = next
	}

	// Entries() hands back LedgerEntry values whose map fields still alias
	// the ledger's own maps, so mutating a returned entry's StateAfter map is
	// equivalent to an in-place payload tamper.
	entries := l.Entries()
	tampered := entries[3]
	tampered.StateAfter["balance"] = Money(999999)

	res := l.VerifyChain()
	if res.Valid {
		t.Fatalf("VerifyChain() after tamper = valid, want invalid")
	}
	if res.BrokenAt != 3 {
		t.Fatalf("VerifyChain().BrokenAt = %d, want 3", res.BrokenAt)
	}
}

func TestLedger_PrefixThrough_BoundsChecked(t *testing.T) {
	t.Parallel()

	l := NewLedger(DefaultKernelConfig())
	if _, err := l.PrefixThrough(5); err == nil {
		t.Fatalf("PrefixThrough(5) on a genesis-only ledger: want error")
	}
	prefix, err := l.PrefixThrough(0)
	if err != nil || len(prefix) != 1 {
		t.Fatalf("PrefixThrough(0) = %v, %v; want 1 entry, no error", prefix, err)
	}
}

func TestLedger_Restore_NeverTruncatesAppendsInstead(t *testing.T) {
	t.Parallel()

	l := NewLedger(DefaultKernelConfig())
	cur := map[string]TaggedValue{"balance": Money(0)}
	snap := l.MakeSnapshot(cur)

	next := map[string]TaggedValue{"balance": Money(50)}
	l.Append("deposit", nil, StatusFin, cur, next, nil, nil)

	before := l.Len()
	restored, err := l.Restore(snap, next)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if restored["balance"].Num != 0 {
		t.Fatalf("Restore() state = %v, want balance 0", restored)
	}
	if l.Len() != before+1 {
		t.Fatalf("Restore() ledger length = %d, want %d (append, never truncate)", l.Len(), before+1)
	}
	last := l.Entries()[l.Len()-1]
	if last.Forge != "<restore>" {
		t.Fatalf("Restore() last entry forge = %q, want <restore>", last.Forge)
	}
}

func TestLedger_ExportReplay_RoundTrip(t *testing.T) {
	t.Parallel()

	sb := testutil.NewSandbox(t)

	cfg := DefaultKernelConfig()
	l := NewLedger(cfg)
	state := map[string]TaggedValue{"balance": Money(0)}
	for i := 1; i <= 4; i++ {
		next := map[string]TaggedValue{"balance": Money(float64(i * 10))}
		l.Append("deposit", map[string]TaggedValue{"amount": Money(10)}, StatusFin, state, next, nil, nil)
		state = next
	}

	data, err := l.Export(state)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	sb.WriteFile("ledger.rlp", data)
	roundTripped := sb.ReadFile("ledger.rlp")
	if !bytes.Equal(data, roundTripped) {
		t.Fatalf("exported bytes changed across a disk round trip")
	}

	replayed, finalState, err := Replay(roundTripped, cfg)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if replayed.Len() != l.Len() {
		t.Fatalf("Replay() entry count = %d, want %d", replayed.Len(), l.Len())
	}
	if finalState["balance"].Num != state["balance"].Num {
		t.Fatalf("Replay() final state = %v, want %v", finalState, state)
	}
	if res := replayed.VerifyChain(); !res.Valid {
		t.Fatalf("Replay()'d ledger fails VerifyChain(): %+v", res)
	}

	// Re-exporting the replayed ledger must reproduce the exact same bytes.
	reExported, err := replayed.Export(finalState)
	if err != nil {
		t.Fatalf("re-Export() error = %v", err)
	}
	if !bytes.Equal(data, reExported) {
		t.Fatalf("re-Export() after Replay() produced different bytes")
	}
}

func TestLedger_TwoEntriesSamePayloadDifferentIndexDistinctHash(t *testing.T) {
	t.Parallel()

	l := NewLedger(DefaultKernelConfig())
	state := map[string]TaggedValue{"x": Real(1)}
	l.Append("noop", nil, StatusFin, state, state, nil, nil)
	l.Append("noop", nil, StatusFin, state, state, nil, nil)

	entries := l.Entries()
	if entries[1].Hash == entries[2].Hash {
		t.Fatalf("two identical-payload entries at different indices hashed identically")
	}
}
