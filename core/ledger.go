package core

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	log "github.com/sirupsen/logrus"
)

// LedgerEntry is one append-only diff record: the full before/after state of
// a forge call plus its hash-chain linkage. Entries are never edited or
// deleted once appended.
type LedgerEntry struct {
	Index       int                    `json:"index"`
	Timestamp   string                 `json:"timestamp"`
	Forge       string                 `json:"forge"`
	Args        map[string]TaggedValue `json:"args"`
	Status      RunStatus              `json:"status"`
	Reply       *TaggedValue           `json:"reply"`
	StateBefore map[string]TaggedValue `json:"state_before"`
	StateAfter  map[string]TaggedValue `json:"state_after"`
	Witness     *Witness               `json:"witness"`
	PrevHash    string                 `json:"prev_hash"`
	Hash        string                 `json:"hash"`

	prevHashFull string
	selfHashFull string
}

// entryData is the {forge, args, pre_state, post_state, status, reply,
// witness} payload of an entry; it is also exactly the "data" field hashed
// inside the preimage.
type entryData struct {
	Forge       string                 `json:"forge"`
	Args        map[string]TaggedValue `json:"args"`
	PreState    map[string]TaggedValue `json:"pre_state"`
	PostState   map[string]TaggedValue `json:"post_state"`
	Status      RunStatus              `json:"status"`
	Reply       *TaggedValue           `json:"reply"`
	Witness     *Witness               `json:"witness"`
}

// Ledger is the append-only, hash-chained record owned exclusively by one
// Instance. Every executed forge call lands here, fin or finfr, alongside
// the genesis and restore markers.
type Ledger struct {
	mu      sync.RWMutex
	entries []LedgerEntry
	cfg     KernelConfig
}

// NewLedger creates a ledger whose entry 0 is the genesis record: forge
// <genesis>, status fin, prev_hash all zeros.
func NewLedger(cfg KernelConfig) *Ledger {
	l := &Ledger{cfg: cfg}
	genesis := entryData{Forge: "<genesis>", Status: StatusFin}
	l.appendLocked(genesis)
	return l
}

func (l *Ledger) appendLocked(data entryData) *LedgerEntry {
	index := len(l.entries)
	prevFull := zeroHash()
	if index > 0 {
		prevFull = l.entries[index-1].selfHashFull
	}
	ts := isoTimestamp(index)

	rawData, err := canonicalJSON(data)
	if err != nil {
		panic(fmt.Sprintf("ledger: encode entry data: %v", err))
	}
	selfFull := computeSelfHash(index, ts, json.RawMessage(rawData), prevFull)

	entry := LedgerEntry{
		Index:        index,
		Timestamp:    ts,
		Forge:        data.Forge,
		Args:         data.Args,
		Status:       data.Status,
		Reply:        data.Reply,
		StateBefore:  data.PreState,
		StateAfter:   data.PostState,
		Witness:      data.Witness,
		PrevHash:     truncateHash(prevFull, l.cfg.HashPrefixLength),
		Hash:         truncateHash(selfFull, l.cfg.HashPrefixLength),
		prevHashFull: prevFull,
		selfHashFull: selfFull,
	}
	l.entries = append(l.entries, entry)
	return &l.entries[len(l.entries)-1]
}

// ledgerEpoch anchors the ledger's logical clock.
var ledgerEpoch = time.Unix(0, 0).UTC()

// isoTimestamp derives an entry's ISO-8601 timestamp as a pure function of
// its index. The timestamp is part of the hash preimage and two identical
// call sequences must produce byte-identical entry bytes, so wall-clock time
// cannot participate; the ledger's clock is logical, one second per entry
// from a fixed epoch. Entries reconstructed by Replay carry their recorded
// timestamps and are never re-stamped.
func isoTimestamp(index int) string {
	return ledgerEpoch.Add(time.Duration(index) * time.Second).Format(time.RFC3339Nano)
}

// Append records a completed forge call (fin or finfr) and returns the new
// entry. Ledger append never fails once called.
func (l *Ledger) Append(forge string, args map[string]TaggedValue, status RunStatus, pre, post map[string]TaggedValue, reply *TaggedValue, witness *Witness) *LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.appendLocked(entryData{
		Forge: forge, Args: args, PreState: pre, PostState: post,
		Status: status, Reply: reply, Witness: witness,
	})
	log.WithFields(log.Fields{"index": e.Index, "forge": forge, "status": status}).Info("ledger append")
	cp := *e
	return &cp
}

// Entries returns a defensive copy of the full ledger.
func (l *Ledger) Entries() []LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the current entry count.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// ChainResult is the outcome of VerifyChain.
type ChainResult struct {
	Valid    bool
	BrokenAt int
	Reason   string
}

// VerifyChain recomputes every entry's hash and checks prev_hash linkage.
// It never trusts the stored, possibly tampered Hash/PrevHash display
// fields: it recomputes from the entry's own data and the *previous*
// entry's recomputed hash, so a single tampered entry is caught even if its
// own stored fields were "fixed up" to match.
func (l *Ledger) VerifyChain() ChainResult {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.entries) == 0 {
		return ChainResult{Valid: true}
	}
	prevFull := zeroHash()
	for i, e := range l.entries {
		data := entryData{
			Forge: e.Forge, Args: e.Args, PreState: e.StateBefore, PostState: e.StateAfter,
			Status: e.Status, Reply: e.Reply, Witness: e.Witness,
		}
		raw, err := canonicalJSON(data)
		if err != nil {
			return ChainResult{Valid: false, BrokenAt: i, Reason: "unencodable entry data: " + err.Error()}
		}
		wantSelf := computeSelfHash(i, e.Timestamp, json.RawMessage(raw), prevFull)
		if i > 0 && e.prevHashFull != prevFull {
			return ChainResult{Valid: false, BrokenAt: i, Reason: "prev_hash does not match predecessor"}
		}
		if e.selfHashFull != wantSelf {
			return ChainResult{Valid: false, BrokenAt: i, Reason: "hash does not recompute"}
		}
		prevFull = e.selfHashFull
	}
	return ChainResult{Valid: true}
}

// Snapshot is a ledger-index-tagged deep copy of instance state.
type Snapshot struct {
	Index int
	State map[string]TaggedValue
}

// MakeSnapshot captures the ledger's current index alongside a deep copy of state.
func (l *Ledger) MakeSnapshot(state map[string]TaggedValue) Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{Index: len(l.entries) - 1, State: cloneState(state)}
}

// Restore requires the current ledger index to be >= snapshot.Index; ledger
// truncation is never permitted, so restoring appends a new `<restore>` diff
// entry instead of rewinding history.
func (l *Ledger) Restore(snap Snapshot, currentState map[string]TaggedValue) (map[string]TaggedValue, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries)-1 < snap.Index {
		return nil, fmt.Errorf("restore: ledger index %d precedes snapshot index %d", len(l.entries)-1, snap.Index)
	}
	restored := cloneState(snap.State)
	l.appendLocked(entryData{
		Forge: "<restore>", Status: StatusFin,
		PreState: cloneState(currentState), PostState: cloneState(restored),
	})
	return restored, nil
}

// PrefixThrough returns a defensive copy of entries[0..=index], used by
// RollbackTo (kernel.go) to replay a fresh instance.
func (l *Ledger) PrefixThrough(index int) ([]LedgerEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.entries) {
		return nil, fmt.Errorf("rollback_to: index %d out of range [0,%d)", index, len(l.entries))
	}
	out := make([]LedgerEntry, index+1)
	copy(out, l.entries[:index+1])
	return out, nil
}

// --- Export / Replay ------------------------------------------------------
//
// The exported byte format is RLP (github.com/ethereum/go-ethereum/rlp): a
// length-prefixed recursive encoding of the entry records plus a trailing
// full-state snapshot. RLP has no native float type, so TaggedValue's
// numeric payload is carried as the raw IEEE-754 bit pattern
// (math.Float64bits) for an exact round trip; re-exporting a replayed
// ledger must reproduce the original bytes.

type rlpValue struct {
	Dim     string
	Unit    string
	NumBits uint64
	Str     string
	Bool    uint8
}

func toRLPValue(v TaggedValue) rlpValue {
	b := uint8(0)
	if v.B {
		b = 1
	}
	return rlpValue{Dim: string(v.Dim), Unit: v.Unit, NumBits: math.Float64bits(v.Num), Str: v.Str, Bool: b}
}

func fromRLPValue(r rlpValue) TaggedValue {
	return TaggedValue{Dim: Dimension(r.Dim), Unit: r.Unit, Num: math.Float64frombits(r.NumBits), Str: r.Str, B: r.Bool != 0}
}

type rlpFieldEntry struct {
	Name  string
	Value rlpValue
}

func toRLPFields(m map[string]TaggedValue) []rlpFieldEntry {
	keys := sortedKeys(m)
	out := make([]rlpFieldEntry, len(keys))
	for i, k := range keys {
		out[i] = rlpFieldEntry{Name: k, Value: toRLPValue(m[k])}
	}
	return out
}

func fromRLPFields(fs []rlpFieldEntry) map[string]TaggedValue {
	if len(fs) == 0 {
		return nil
	}
	out := make(map[string]TaggedValue, len(fs))
	for _, f := range fs {
		out[f.Name] = fromRLPValue(f.Value)
	}
	return out
}

type rlpViolation struct {
	Law     string
	Clauses []string
	Reason  string
	Line    uint64
}

type rlpWitness struct {
	Present    uint8
	TStar      string
	State      []rlpFieldEntry
	Violations []rlpViolation
	NormalHint string
}

func toRLPWitness(w *Witness) rlpWitness {
	if w == nil {
		return rlpWitness{}
	}
	vs := make([]rlpViolation, len(w.Violations))
	for i, v := range w.Violations {
		vs[i] = rlpViolation{Law: v.Law, Clauses: v.Clauses, Reason: v.Reason, Line: uint64(v.Line)}
	}
	return rlpWitness{Present: 1, TStar: string(w.TStar), State: toRLPFields(w.State), Violations: vs, NormalHint: w.NormalHint}
}

func fromRLPWitness(r rlpWitness) *Witness {
	if r.Present == 0 {
		return nil
	}
	vs := make([]Violation, len(r.Violations))
	for i, v := range r.Violations {
		var clauses []string
		if len(v.Clauses) > 0 {
			clauses = v.Clauses
		}
		vs[i] = Violation{Law: v.Law, Clauses: clauses, Reason: v.Reason, Line: int(v.Line)}
	}
	return &Witness{TStar: TStar(r.TStar), State: fromRLPFields(r.State), Violations: vs, NormalHint: r.NormalHint}
}

type rlpReply struct {
	Present uint8
	Value   rlpValue
}

type rlpEntry struct {
	Index       uint64
	Timestamp   string
	Forge       string
	Args        []rlpFieldEntry
	Status      string
	Reply       rlpReply
	StateBefore []rlpFieldEntry
	StateAfter  []rlpFieldEntry
	Witness     rlpWitness
	PrevHash    string
	SelfHash    string
}

type rlpExport struct {
	Entries    []rlpEntry
	FinalState []rlpFieldEntry
}

// Export serializes the full ledger plus a trailing full-state snapshot.
func (l *Ledger) Export(finalState map[string]TaggedValue) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := rlpExport{Entries: make([]rlpEntry, len(l.entries)), FinalState: toRLPFields(finalState)}
	for i, e := range l.entries {
		rep := rlpReply{}
		if e.Reply != nil {
			rep = rlpReply{Present: 1, Value: toRLPValue(*e.Reply)}
		}
		out.Entries[i] = rlpEntry{
			Index: uint64(e.Index), Timestamp: e.Timestamp, Forge: e.Forge,
			Args: toRLPFields(e.Args), Status: string(e.Status), Reply: rep,
			StateBefore: toRLPFields(e.StateBefore), StateAfter: toRLPFields(e.StateAfter),
			Witness: toRLPWitness(e.Witness), PrevHash: e.prevHashFull, SelfHash: e.selfHashFull,
		}
	}
	return rlp.EncodeToBytes(out)
}

// Replay deterministically reconstructs a Ledger and its final state from
// exported bytes.
func Replay(data []byte, cfg KernelConfig) (*Ledger, map[string]TaggedValue, error) {
	var in rlpExport
	if err := rlp.DecodeBytes(data, &in); err != nil {
		return nil, nil, fmt.Errorf("replay: decode: %w", err)
	}
	l := &Ledger{cfg: cfg}
	l.entries = make([]LedgerEntry, len(in.Entries))
	for i, e := range in.Entries {
		var rep *TaggedValue
		if e.Reply.Present != 0 {
			v := fromRLPValue(e.Reply.Value)
			rep = &v
		}
		l.entries[i] = LedgerEntry{
			Index: int(e.Index), Timestamp: e.Timestamp, Forge: e.Forge,
			Args: fromRLPFields(e.Args), Status: RunStatus(e.Status), Reply: rep,
			StateBefore: fromRLPFields(e.StateBefore), StateAfter: fromRLPFields(e.StateAfter),
			Witness: fromRLPWitness(e.Witness),
			PrevHash: truncateHash(e.PrevHash, cfg.HashPrefixLength), Hash: truncateHash(e.SelfHash, cfg.HashPrefixLength),
			prevHashFull: e.PrevHash, selfHashFull: e.SelfHash,
		}
	}
	return l, fromRLPFields(in.FinalState), nil
}
