package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// wireValue is the canonical witness/ledger wire shape for a TaggedValue.
type wireValue struct {
	Type  Dimension   `json:"type"`
	Value interface{} `json:"value"`
}

// MarshalJSON renders a TaggedValue in the stable wire shape. Numeric
// payloads are emitted as JSON numbers using Go's shortest round-tripping
// representation: full precision, no trailing zeroes.
func (v TaggedValue) MarshalJSON() ([]byte, error) {
	var payload interface{}
	switch v.Dim {
	case DimText:
		payload = v.Str
	case DimBool:
		payload = v.B
	case DimSymbol:
		payload = ":" + v.Str
	case DimError:
		payload = v.Str
	default:
		payload = v.Num
	}
	return json.Marshal(wireValue{Type: v.Dim, Value: payload})
}

// UnmarshalJSON restores a TaggedValue from its wire shape.
func (v *TaggedValue) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v.Dim = w.Type
	switch w.Type {
	case DimText:
		s, _ := w.Value.(string)
		v.Str = s
	case DimBool:
		b, _ := w.Value.(bool)
		v.B = b
	case DimSymbol:
		s, _ := w.Value.(string)
		if len(s) > 0 && s[0] == ':' {
			s = s[1:]
		}
		v.Str = s
	case DimError:
		s, _ := w.Value.(string)
		v.Str = s
	default:
		if n, ok := w.Value.(float64); ok {
			v.Num = n
		}
	}
	return nil
}

// canonicalJSON marshals v with deterministic key ordering (encoding/json
// sorts map[string]* keys and preserves struct field declaration order) and
// disables JSON's HTML-escaping so the preimage is stable independent of
// encoding/json's default `SetEscapeHTML`.
func canonicalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encoder.Encode appends a trailing newline; trim it for a stable preimage.
	out := bytes.TrimRight(buf.Bytes(), "\n")
	return out, nil
}

// hashPreimage is the exact structure hashed for chain linkage: {index, timestamp, data, prev_hash}.
type hashPreimage struct {
	Index     int             `json:"index"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	PrevHash  string          `json:"prev_hash"`
}

// computeSelfHash returns the full SHA-256 (hex, lowercase) of the canonical
// preimage. Full SHA-256 is always used for chain linkage; only
// display truncates, per hashPrefixLength.
func computeSelfHash(index int, timestamp string, data json.RawMessage, prevHashFull string) string {
	pre := hashPreimage{Index: index, Timestamp: timestamp, Data: data, PrevHash: prevHashFull}
	b, err := canonicalJSON(pre)
	if err != nil {
		// canonicalJSON only fails on unsupported types, which this module
		// never constructs for ledger data; a panic here would indicate a
		// programming error in a new TaggedValue/Witness field.
		panic(fmt.Sprintf("canonical hash preimage: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func zeroHash() string {
	return hex.EncodeToString(make([]byte, sha256.Size))
}

func truncateHash(full string, length int) string {
	if length <= 0 || length >= len(full) {
		return full
	}
	return full[:length]
}

// sortedKeys returns a state map's keys in sorted order; the RLP export
// (toRLPFields in ledger.go) uses it to write fields in a stable order.
func sortedKeys(m map[string]TaggedValue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
