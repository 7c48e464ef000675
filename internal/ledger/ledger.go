package ledger

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/MikeSquared-Agency/lure/internal/extractor"
)

// Ledger accumulates the signals seen in one session. Each (kind, value)
// identity has exactly one entry. A Ledger is not safe for concurrent use;
// the session store serializes access to it.
type Ledger struct {
	entries map[extractor.Key]extractor.Signal
}

func New() *Ledger {
	return &Ledger{entries: make(map[extractor.Key]extractor.Signal)}
}

// Fold builds a ledger from signal batches in turn order.
func Fold(batches ...[]extractor.Signal) *Ledger {
	l := New()
	for _, b := range batches {
		l.Merge(b)
	}
	return l
}

// Observe records a signal and reports whether the ledger changed.
func (l *Ledger) Observe(sig extractor.Signal) bool {
	if sig.Value == "" {
		return false
	}
	k := sig.Key()
	cur, ok := l.entries[k]
	if !ok {
		l.entries[k] = sig
		return true
	}
	merged, changed := better(cur, sig)
	if changed {
		l.entries[k] = merged
	}
	return changed
}

// Merge observes every signal and returns how many entries changed.
func (l *Ledger) Merge(sigs []extractor.Signal) int {
	n := 0
	for _, s := range sigs {
		if l.Observe(s) {
			n++
		}
	}
	return n
}

// better combines two observations of the same identity: the confidence is
// the maximum seen and the source turn is the earliest seen.
func better(cur, next extractor.Signal) (extractor.Signal, bool) {
	out := cur
	if next.Confidence > out.Confidence {
		out.Confidence = next.Confidence
	}
	if next.SourceTurn < out.SourceTurn {
		out.SourceTurn = next.SourceTurn
	}
	return out, out != cur
}

func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

func (l *Ledger) Get(kind extractor.Kind, value string) (extractor.Signal, bool) {
	if l == nil {
		return extractor.Signal{}, false
	}
	s, ok := l.entries[extractor.Key{Kind: kind, Value: value}]
	return s, ok
}

// Has reports whether at least one signal of kind is present.
func (l *Ledger) Has(kind extractor.Kind) bool {
	if l == nil {
		return false
	}
	for k := range l.entries {
		if k.Kind == kind {
			return true
		}
	}
	return false
}

// Signals returns every entry ordered by kind (report order), first source
// turn, then value.
func (l *Ledger) Signals() []extractor.Signal {
	if l == nil {
		return nil
	}
	out := make([]extractor.Signal, 0, len(l.entries))
	for _, s := range l.entries {
		out = append(out, s)
	}
	rank := kindRank()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if rank[a.Kind] != rank[b.Kind] {
			return rank[a.Kind] < rank[b.Kind]
		}
		if a.SourceTurn != b.SourceTurn {
			return a.SourceTurn < b.SourceTurn
		}
		return a.Value < b.Value
	})
	return out
}

// Values returns the unique values of one kind in the order they first
// appeared in the conversation. The result is never nil.
func (l *Ledger) Values(kind extractor.Kind) []string {
	out := []string{}
	for _, s := range l.Signals() {
		if s.Kind == kind {
			out = append(out, s.Value)
		}
	}
	return out
}

func (l *Ledger) Clone() *Ledger {
	c := New()
	if l == nil {
		return c
	}
	for k, v := range l.entries {
		c.entries[k] = v
	}
	return c
}

func (l *Ledger) MarshalJSON() ([]byte, error) {
	sigs := l.Signals()
	if sigs == nil {
		sigs = []extractor.Signal{}
	}
	return json.Marshal(sigs)
}

func (l *Ledger) UnmarshalJSON(data []byte) error {
	var sigs []extractor.Signal
	if err := json.Unmarshal(data, &sigs); err != nil {
		return fmt.Errorf("unmarshal ledger: %w", err)
	}
	l.entries = make(map[extractor.Key]extractor.Signal, len(sigs))
	l.Merge(sigs)
	return nil
}

func kindRank() map[extractor.Kind]int {
	rank := make(map[extractor.Kind]int, len(extractor.Kinds))
	for i, k := range extractor.Kinds {
		rank[k] = i
	}
	return rank
}
