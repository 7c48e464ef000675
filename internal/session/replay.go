package session

import (
	"github.com/MikeSquared-Agency/lure/internal/extractor"
	"github.com/MikeSquared-Agency/lure/internal/ledger"
)

// TurnSignals extracts the signals of the scammer turn at index i, using the
// previous scammer turn as adjacent context.
func TurnSignals(ext *extractor.Extractor, history []Turn, i int) []extractor.Signal {
	t := history[i]
	if t.Sender != SenderScammer {
		return nil
	}
	var adjacent string
	for j := i - 1; j >= 0; j-- {
		if history[j].Sender == SenderScammer {
			adjacent = history[j].Text
			break
		}
	}
	return ext.ExtractAdjacent(t.Text, adjacent, t.Index)
}

// Replay rebuilds a ledger from history alone. Applying the same turns
// incrementally yields the same ledger.
func Replay(ext *extractor.Extractor, history []Turn) *ledger.Ledger {
	l := ledger.New()
	for i := range history {
		l.Merge(TurnSignals(ext, history, i))
	}
	return l
}
