package extractor

// Kind identifies what a Signal represents.
type Kind string

const (
	KindUPI         Kind = "upiId"
	KindBankAccount Kind = "bankAccount"
	KindIFSC        Kind = "ifsc"
	KindURL         Kind = "phishingUrl"
	KindPhone       Kind = "phoneNumber"
	KindEmail       Kind = "email"
	KindKeyword     Kind = "keyword"
)

// Kinds lists every signal kind in report order.
var Kinds = []Kind{KindBankAccount, KindUPI, KindIFSC, KindURL, KindPhone, KindEmail, KindKeyword}

// Signal is one piece of extracted intelligence.
type Signal struct {
	Kind       Kind    `json:"kind"`
	Value      string  `json:"value"`      // normalized
	Confidence float64 `json:"confidence"` // 0.0-1.0
	SourceTurn int     `json:"sourceTurn"` // index into session history
}

// Key is the deduplication identity of a signal.
type Key struct {
	Kind  Kind
	Value string
}

func (s Signal) Key() Key {
	return Key{Kind: s.Kind, Value: s.Value}
}

// Config tunes the extractor. Zero values are replaced by defaults.
type Config struct {
	BaseConfidence       float64           `yaml:"base_confidence"`
	ReinforcedConfidence float64           `yaml:"reinforced_confidence"`
	FraudKeywords        []string          `yaml:"fraud_keywords"`
	ContextWords         map[Kind][]string `yaml:"context_words"`
}
