package stage

import "fmt"

// Stage is how far a scam conversation has progressed. The zero value is Recon.
type Stage int

const (
	Recon Stage = iota
	SocialEngineering
	PaymentRequest
	OtpRequest
	BankDetailRequest
	Concluded
)

var names = [...]string{
	Recon:             "RECON",
	SocialEngineering: "SOCIAL_ENGINEERING",
	PaymentRequest:    "PAYMENT_REQUEST",
	OtpRequest:        "OTP_REQUEST",
	BankDetailRequest: "BANK_DETAIL_REQUEST",
	Concluded:         "CONCLUDED",
}

func (s Stage) String() string {
	if s < Recon || s > Concluded {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return names[s]
}

func (s Stage) MarshalText() ([]byte, error) {
	if s < Recon || s > Concluded {
		return nil, fmt.Errorf("invalid stage %d", int(s))
	}
	return []byte(names[s]), nil
}

func (s *Stage) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func Parse(name string) (Stage, error) {
	for i, n := range names {
		if n == name {
			return Stage(i), nil
		}
	}
	return Recon, fmt.Errorf("unknown stage %q", name)
}

// Max returns the later of two stages. Sessions advance with it so a stage
// never regresses.
func Max(a, b Stage) Stage {
	if b > a {
		return b
	}
	return a
}

// Transition records one stage change inside a session.
type Transition struct {
	From Stage `json:"from"`
	To   Stage `json:"to"`
	Turn int   `json:"turn"`
}
