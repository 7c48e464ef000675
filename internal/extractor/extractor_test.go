package extractor

import (
	"testing"
)

func find(sigs []Signal, kind Kind, value string) (Signal, bool) {
	for _, s := range sigs {
		if s.Kind == kind && s.Value == value {
			return s, true
		}
	}
	return Signal{}, false
}

func TestExtract_UPIWithPaymentContext(t *testing.T) {
	ext := New(DefaultConfig())

	sigs := ext.Extract("Pay ₹10 to verify. UPI: test@okicici", 3)

	upi, ok := find(sigs, KindUPI, "test@okicici")
	if !ok {
		t.Fatalf("expected upi signal, got %+v", sigs)
	}
	if upi.SourceTurn != 3 {
		t.Errorf("expected source turn 3, got %d", upi.SourceTurn)
	}
	if upi.Confidence < 0.6 {
		t.Errorf("expected confidence >= 0.6, got %f", upi.Confidence)
	}
	if upi.Confidence != defaultReinforcedConfidence {
		t.Errorf("expected reinforced confidence with payment words present, got %f", upi.Confidence)
	}
	if _, ok := find(sigs, KindKeyword, "verify"); !ok {
		t.Errorf("expected verify keyword, got %+v", sigs)
	}
	if _, ok := find(sigs, KindBankAccount, "10"); ok {
		t.Error("amount must not be read as an account number")
	}
}

func TestExtract_StructuralMatchOnly(t *testing.T) {
	ext := New(DefaultConfig())

	sigs := ext.Extract("ramesh.k@oksbi", 0)

	upi, ok := find(sigs, KindUPI, "ramesh.k@oksbi")
	if !ok {
		t.Fatalf("expected upi signal, got %+v", sigs)
	}
	if upi.Confidence != defaultBaseConfidence {
		t.Errorf("expected base confidence, got %f", upi.Confidence)
	}
}

func TestExtractAdjacent_ContextFromPreviousTurn(t *testing.T) {
	ext := New(DefaultConfig())

	sigs := ext.ExtractAdjacent("ramesh.k@oksbi", "send the payment on this UPI", 4)

	upi, ok := find(sigs, KindUPI, "ramesh.k@oksbi")
	if !ok {
		t.Fatalf("expected upi signal, got %+v", sigs)
	}
	if upi.Confidence != defaultReinforcedConfidence {
		t.Errorf("expected adjacent context to reinforce, got %f", upi.Confidence)
	}
}

func TestExtract_Normalization(t *testing.T) {
	ext := New(DefaultConfig())

	tests := []struct {
		name  string
		text  string
		kind  Kind
		value string
	}{
		{"upi lowercased", "UPI id: Fraud.Desk@PAYTM", KindUPI, "fraud.desk@paytm"},
		{"email lowercased", "mail us at Support.Team@Secure-Bank.com", KindEmail, "support.team@secure-bank.com"},
		{"ifsc uppercased", "ifsc sbin0001234", KindIFSC, "SBIN0001234"},
		{"account separators stripped", "account no 1234 5678 9012 3", KindBankAccount, "1234567890123"},
		{"account hyphens stripped", "a/c 5012-3456-7890", KindBankAccount, "501234567890"},
		{"phone with country code", "call +91 98765 43210 now", KindPhone, "+919876543210"},
		{"phone plain", "whatsapp 9876543210", KindPhone, "+919876543210"},
		{"phone with trunk zero", "helpline 09876543210", KindPhone, "+919876543210"},
		{"international phone", "call our desk on +1 415 555 2671", KindPhone, "+14155552671"},
		{"international phone hyphens", "whatsapp +44-20-7946-0958", KindPhone, "+442079460958"},
		{"url host lowercased", "click https://SBI-KYC.Example.com/verify.", KindURL, "https://sbi-kyc.example.com/verify"},
		{"www url", "open www.kyc-update.in/form now", KindURL, "http://www.kyc-update.in/form"},
		{"upi deep link", "scan upi://pay?pa=scam@ybl&am=10", KindURL, "upi://pay?pa=scam@ybl&am=10"},
		{"handle inside deep link", "scan upi://pay?pa=scam@ybl&am=10", KindUPI, "scam@ybl"},
		{"keyword lowercased", "URGENT: your KYC expired", KindKeyword, "urgent"},
		{"multiword keyword", "share the one time password", KindKeyword, "one time password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sigs := ext.Extract(tt.text, 0)
			if _, ok := find(sigs, tt.kind, tt.value); !ok {
				t.Errorf("expected %s %q in %+v", tt.kind, tt.value, sigs)
			}
		})
	}
}

func TestExtract_EmailIsNotUPI(t *testing.T) {
	ext := New(DefaultConfig())

	sigs := ext.Extract("write to refunds@bank-help.com", 0)

	for _, s := range sigs {
		if s.Kind == KindUPI {
			t.Errorf("email must not produce a upi signal, got %+v", s)
		}
	}
	if _, ok := find(sigs, KindEmail, "refunds@bank-help.com"); !ok {
		t.Errorf("expected email signal, got %+v", sigs)
	}
}

func TestExtract_PhoneVersusAccount(t *testing.T) {
	ext := New(DefaultConfig())

	sigs := ext.Extract("transfer to account 9876543210 at the bank", 0)
	if _, ok := find(sigs, KindBankAccount, "9876543210"); !ok {
		t.Errorf("bank context should read the digits as an account, got %+v", sigs)
	}

	sigs = ext.Extract("call me on 9876543210", 0)
	if _, ok := find(sigs, KindPhone, "+919876543210"); !ok {
		t.Errorf("expected phone, got %+v", sigs)
	}
}

func TestExtract_InternationalPhoneBounds(t *testing.T) {
	ext := New(DefaultConfig())

	for _, text := range []string{"code +1234567", "ref +0441234567890", "id +1234567890123456"} {
		for _, s := range ext.Extract(text, 0) {
			if s.Kind == KindPhone || s.Kind == KindBankAccount {
				t.Errorf("%q: unexpected %+v", text, s)
			}
		}
	}

	sigs := ext.Extract("not +91 12345 67890 either", 0)
	for _, s := range sigs {
		if s.Kind == KindPhone {
			t.Errorf("invalid Indian mobile read as phone: %+v", s)
		}
	}
}

func TestExtract_DigitsInsideCodesIgnored(t *testing.T) {
	ext := New(DefaultConfig())

	sigs := ext.Extract("ref ABC123456789012 and 9876543210@ybl", 0)

	for _, s := range sigs {
		if s.Kind == KindBankAccount || s.Kind == KindPhone {
			t.Errorf("embedded digits should not be extracted, got %+v", s)
		}
	}
}

func TestExtract_DuplicatesWithinTurnCollapse(t *testing.T) {
	ext := New(DefaultConfig())

	sigs := ext.Extract("test@okicici test@okicici TEST@okicici", 0)

	count := 0
	for _, s := range sigs {
		if s.Kind == KindUPI {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected 1 upi signal, got %d", count)
	}
}

func TestExtract_KeywordReinforcement(t *testing.T) {
	ext := New(DefaultConfig())

	single := ext.Extract("please verify", 0)
	kw, ok := find(single, KindKeyword, "verify")
	if !ok || kw.Confidence != defaultBaseConfidence {
		t.Errorf("single keyword should be base confidence, got %+v", single)
	}

	double := ext.Extract("verify immediately", 0)
	kw, ok = find(double, KindKeyword, "verify")
	if !ok || kw.Confidence != defaultReinforcedConfidence {
		t.Errorf("co-occurring keywords should be reinforced, got %+v", double)
	}
}

func TestExtract_MalformedInput(t *testing.T) {
	ext := New(DefaultConfig())

	inputs := []string{"", "   ", "@@@@", "http://", "\x00\xff\xfe", "+", "---"}
	for _, in := range inputs {
		sigs := ext.Extract(in, 0)
		for _, s := range sigs {
			if s.Kind != KindKeyword && s.Value == "" {
				t.Errorf("unexpected empty signal for %q: %+v", in, s)
			}
		}
	}
	if sigs := ext.Extract("", 0); len(sigs) != 0 {
		t.Errorf("expected no signals for empty text, got %+v", sigs)
	}
}

func TestNew_FillsDefaults(t *testing.T) {
	ext := New(Config{BaseConfidence: 0.7, ReinforcedConfidence: 0.5})

	if ext.cfg.ReinforcedConfidence != 0.7 {
		t.Errorf("reinforced confidence should not drop below base, got %f", ext.cfg.ReinforcedConfidence)
	}
	if len(ext.cfg.FraudKeywords) == 0 {
		t.Error("expected default keywords")
	}
}
