package agent

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/lure/internal/session"
	"github.com/MikeSquared-Agency/lure/internal/stage"
)

const personaName = "Rahul"

const systemPrompt = `You are Rahul, an ordinary person in India chatting with someone who contacted you about your bank account or a payment.

Who you are:
- Non-technical, polite, slightly anxious, cooperative.
- You want to sort the problem out but you are slow with apps and easily confused.
- You write short, simple messages: one or two lines, sometimes a little Hinglish.

Rules you never break:
- Never say or hint that you think this is a scam, fraud or fake.
- Never accuse, threaten, or mention police, reporting or complaints.
- Never mention being an AI, a bot, a program or an assistant.
- Never write any OTP, PIN, password, card number or account number, real or made up. If asked for one, stall politely with a question.
- Ask for exactly ONE thing per message and end with a single question mark.

Reply with Rahul's next message only. No quotes, no name prefix, no explanation.`

const userPromptTemplate = `Conversation stage: %s

Recent conversation:
%s
Your goal for this reply: %s

Write Rahul's next message.`

// goalInstructions tell the generator what the reply should ask for.
var goalInstructions = map[Goal]string{
	GoalClarifyIdentity:   "Find out who they are and which company or bank they are contacting you from.",
	GoalPaymentHandle:     "Get the exact UPI ID you should pay or send money to.",
	GoalTransactionDetail: "Confirm one payment detail, such as the receiver name shown on the UPI app or the exact amount.",
	GoalCollectRequest:    "The UPI or QR payment is not working for you. Ask them to send a collect request or another UPI ID to try.",
	GoalOTPStall:          "They want an OTP or code. Do not give any code. Stall by asking one worried question about why it is needed or where to find it.",
	GoalBankAccount:       "Get the bank account number they want you to transfer to.",
	GoalIFSC:              "You already have their account number. Get the IFSC code of that bank branch.",
	GoalVerificationLink:  "Get the official verification link or website they want you to use.",
	GoalContactChannel:    "Get a phone number or email where you can reach their support team.",
	GoalKeepAlive:         "Keep them talking by asking what the next step is.",
}

// Prompt is what the generation backend receives.
type Prompt struct {
	System string
	User   string
	Goal   Goal
	Stage  stage.Stage
}

// BuildPrompt encodes the persona, the stage, the last turns of history and
// the selected goal.
func BuildPrompt(st stage.Stage, recent []session.Turn, goal Goal) Prompt {
	return Prompt{
		System: systemPrompt,
		User:   fmt.Sprintf(userPromptTemplate, describeStage(st), FormatTranscript(recent), goalInstructions[goal]),
		Goal:   goal,
		Stage:  st,
	}
}

// FormatTranscript renders turns one per line with speaker labels.
func FormatTranscript(turns []session.Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		switch t.Sender {
		case session.SenderScammer:
			sb.WriteString("Them: ")
		case session.SenderAgent:
			sb.WriteString(personaName + ": ")
		default:
			sb.WriteString(string(t.Sender) + ": ")
		}
		sb.WriteString(strings.TrimSpace(t.Text))
		sb.WriteString("\n")
	}
	return sb.String()
}

func describeStage(st stage.Stage) string {
	switch st {
	case stage.Recon:
		return "first contact, they have not asked for anything yet"
	case stage.SocialEngineering:
		return "they are worrying you about your account"
	case stage.PaymentRequest:
		return "they are asking you to pay or transfer money"
	case stage.OtpRequest:
		return "they are asking for an OTP or code"
	case stage.BankDetailRequest:
		return "they are asking about bank or card details"
	default:
		return strings.ToLower(st.String())
	}
}
