package agent

// cannedReplies are used when the generator is missing, slow, or produces
// text the filter rejects. Each one asks exactly one question.
var cannedReplies = map[Goal][]string{
	GoalClarifyIdentity: {
		"Hello, sorry, which bank or company are you calling from?",
		"Hi, I did not understand. Who is this and what is it about?",
		"Sorry, can you tell me your name and which office you are from?",
	},
	GoalPaymentHandle: {
		"I am worried now. Which exact UPI ID should I use so I don't type it wrong?",
		"Okay, can you send the UPI ID again, like name@bank?",
		"I want to fix this quickly. What is the UPI ID I should pay to?",
	},
	GoalTransactionDetail: {
		"Before I pay, what receiver name will show on my UPI app?",
		"Okay, I am opening the app. How much exactly should I send?",
		"The app is asking for a note. What should I write there?",
	},
	GoalCollectRequest: {
		"I am not able to type the UPI ID correctly. Can you send a collect request instead?",
		"This UPI is showing some error. Do you have another UPI ID I can try?",
		"The QR is not scanning on my phone. Can you send the payment request directly?",
	},
	GoalOTPStall: {
		"I got some message but I am scared to share it. Why is the code needed for this?",
		"Wait, my son told me never to share these codes. Is there another way to verify?",
		"The message says do not share with anyone. Are you sure it is safe?",
	},
	GoalBankAccount: {
		"UPI is not working on my phone. Can you send the bank account details instead?",
		"Which bank account number should I transfer to instead?",
		"My app has a bank transfer option. Whose account should I send it to?",
	},
	GoalIFSC: {
		"My app is asking for the IFSC code also. What is the IFSC?",
		"It is not allowing without the IFSC. Can you send the branch IFSC code?",
		"I typed the account but it needs the IFSC also. What should I put there?",
	},
	GoalVerificationLink: {
		"I am not good with apps. Can you send the official link where I should verify?",
		"The page is not opening for me. Can you send the correct website again?",
		"Which website should I open to complete the verification?",
	},
	GoalContactChannel: {
		"Is there a helpline number I can call to confirm this?",
		"Can you give me your official email ID so I can forward the details?",
		"What is your support number in case the message gets cut?",
	},
	GoalKeepAlive: {
		"Okay, I noted that. What should I do next?",
		"Done, I think. What is the next step?",
		"Sorry, I am a bit slow with this. Can you guide me once more?",
	},
}

// Fallback returns a canned reply for goal. n varies the choice
// deterministically, so the same session state yields the same reply.
func Fallback(goal Goal, n int) string {
	opts, ok := cannedReplies[goal]
	if !ok || len(opts) == 0 {
		opts = cannedReplies[GoalKeepAlive]
	}
	if n < 0 {
		n = -n
	}
	return opts[n%len(opts)]
}
