package model

// DepositedEventData is the decoded Deposited event payload.
type DepositedEventData struct {
	Account string `json:"account"`
	Tick    string `json:"tick"`
	Amount  string `json:"amount"`
	Shares  string `json:"shares"`
}

// RedeemedEventData is the decoded Redeemed event payload.
type RedeemedEventData struct {
	Account string `json:"account"`
	Tick    string `json:"tick"`
	Shares  string `json:"shares"`
}

// WithdrawnEventData is the decoded Withdrawn event payload.
type WithdrawnEventData struct {
	Account string `json:"account"`
	Tick    string `json:"tick"`
	Shares  string `json:"shares"`
	Amount  string `json:"amount"`
}

// LoanOriginatedEventData is the decoded LoanOriginated event payload.
type LoanOriginatedEventData struct {
	LoanID        string   `json:"loan_id"`
	Borrower      string   `json:"borrower"`
	Principal     string   `json:"principal"`
	DurationClass uint8    `json:"duration_class"`
	Multiplier    string   `json:"multiplier"`
	Ticks         []string `json:"ticks"`
}

// LoanRepaidEventData is the decoded LoanRepaid event payload. ElapsedBps is
// the share of the loan term that elapsed before repayment, in basis points.
type LoanRepaidEventData struct {
	LoanID     string `json:"loan_id"`
	ElapsedBps string `json:"elapsed_bps"`
}

// LoanLiquidatedEventData is the decoded LoanLiquidated event payload.
type LoanLiquidatedEventData struct {
	LoanID   string `json:"loan_id"`
	Proceeds string `json:"proceeds"`
}
