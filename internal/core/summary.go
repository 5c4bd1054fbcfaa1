package core

// Message templates shown to participants. The residual line has no space
// before the amount; existing readers match on it.
const (
	msgReceive  = "You need to receive Rs %s"
	msgExact    = "You paid exactly Rs %s"
	msgOwes     = "Pay total Extra Rs %s"
	msgTransfer = "You pay Rs %s to User %d"
	msgResidual = "You still need to pay Rs%s"
	msgAverage  = "All users to pay: Rs %s"
)

// Transfer is one payment from a debtor to a creditor. Indices are zero-based.
type Transfer struct {
	From   int
	To     int
	Amount float64
}

// Residual is debt left over after every creditor was exhausted.
type Residual struct {
	Participant int
	Amount      float64
}

// Plan is the settlement result: one message per participant plus the
// transfers and residuals those messages describe.
type Plan struct {
	Messages  []string
	Transfers []Transfer
	Residuals []Residual
}

func emptyPlan(n int) Plan {
	return Plan{Messages: make([]string, n)}
}

func (p Plan) clone() Plan {
	return Plan{
		Messages:  append([]string(nil), p.Messages...),
		Transfers: append([]Transfer(nil), p.Transfers...),
		Residuals: append([]Residual(nil), p.Residuals...),
	}
}
