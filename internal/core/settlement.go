package core

import (
	"fmt"
	"strings"
)

type ledgerEntry struct {
	index  int
	amount float64
}

// Settle balances contributions against average.
//
// Participants are classified in index order as creditors, debtors or
// settled. Each debtor, in index order, then pays the first creditors
// (again in index order) that still have something to receive, until the
// debt is gone. Debt that survives every creditor is reported as a residual.
// Balances within tolerance of zero count as settled; a negative tolerance
// is treated as 0, which means exact comparison.
func Settle(contributions []float64, average, tolerance float64) Plan {
	if tolerance < 0 {
		tolerance = 0
	}

	msgs := make([]*strings.Builder, len(contributions))
	var creditors, debtors []*ledgerEntry

	for i, balance := range Balances(contributions, average) {
		msgs[i] = &strings.Builder{}
		switch {
		case balance > tolerance:
			creditors = append(creditors, &ledgerEntry{index: i, amount: balance})
			fmt.Fprintf(msgs[i], msgReceive, FormatAmount(balance))
		case balance < -tolerance:
			debtors = append(debtors, &ledgerEntry{index: i, amount: -balance})
			fmt.Fprintf(msgs[i], msgOwes, FormatAmount(-balance))
		default:
			fmt.Fprintf(msgs[i], msgExact, FormatAmount(average))
		}
	}

	plan := Plan{Messages: make([]string, len(contributions))}
	for _, d := range debtors {
		debt := d.amount
		for _, c := range creditors {
			if debt <= tolerance {
				break
			}
			if c.amount <= tolerance {
				continue
			}
			settlement := min(debt, c.amount)
			c.amount -= settlement
			debt -= settlement
			plan.Transfers = append(plan.Transfers, Transfer{From: d.index, To: c.index, Amount: settlement})
			msgs[d.index].WriteString("\n")
			fmt.Fprintf(msgs[d.index], msgTransfer, FormatAmount(settlement), c.index+1)
		}
		if debt > tolerance {
			plan.Residuals = append(plan.Residuals, Residual{Participant: d.index, Amount: debt})
			msgs[d.index].WriteString("\n")
			fmt.Fprintf(msgs[d.index], msgResidual, FormatAmount(debt))
		}
	}

	for i, b := range msgs {
		plan.Messages[i] = b.String()
	}
	return plan
}

// Balances returns contribution minus average for every participant.
func Balances(contributions []float64, average float64) []float64 {
	out := make([]float64, len(contributions))
	for i, c := range contributions {
		out[i] = c - average
	}
	return out
}
