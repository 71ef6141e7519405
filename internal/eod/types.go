package eod

// aggRow holds the per-symbol statistics of one day's placements.
type aggRow struct {
	Symbol      string
	Placements  int
	Filled      int
	Failed      int
	FilledQty   int
	EntryValue  float64 // sum of entry limit prices over filled placements
	FillValue   float64 // sum of qty * avg fill price
	TakeProfits float64
	StopLosses  float64
}

func (r *aggRow) avgEntry() float64 {
	if r.Filled == 0 {
		return 0
	}
	return r.EntryValue / float64(r.Filled)
}

func (r *aggRow) avgFill() float64 {
	if r.FilledQty == 0 {
		return 0
	}
	return r.FillValue / float64(r.FilledQty)
}

func (r *aggRow) avgTakeProfit() float64 {
	if r.Filled == 0 {
		return 0
	}
	return r.TakeProfits / float64(r.Filled)
}

func (r *aggRow) avgStopLoss() float64 {
	if r.Filled == 0 {
		return 0
	}
	return r.StopLosses / float64(r.Filled)
}
