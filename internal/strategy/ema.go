package strategy

// EMA is a rolling exponential moving average. The first `period` samples
// accumulate a simple average that seeds the EMA; after that, each update
// applies the standard smoothing factor 2/(period+1). Crossings are only
// meaningful once Ready reports true.
type EMA struct {
	period int
	alpha  float64
	value  float64
	sum    float64
	count  int
}

// NewEMA creates an EMA of the given period (in samples). Periods below 2 are
// clamped to 2.
func NewEMA(period int) *EMA {
	if period < 2 {
		period = 2
	}
	return &EMA{
		period: period,
		alpha:  2.0 / float64(period+1),
	}
}

// Update feeds one price sample and returns the current average.
func (e *EMA) Update(price float64) float64 {
	e.count++
	if e.count <= e.period {
		e.sum += price
		e.value = e.sum / float64(e.count)
		return e.value
	}
	e.value = e.alpha*price + (1-e.alpha)*e.value
	return e.value
}

// Ready reports whether a full period has been observed.
func (e *EMA) Ready() bool {
	return e.count >= e.period
}

// Value returns the current average (0 before the first sample).
func (e *EMA) Value() float64 {
	return e.value
}
