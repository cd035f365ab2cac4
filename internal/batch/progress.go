package batch

// Progress receives pipeline updates. Calls are never concurrent.
type Progress interface {
	OnProgress(fraction float64)
	OnStatus(status string)
}

// ProgressFuncs adapts plain functions to Progress. Nil fields are ignored.
type ProgressFuncs struct {
	Progress func(fraction float64)
	Status   func(status string)
}

func (f ProgressFuncs) OnProgress(fraction float64) {
	if f.Progress != nil {
		f.Progress(fraction)
	}
}

func (f ProgressFuncs) OnStatus(status string) {
	if f.Status != nil {
		f.Status(status)
	}
}

type nopProgress struct{}

func (nopProgress) OnProgress(float64) {}
func (nopProgress) OnStatus(string)    {}
