package invoice

import "time"

// WithNumbers makes e draw invoice numbers from fn.
func (e *Emitter) WithNumbers(fn func(time.Time) string) *Emitter {
	e.number = fn
	return e
}
