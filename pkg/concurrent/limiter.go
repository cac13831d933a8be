package concurrent

type Limiter interface {
	// Add enqueue one working credential.
	Add()
	// Done dequeue one working credential.
	Done()
}

type limiter struct {
	working chan struct{}
}

// NewLimiter bounds the number of credentials held at once to maxConcurrency (at least one).
func NewLimiter(maxConcurrency int) Limiter {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &limiter{
		working: make(chan struct{}, maxConcurrency),
	}
}

func (in *limiter) Add() {
	in.working <- struct{}{}
}

func (in *limiter) Done() {
	<-in.working
}
