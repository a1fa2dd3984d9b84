package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OCAP2/twoway/internal/config"
	"github.com/OCAP2/twoway/pkg/twoway"
)

// PingPongResult summarizes a ping-pong run.
type PingPongResult struct {
	Sent     int
	Echoed   int
	Duration time.Duration
}

// PingPong sends cfg.Messages values from cfg.Senders goroutines sharing
// endpoint a. A responder on endpoint b echoes every value back doubled, and
// the run checks that each doubled value came back exactly once.
func PingPong(cfg config.DemoConfig, opts ...twoway.Option) (PingPongResult, error) {
	start := time.Now()
	a, b := twoway.NewPair[int](opts...)

	responderDone := make(chan error, 1)
	go func() {
		var rerr error
		// b is released before PingPong is told the responder finished
		defer func() {
			_ = b.Close()
			responderDone <- rerr
		}()
		for {
			v, err := b.Recv()
			if err != nil {
				if !errors.Is(err, twoway.ErrPeerGone) {
					rerr = err
				}
				return
			}
			if err := b.Send(v * 2); err != nil {
				rerr = err
				return
			}
		}
	}()

	var wg sync.WaitGroup
	sendErrs := make(chan error, cfg.Senders)
	for s := 0; s < cfg.Senders; s++ {
		handle := a.Clone()
		wg.Add(1)
		go func(first int) {
			defer wg.Done()
			defer handle.Close()
			for v := first; v < cfg.Messages; v += cfg.Senders {
				if err := handle.Send(v); err != nil {
					sendErrs <- fmt.Errorf("sending %d: %w", v, err)
					return
				}
			}
		}(s)
	}

	seen := make(map[int]bool, cfg.Messages)
	var recvErr error
	for len(seen) < cfg.Messages {
		v, err := a.Recv()
		if err != nil {
			recvErr = fmt.Errorf("receiving echo %d of %d: %w", len(seen)+1, cfg.Messages, err)
			break
		}
		if v%2 != 0 || v/2 < 0 || v/2 >= cfg.Messages {
			recvErr = fmt.Errorf("unexpected echo %d", v)
			break
		}
		if seen[v] {
			recvErr = fmt.Errorf("duplicate echo %d", v)
			break
		}
		seen[v] = true
	}

	wg.Wait()
	close(sendErrs)
	_ = a.Close()

	result := PingPongResult{
		Sent:     cfg.Messages,
		Echoed:   len(seen),
		Duration: time.Since(start),
	}

	errs := []error{recvErr, <-responderDone}
	for err := range sendErrs {
		errs = append(errs, err)
	}
	return result, errors.Join(errs...)
}

// CloseResult reports what the surviving endpoint observed after its peer closed.
type CloseResult struct {
	Recovered string
	SendErr   error
	RecvErr   error
}

// ClosedPeer closes one endpoint of a fresh pair and shows that the other
// endpoint gets its value back from Send and an error from Recv.
func ClosedPeer(value string, opts ...twoway.Option) (CloseResult, error) {
	a, b := twoway.NewPair[string](opts...)
	defer a.Close()
	_ = b.Close()

	var result CloseResult
	result.SendErr = a.Send(value)

	var sendErr *twoway.SendError[string]
	if !errors.As(result.SendErr, &sendErr) {
		return result, fmt.Errorf("send to closed peer: expected *SendError, got %v", result.SendErr)
	}
	result.Recovered = sendErr.Value

	_, result.RecvErr = a.Recv()
	if !errors.Is(result.RecvErr, twoway.ErrPeerGone) {
		return result, fmt.Errorf("recv from closed peer: expected ErrPeerGone, got %v", result.RecvErr)
	}
	return result, nil
}
