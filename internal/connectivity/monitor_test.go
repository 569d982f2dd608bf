package connectivity

import (
	"context"
	"testing"
	"time"

	"github.com/samvaadcop/orchestrator/internal/provider/contracts"
)

type scriptedProber struct {
	results []bool
	i       int
}

func (p *scriptedProber) Probe(context.Context) contracts.ProbeResult {
	up := false
	if p.i < len(p.results) {
		up = p.results[p.i]
		p.i++
	} else if len(p.results) > 0 {
		up = p.results[len(p.results)-1]
	}
	return contracts.ProbeResult{Up: up, Latency: time.Millisecond}
}

func TestStartsOffline(t *testing.T) {
	t.Parallel()

	m := NewMonitor(&scriptedProber{}, time.Minute)
	if m.Online() {
		t.Fatalf("monitor must start offline until a probe succeeds")
	}
}

func TestOnOnlineFiresOncePerEdge(t *testing.T) {
	t.Parallel()

	m := NewMonitor(&scriptedProber{}, time.Minute)
	fired := 0
	m.OnOnline(func() { fired++ })

	m.SetOnline(true)
	m.SetOnline(true) // still online, no edge
	m.SetOnline(false)
	m.SetOnline(true)

	if fired != 2 {
		t.Fatalf("expected one callback per offline-to-online edge, got %d", fired)
	}
}

func TestSetOnlineUpdatesState(t *testing.T) {
	t.Parallel()

	m := NewMonitor(&scriptedProber{}, time.Minute)
	m.SetOnline(true)
	if !m.Online() {
		t.Fatalf("expected online after SetOnline(true)")
	}
	m.SetOnline(false)
	if m.Online() {
		t.Fatalf("expected offline after SetOnline(false)")
	}
}

func TestRunProbesImmediately(t *testing.T) {
	t.Parallel()

	m := NewMonitor(&scriptedProber{results: []bool{true}}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	edge := make(chan struct{}, 1)
	m.OnOnline(func() {
		select {
		case edge <- struct{}{}:
		default:
		}
	})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	select {
	case <-edge:
	case <-time.After(5 * time.Second):
		t.Fatalf("first probe did not run promptly")
	}
	cancel()
	<-done

	if !m.Online() {
		t.Fatalf("expected online after successful probe")
	}
}
