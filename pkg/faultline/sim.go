package faultline

import (
	"context"
	"fmt"
	"io"
	"time"

	"faultline/internal/backend"
	"faultline/internal/campaign"
	"faultline/internal/trigger"
)

// simRig models the target side of a campaign: it keeps asserting the
// trigger condition the way a target re-entering its boot loop does, and
// answers post-glitch reads with a fixed response.
type simRig struct {
	backend backend.Backend
	target  campaign.Target
	stopCh  chan struct{}
}

type simTarget struct {
	response []byte
}

func (t *simTarget) Read(ctx context.Context, timeout time.Duration) ([]byte, error) {
	return append([]byte(nil), t.response...), nil
}

func newSimRig(req CampaignRequest) (*simRig, error) {
	rig := &simRig{
		stopCh: make(chan struct{}),
		target: &simTarget{response: []byte(req.TargetResponse)},
	}

	var detector trigger.Detector
	switch req.TriggerSource {
	case "edge":
		line := trigger.NewLine()
		go rig.pumpEdges(line)
		detector = &trigger.EdgeDetector{Line: line, Edge: trigger.RisingEdge}
	case "pattern":
		pattern := req.TriggerPattern
		if pattern == "" {
			pattern = "boot\r\n"
		}
		pr, pw := io.Pipe()
		d, err := trigger.NewPatternDetector(pr, []byte(pattern))
		if err != nil {
			return nil, err
		}
		go rig.pumpPattern(pw, []byte(pattern))
		detector = d
	default:
		return nil, fmt.Errorf("unknown trigger source %q", req.TriggerSource)
	}

	b, err := buildBackend(req, detector)
	if err != nil {
		return nil, err
	}
	rig.backend = b
	return rig, nil
}

func (r *simRig) pumpEdges(line *trigger.Line) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	var ticks uint64
	high := false
	for {
		select {
		case <-ticker.C:
			ticks += 200_000 // 1ms of 200 MHz ticks
			high = !high
			line.Set(high, ticks)
		case <-r.stopCh:
			return
		}
	}
}

func (r *simRig) pumpPattern(w io.WriteCloser, pattern []byte) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := w.Write(pattern); err != nil {
				return
			}
		case <-r.stopCh:
			w.Close()
			return
		}
	}
}

func (r *simRig) stop() {
	close(r.stopCh)
}
