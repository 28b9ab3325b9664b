package sim

import (
	"fmt"

	"github.com/spaghettifunk/tessera/engine/core"
	"github.com/spaghettifunk/tessera/engine/renderer/metadata"
)

// Violation is a CPU write into a byte range that submitted GPU work may
// still be reading.
type Violation struct {
	Buffer metadata.BufferHandle
	Offset uint64
	Size   uint64
	// Token covering the read, NoToken if the read was never fenced.
	Token metadata.CompletionToken
}

func (v Violation) String() string {
	return fmt.Sprintf("write to buffer %d [%d, %d) overlaps a read guarded by token %d", v.Buffer, v.Offset, v.Offset+v.Size, v.Token)
}

type pendingRead struct {
	buffer     metadata.BufferHandle
	start, end uint64
	token      metadata.CompletionToken
}

// hazardTracker keeps byte ranges read by submitted draws until the CPU
// observes the token that covers them.
type hazardTracker struct {
	reads      []pendingRead
	violations []Violation
}

func (ht *hazardTracker) recordRead(buffer metadata.BufferHandle, start, end uint64) {
	ht.reads = append(ht.reads, pendingRead{buffer: buffer, start: start, end: end})
}

// attach hands every unfenced read to token.
func (ht *hazardTracker) attach(token metadata.CompletionToken) {
	for i := range ht.reads {
		if ht.reads[i].token == metadata.NoToken {
			ht.reads[i].token = token
		}
	}
}

// retire drops the reads covered by token. Observing a later token does not
// retire earlier reads: every range must be released by its own token.
func (ht *hazardTracker) retire(token metadata.CompletionToken) {
	kept := ht.reads[:0]
	for _, r := range ht.reads {
		if r.token != token {
			kept = append(kept, r)
		}
	}
	ht.reads = kept
}

// release unfences the reads covered by token so a later token can adopt them.
func (ht *hazardTracker) release(token metadata.CompletionToken) {
	for i := range ht.reads {
		if ht.reads[i].token == token {
			ht.reads[i].token = metadata.NoToken
		}
	}
}

func (ht *hazardTracker) checkWrite(buffer metadata.BufferHandle, start, end uint64) {
	kept := ht.reads[:0]
	for _, r := range ht.reads {
		if r.buffer == buffer && start < r.end && r.start < end {
			v := Violation{Buffer: buffer, Offset: start, Size: end - start, Token: r.token}
			ht.violations = append(ht.violations, v)
			core.LogError("sim device hazard: %s", v)
			continue
		}
		kept = append(kept, r)
	}
	ht.reads = kept
}

func (ht *hazardTracker) forget(buffer metadata.BufferHandle) {
	kept := ht.reads[:0]
	for _, r := range ht.reads {
		if r.buffer != buffer {
			kept = append(kept, r)
		}
	}
	ht.reads = kept
}

// Violations returns every overwrite hazard seen so far.
func (d *Device) Violations() []Violation {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Violation, len(d.tracker.violations))
	copy(out, d.tracker.violations)
	return out
}
