package stream

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/tessera/engine/core"
	"github.com/spaghettifunk/tessera/engine/renderer/metadata"
)

/**
 * @brief One device buffer split into equal partitions that are written
 * round robin, one partition per frame in flight. Each partition owns a
 * completion token slot. The CPU may only write into a partition whose
 * previous token has been waited on (or never existed).
 */
type PartitionedBuffer struct {
	device         metadata.Device
	label          string
	handle         metadata.BufferHandle
	partitionCount uint32
	partitionSize  uint64
	current        uint32
	tokens         []metadata.CompletionToken
}

func NewPartitionedBuffer(device metadata.Device, label string, partitionCount uint32, partitionSize uint64) (*PartitionedBuffer, error) {
	if partitionCount == 0 || partitionSize == 0 {
		err := fmt.Errorf("partitioned buffer %q: partition count (%d) and size (%d) must be > 0", label, partitionCount, partitionSize)
		core.LogError(err.Error())
		return nil, err
	}

	handle, err := device.BufferCreate(label, uint64(partitionCount)*partitionSize)
	if err != nil {
		err = fmt.Errorf("partitioned buffer %q: failed to allocate %d x %d bytes: %w: %w", label, partitionCount, partitionSize, core.ErrResourceAllocation, err)
		core.LogError(err.Error())
		return nil, err
	}

	return &PartitionedBuffer{
		device:         device,
		label:          label,
		handle:         handle,
		partitionCount: partitionCount,
		partitionSize:  partitionSize,
		tokens:         make([]metadata.CompletionToken, partitionCount),
	}, nil
}

// Write copies data into the current partition at relativeOffset and
// returns the next free relative offset.
func (pb *PartitionedBuffer) Write(relativeOffset uint64, data []byte) (uint64, error) {
	end := relativeOffset + uint64(len(data))
	if end > pb.partitionSize || end < relativeOffset {
		err := fmt.Errorf("partitioned buffer %q: write of %d bytes at %d crosses partition size %d: %w", pb.label, len(data), relativeOffset, pb.partitionSize, core.ErrCapacityExceeded)
		core.LogError(err.Error())
		return relativeOffset, err
	}
	if len(data) == 0 {
		return relativeOffset, nil
	}
	if err := pb.device.BufferWrite(pb.handle, pb.PartitionOffset()+relativeOffset, data); err != nil {
		err = fmt.Errorf("partitioned buffer %q: %w", pb.label, err)
		core.LogError(err.Error())
		return relativeOffset, err
	}
	return end, nil
}

// MoveNextPartition advances to the next partition. It never waits.
func (pb *PartitionedBuffer) MoveNextPartition() {
	pb.current = (pb.current + 1) % pb.partitionCount
}

// Fence inserts a completion token for the current partition, covering all
// work submitted so far.
func (pb *PartitionedBuffer) Fence() error {
	if old := pb.tokens[pb.current]; old != metadata.NoToken {
		// A token that was never waited on is replaced; the new one covers it.
		core.LogWarn("partitioned buffer %q: partition %d fenced twice without a wait", pb.label, pb.current)
		pb.device.Dispose(old)
		pb.tokens[pb.current] = metadata.NoToken
	}
	token, err := pb.device.Insert()
	if err != nil {
		err = fmt.Errorf("partitioned buffer %q: failed to insert completion token: %w", pb.label, err)
		core.LogError(err.Error())
		return err
	}
	pb.tokens[pb.current] = token
	return nil
}

// WaitCurrent blocks until the current partition's previous token signals,
// then disposes and clears it. It returns how long it blocked.
func (pb *PartitionedBuffer) WaitCurrent(timeout time.Duration) (time.Duration, error) {
	return pb.wait(pb.current, timeout)
}

func (pb *PartitionedBuffer) wait(partition uint32, timeout time.Duration) (time.Duration, error) {
	token := pb.tokens[partition]
	if token == metadata.NoToken {
		return 0, nil
	}
	start := time.Now()
	if err := pb.device.Wait(token, timeout); err != nil {
		err = fmt.Errorf("partitioned buffer %q: waiting on partition %d: %w", pb.label, partition, err)
		core.LogError(err.Error())
		return time.Since(start), err
	}
	pb.device.Dispose(token)
	pb.tokens[partition] = metadata.NoToken
	return time.Since(start), nil
}

// Destroy waits on every outstanding token and frees the device buffer.
// Tokens are disposed even when a wait fails.
func (pb *PartitionedBuffer) Destroy(timeout time.Duration) error {
	var firstErr error
	for i := uint32(0); i < pb.partitionCount; i++ {
		// Oldest first, starting after the current partition.
		p := (pb.current + 1 + i) % pb.partitionCount
		if _, err := pb.wait(p, timeout); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			pb.device.Dispose(pb.tokens[p])
			pb.tokens[p] = metadata.NoToken
		}
	}
	if pb.handle != 0 {
		pb.device.BufferDestroy(pb.handle)
		pb.handle = 0
	}
	return firstErr
}

func (pb *PartitionedBuffer) CurrentPartition() uint32 { return pb.current }
func (pb *PartitionedBuffer) PartitionCount() uint32   { return pb.partitionCount }
func (pb *PartitionedBuffer) PartitionSize() uint64    { return pb.partitionSize }
func (pb *PartitionedBuffer) Handle() metadata.BufferHandle {
	return pb.handle
}
func (pb *PartitionedBuffer) Label() string { return pb.label }

// PartitionOffset is the absolute byte offset of the current partition.
func (pb *PartitionedBuffer) PartitionOffset() uint64 {
	return uint64(pb.current) * pb.partitionSize
}

// Token returns the token slot of a partition, NoToken when empty.
func (pb *PartitionedBuffer) Token(partition uint32) metadata.CompletionToken {
	return pb.tokens[partition%pb.partitionCount]
}
