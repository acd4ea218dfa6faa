package gpu

import (
	"time"

	"github.com/openfluke/webgpu/wgpu"
	"github.com/pkg/errors"
)

// readTimeout bounds how long a staging buffer map may take
const readTimeout = 2 * time.Second

// NewFloatBuffer creates a buffer with the given float32 data
func NewFloatBuffer(c *Context, label string, data []float32, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	buf, err := c.Device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    label,
		Contents: wgpu.ToBytes(data),
		Usage:    usage,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create buffer %s", label)
	}
	return buf, nil
}

// readStagingBuffer maps a MapRead buffer and copies size float32 values out
func readStagingBuffer(c *Context, buf *wgpu.Buffer, size int) ([]float32, error) {
	sizeBytes := uint64(size * 4)
	done := make(chan struct{})
	var mapErr error

	err := buf.MapAsync(wgpu.MapModeRead, 0, sizeBytes, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = errors.Errorf("map status: %d", status)
		}
		close(done)
	})
	if err != nil {
		return nil, errors.Wrap(err, "MapAsync failed")
	}

	timeout := time.After(readTimeout)
Loop:
	for {
		c.Device.Poll(false, nil)
		select {
		case <-done:
			break Loop
		case <-timeout:
			return nil, errors.Errorf("staging read timed out after %s", readTimeout)
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if mapErr != nil {
		return nil, mapErr
	}

	data := buf.GetMappedRange(0, uint(sizeBytes))
	defer buf.Unmap()
	if data == nil {
		return nil, errors.New("mapped range nil")
	}

	out := make([]float32, size)
	copy(out, wgpu.FromBytes[float32](data))
	return out, nil
}
