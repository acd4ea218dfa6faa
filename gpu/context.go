// Package gpu runs dense layer products on a WebGPU device.
//
// Backend implements nn.Backend, so any nn.Linear (and therefore both
// geometric factors) can be moved to the GPU with SetBackend / WithBackend.
// A single process-wide device and queue are shared by all callers.
package gpu

import (
	"strings"
	"sync"

	"github.com/openfluke/webgpu/wgpu"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Context holds the single WebGPU context for the application
type Context struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	once     sync.Once
	initErr  error
}

var ctx Context

// GetContext returns the singleton GPU context, initializing it if necessary
func GetContext() (*Context, error) {
	ctx.once.Do(func() {
		ctx.initErr = ctx.init()
	})
	if ctx.initErr != nil {
		return nil, ctx.initErr
	}
	if ctx.Device == nil || ctx.Queue == nil {
		return nil, errors.New("WebGPU device or queue not initialized")
	}
	return &ctx, nil
}

// EnsureGPU reports whether a usable adapter and device could be acquired.
func EnsureGPU() error {
	_, err := GetContext()
	return err
}

func (c *Context) init() error {
	log := zap.L().Named("gpu")

	c.Instance = wgpu.CreateInstance(nil)
	if c.Instance == nil {
		return errors.New("failed to create WebGPU instance")
	}

	// Prefer a discrete NVIDIA adapter when one is enumerated
	for _, a := range c.Instance.EnumerateAdapters(nil) {
		info := a.GetInfo()
		log.Debug("found adapter",
			zap.String("name", info.Name),
			zap.String("vendor", info.VendorName),
			zap.Any("device_id", info.DeviceId))
		if strings.Contains(strings.ToLower(info.Name), "nvidia") ||
			strings.Contains(strings.ToLower(info.VendorName), "nvidia") {
			c.Adapter = a
			break
		}
	}

	var err error
	for _, opts := range []*wgpu.RequestAdapterOptions{
		{PowerPreference: wgpu.PowerPreferenceHighPerformance},
		{PowerPreference: wgpu.PowerPreferenceLowPower},
		nil,
	} {
		if c.Adapter != nil {
			break
		}
		c.Adapter, err = c.Instance.RequestAdapter(opts)
		if err != nil {
			log.Debug("adapter request failed, falling back", zap.Error(err))
		}
	}
	if c.Adapter == nil {
		return errors.Wrap(err, "all adapter attempts failed")
	}

	info := c.Adapter.GetInfo()
	log.Info("using GPU adapter", zap.String("name", info.Name), zap.String("vendor", info.VendorName))

	c.Device, err = c.Adapter.RequestDevice(nil)
	if err != nil {
		return errors.Wrap(err, "request device")
	}
	c.Queue = c.Device.GetQueue()
	return nil
}
