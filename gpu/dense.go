package gpu

import (
	"fmt"
	"sync"

	"github.com/openfluke/webgpu/wgpu"
	"github.com/pkg/errors"

	"github.com/openfluke/geofactor/nn"
)

const workgroupSize = 256

// Backend implements nn.Backend on the shared WebGPU device.
// Pipelines are compiled once per (in, out) layer shape and reused.
type Backend struct {
	mu        sync.Mutex
	pipelines map[[2]int]*densePipeline
}

var _ nn.Backend = (*Backend)(nil)

// densePipeline is a compiled dense kernel for one layer shape
type densePipeline struct {
	pipeline        *wgpu.ComputePipeline
	pipelineLayout  *wgpu.PipelineLayout
	bindGroupLayout *wgpu.BindGroupLayout
}

func (p *densePipeline) release() {
	if p.pipeline != nil {
		p.pipeline.Release()
	}
	if p.pipelineLayout != nil {
		p.pipelineLayout.Release()
	}
	if p.bindGroupLayout != nil {
		p.bindGroupLayout.Release()
	}
}

// NewBackend acquires the GPU context and returns a backend bound to it.
func NewBackend() (*Backend, error) {
	if err := EnsureGPU(); err != nil {
		return nil, err
	}
	return &Backend{pipelines: make(map[[2]int]*densePipeline)}, nil
}

func (*Backend) Name() string { return "webgpu" }

// Release frees the cached pipelines.
func (g *Backend) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, p := range g.pipelines {
		p.release()
		delete(g.pipelines, key)
	}
}

// denseShader generates WGSL for y = x·Wᵀ + b with W laid out [out][in]
func denseShader(in, out int) string {
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read> input : array<f32>;
		@group(0) @binding(1) var<storage, read_write> output : array<f32>;
		@group(0) @binding(2) var<storage, read> weights : array<f32>;
		@group(0) @binding(3) var<storage, read> biases : array<f32>;

		@compute @workgroup_size(%[1]d)
		fn main(@builtin(global_invocation_id) gid: vec3<u32>,
		        @builtin(num_workgroups) nwg: vec3<u32>) {
			let idx = gid.y * nwg.x * %[1]du + gid.x;
			let n_out = %[2]du;
			let n_in = %[3]du;

			if (idx >= arrayLength(&output)) {
				return;
			}

			// idx = sample_idx * n_out + out_idx
			let sample_idx = idx / n_out;
			let out_idx = idx %% n_out;

			var sum: f32 = biases[out_idx];
			let weight_offset = out_idx * n_in;
			let input_offset = sample_idx * n_in;

			for (var i: u32 = 0u; i < n_in; i++) {
				sum += weights[weight_offset + i] * input[input_offset + i];
			}

			output[idx] = sum;
		}
	`, workgroupSize, out, in)
}

func (g *Backend) compile(c *Context, in, out int) (*densePipeline, error) {
	key := [2]int{in, out}
	if p, ok := g.pipelines[key]; ok {
		return p, nil
	}

	label := fmt.Sprintf("dense_%dx%d", in, out)
	module, err := c.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label + "_Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: denseShader(in, out)},
	})
	if err != nil {
		return nil, errors.Wrap(err, "shader compile")
	}
	defer module.Release()

	// Explicit bind group layout to avoid "auto" layout issues in WASM
	bgl, err := c.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: label + "_BGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}}, // Input
			{Binding: 1, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}},         // Output
			{Binding: 2, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}}, // Weights
			{Binding: 3, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}}, // Biases
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create bgl")
	}
	p := &densePipeline{bindGroupLayout: bgl}

	p.pipelineLayout, err = c.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label + "_Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{bgl},
	})
	if err != nil {
		p.release()
		return nil, errors.Wrap(err, "create pipeline layout")
	}

	p.pipeline, err = c.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  label + "_Pipe",
		Layout: p.pipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		p.pipeline = nil
		p.release()
		return nil, errors.Wrap(err, "pipeline create")
	}

	g.pipelines[key] = p
	return p, nil
}

// maxWorkgroupsPerDim is WebGPU's default maxComputeWorkgroupsPerDimension
const maxWorkgroupsPerDim = 65535

// dispatchSize covers n invocations with a 2D grid of workgroups, spilling
// into y once x reaches the per-dimension limit. The shader flattens the grid
// back to a linear index and discards the overhang.
func dispatchSize(n int) (x, y uint32, err error) {
	groups := (n + workgroupSize - 1) / workgroupSize
	if groups <= maxWorkgroupsPerDim {
		return uint32(groups), 1, nil
	}
	rows := (groups + maxWorkgroupsPerDim - 1) / maxWorkgroupsPerDim
	if rows > maxWorkgroupsPerDim {
		return 0, 0, errors.Errorf("dense dispatch of %d outputs exceeds the workgroup grid", n)
	}
	return maxWorkgroupsPerDim, uint32(rows), nil
}

// Linear implements nn.Backend.
func (g *Backend) Linear(x []float32, batch, in int, w, b []float32, out int) ([]float32, error) {
	if err := nn.CheckLinearArgs(x, batch, in, w, b, out); err != nil {
		return nil, err
	}
	if batch == 0 {
		return []float32{}, nil
	}

	groupsX, groupsY, err := dispatchSize(batch * out)
	if err != nil {
		return nil, err
	}

	c, err := GetContext()
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	p, err := g.compile(c, in, out)
	if err != nil {
		return nil, err
	}

	storage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc
	var buffers []*wgpu.Buffer
	defer func() {
		for _, buf := range buffers {
			buf.Destroy()
		}
	}()
	upload := func(label string, data []float32) (*wgpu.Buffer, error) {
		buf, err := NewFloatBuffer(c, label, data, storage)
		if err == nil {
			buffers = append(buffers, buf)
		}
		return buf, err
	}

	inputBuf, err := upload("dense_In", x)
	if err != nil {
		return nil, err
	}
	weightBuf, err := upload("dense_W", w)
	if err != nil {
		return nil, err
	}
	biasBuf, err := upload("dense_B", b)
	if err != nil {
		return nil, err
	}

	outBytes := uint64(batch * out * 4)
	outputBuf, err := c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "dense_Out",
		Size:  outBytes,
		Usage: storage,
	})
	if err != nil {
		return nil, errors.Wrap(err, "output buffer")
	}
	buffers = append(buffers, outputBuf)

	stagingBuf, err := c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "dense_Staging",
		Size:  outBytes,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, errors.Wrap(err, "staging buffer")
	}
	buffers = append(buffers, stagingBuf)

	bindGroup, err := c.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "dense_Bind",
		Layout: p.bindGroupLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: inputBuf, Size: inputBuf.GetSize()},
			{Binding: 1, Buffer: outputBuf, Size: outputBuf.GetSize()},
			{Binding: 2, Buffer: weightBuf, Size: weightBuf.GetSize()},
			{Binding: 3, Buffer: biasBuf, Size: biasBuf.GetSize()},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create bind group")
	}
	defer bindGroup.Release()

	enc, err := c.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, errors.Wrap(err, "create command encoder")
	}
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(groupsX, groupsY, 1)
	pass.End()
	enc.CopyBufferToBuffer(outputBuf, 0, stagingBuf, 0, outBytes)

	cmd, err := enc.Finish(nil)
	if err != nil {
		return nil, errors.Wrap(err, "finish command")
	}
	c.Queue.Submit(cmd)

	return readStagingBuffer(c, stagingBuf, batch*out)
}
