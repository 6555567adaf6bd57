package resource

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

type cachedBindGroupLayout struct {
	entries []wgpu.BindGroupLayoutEntry
	layout  *BindGroupLayout
}

// BindGroupLayoutCache shares one layout object per distinct entry list.
// Entries are never evicted.
type BindGroupLayoutCache struct {
	mu      sync.Mutex
	buckets map[uint64][]cachedBindGroupLayout
	count   int
}

func NewBindGroupLayoutCache() *BindGroupLayoutCache {
	return &BindGroupLayoutCache{buckets: make(map[uint64][]cachedBindGroupLayout)}
}

func (c *BindGroupLayoutCache) Get(device RenderDevice, desc BindGroupLayoutDescriptor) (*BindGroupLayout, error) {
	key := hashBindGroupLayoutEntries(desc.Entries)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cached := range c.buckets[key] {
		if bindGroupLayoutEntriesEqual(cached.entries, desc.Entries) {
			return cached.layout, nil
		}
	}

	layout, err := device.CreateBindGroupLayout(desc.Label, desc.Entries)
	if err != nil {
		return nil, err
	}
	entries := append([]wgpu.BindGroupLayoutEntry(nil), desc.Entries...)
	c.buckets[key] = append(c.buckets[key], cachedBindGroupLayout{entries: entries, layout: layout})
	c.count++
	return layout, nil
}

func (c *BindGroupLayoutCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// LayoutCache shares one pipeline layout per (bind group layout ids, push
// constant ranges) combination.
type LayoutCache struct {
	mu      sync.Mutex
	layouts map[string]*PipelineLayout
}

func NewLayoutCache() *LayoutCache {
	return &LayoutCache{layouts: make(map[string]*PipelineLayout)}
}

func (c *LayoutCache) Get(device RenderDevice, bindGroupLayouts []*BindGroupLayout, pushConstants []PushConstantRange) (*PipelineLayout, error) {
	key := layoutCacheKey(bindGroupLayouts, pushConstants)

	c.mu.Lock()
	defer c.mu.Unlock()

	if layout, ok := c.layouts[key]; ok {
		return layout, nil
	}
	layout, err := device.CreatePipelineLayout(PipelineLayoutDescriptor{
		BindGroupLayouts:   bindGroupLayouts,
		PushConstantRanges: pushConstants,
	})
	if err != nil {
		return nil, err
	}
	c.layouts[key] = layout
	return layout, nil
}

func (c *LayoutCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.layouts)
}

func layoutCacheKey(bindGroupLayouts []*BindGroupLayout, pushConstants []PushConstantRange) string {
	buf := make([]byte, 0, 8+8*len(bindGroupLayouts)+12*len(pushConstants))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(bindGroupLayouts)))
	for _, layout := range bindGroupLayouts {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(layout.Id()))
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(pushConstants)))
	for _, r := range pushConstants {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(r.Stages))
		buf = binary.LittleEndian.AppendUint32(buf, r.Start)
		buf = binary.LittleEndian.AppendUint32(buf, r.End)
	}
	return string(buf)
}

func hashBindGroupLayoutEntries(entries []wgpu.BindGroupLayoutEntry) uint64 {
	h := fnv.New64a()
	hashWriteUint32(h, uint32(len(entries)))
	for _, e := range entries {
		hashWriteUint32(h, e.Binding)
		hashWriteUint64(h, uint64(e.Visibility))
		hashWriteUint64(h, uint64(e.Buffer.Type))
		hashWriteBool(h, e.Buffer.HasDynamicOffset)
		hashWriteUint64(h, e.Buffer.MinBindingSize)
		hashWriteUint64(h, uint64(e.Sampler.Type))
		hashWriteUint64(h, uint64(e.Texture.SampleType))
		hashWriteUint64(h, uint64(e.Texture.ViewDimension))
		hashWriteBool(h, e.Texture.Multisampled)
		hashWriteUint64(h, uint64(e.StorageTexture.Access))
		hashWriteUint64(h, uint64(e.StorageTexture.Format))
		hashWriteUint64(h, uint64(e.StorageTexture.ViewDimension))
	}
	return h.Sum64()
}

func bindGroupLayoutEntriesEqual(a, b []wgpu.BindGroupLayoutEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.Binding != y.Binding ||
			x.Visibility != y.Visibility ||
			x.Buffer.Type != y.Buffer.Type ||
			x.Buffer.HasDynamicOffset != y.Buffer.HasDynamicOffset ||
			x.Buffer.MinBindingSize != y.Buffer.MinBindingSize ||
			x.Sampler.Type != y.Sampler.Type ||
			x.Texture.SampleType != y.Texture.SampleType ||
			x.Texture.ViewDimension != y.Texture.ViewDimension ||
			x.Texture.Multisampled != y.Texture.Multisampled ||
			x.StorageTexture.Access != y.StorageTexture.Access ||
			x.StorageTexture.Format != y.StorageTexture.Format ||
			x.StorageTexture.ViewDimension != y.StorageTexture.ViewDimension {
			return false
		}
	}
	return true
}

func hashWriteUint32(h hash.Hash64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = h.Write(buf[:])
}

func hashWriteUint64(h hash.Hash64, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.Write(buf[:])
}

func hashWriteBool(h hash.Hash64, v bool) {
	if v {
		_, _ = h.Write([]byte{1})
	} else {
		_, _ = h.Write([]byte{0})
	}
}
