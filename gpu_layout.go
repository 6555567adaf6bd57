package gekko

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"
	"strconv"

	"github.com/cogentcore/webgpu/wgpu"
)

func parseFormat(name string) wgpu.VertexFormat {
	switch name {
	case "float":
		return wgpu.VertexFormatFloat32
	case "float2":
		return wgpu.VertexFormatFloat32x2
	case "float3":
		return wgpu.VertexFormatFloat32x3
	case "float4":
		return wgpu.VertexFormatFloat32x4
	default:
		panic("unsupported vertex layout format: " + name)
	}
}

// createVertexBufferLayout builds a layout from the `gekko:"layout"` fields
// of a vertex struct. A mat4 field takes four consecutive locations.
//
//	type Vertex struct {
//		Position [3]float32 `gekko:"layout" location:"0" format:"float3"`
//	}
func createVertexBufferLayout(vertexType any, stepMode wgpu.VertexStepMode) wgpu.VertexBufferLayout {
	t := reflect.TypeOf(vertexType)
	if t.Kind() != reflect.Struct {
		panic("Vertex must be a struct")
	}

	var attributes []wgpu.VertexAttribute
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if "layout" != field.Tag.Get("gekko") {
			continue
		}
		location, err := strconv.Atoi(field.Tag.Get("location"))
		if nil != err {
			panic(err)
		}
		if field.Tag.Get("format") == "mat4" {
			for column := 0; column < 4; column++ {
				attributes = append(attributes, wgpu.VertexAttribute{
					ShaderLocation: uint32(location + column),
					Offset:         uint64(field.Offset) + uint64(column*16),
					Format:         wgpu.VertexFormatFloat32x4,
				})
			}
			continue
		}
		attributes = append(attributes, wgpu.VertexAttribute{
			ShaderLocation: uint32(location),
			Offset:         uint64(field.Offset),
			Format:         parseFormat(field.Tag.Get("format")),
		})
	}

	return wgpu.VertexBufferLayout{
		ArrayStride: uint64(t.Size()),
		StepMode:    stepMode,
		Attributes:  attributes,
	}
}

// toBufferBytes encodes fixed-size data in the little-endian layout the GPU
// reads. Blank fields encode as zero padding.
func toBufferBytes(data any) []byte {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, data); err != nil {
		panic(fmt.Sprintf("GPU data of type %T is not fixed-size: %v", data, err))
	}
	return padToCopyAlignment(buf.Bytes())
}

// padToCopyAlignment pads buffer contents to the 4-byte copy alignment.
func padToCopyAlignment(data []byte) []byte {
	for len(data)%4 != 0 {
		data = append(data, 0)
	}
	return data
}
