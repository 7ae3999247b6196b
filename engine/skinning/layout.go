package skinning

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
)

var (
	// bindingDeclRegex captures group, binding, address space, variable name and type from declarations
	// like: @group(0) @binding(0) var<storage, read> skin_matrices: array<SkinMatrix>;
	bindingDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)

	lineCommentRegex = regexp.MustCompile(`//[^\n]*`)
)

// skinDecl is the storage declaration of the skin matrices in a WGSL source.
type skinDecl struct {
	group, binding int
	access         string
	name           string
	typeName       string
}

// parseSkinDecl finds the storage binding holding an array of SkinMatrix values.
func parseSkinDecl(source string) (skinDecl, error) {
	cleaned := lineCommentRegex.ReplaceAllString(source, "")
	for _, m := range bindingDeclRegex.FindAllStringSubmatch(cleaned, -1) {
		typeName := strings.TrimSpace(m[5])
		if !strings.HasPrefix(typeName, "array<SkinMatrix") {
			continue
		}
		d := skinDecl{
			access:   strings.TrimSpace(m[3]),
			name:     strings.TrimSpace(m[4]),
			typeName: typeName,
		}
		d.group, _ = strconv.Atoi(m[1])
		d.binding, _ = strconv.Atoi(m[2])
		if !strings.HasPrefix(d.access, "storage") {
			return skinDecl{}, errors.Wrapf(skeleton.ErrConfiguration, "skin matrices %q are not in storage space", d.name)
		}
		return d, nil
	}
	return skinDecl{}, errors.Wrap(skeleton.ErrConfiguration, "no array<SkinMatrix> binding declared")
}

// layoutEntry builds the bind group layout entry of a skin storage declaration.
func layoutEntry(d skinDecl, binding uint32, visibility wgpu.ShaderStage) wgpu.BindGroupLayoutEntry {
	entry := wgpu.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: visibility,
	}
	if strings.Contains(d.access, "read_write") {
		entry.Buffer.Type = wgpu.BufferBindingTypeStorage
	} else {
		entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
	}
	// A runtime-sized array needs room for at least one element.
	entry.Buffer.MinBindingSize = GPUSkinMatrixSize
	return entry
}

func (b *skinBuffer) LayoutEntry(visibility wgpu.ShaderStage) (wgpu.BindGroupLayoutEntry, error) {
	d, err := parseSkinDecl(GPUSkinMatrixSource)
	if err != nil {
		return wgpu.BindGroupLayoutEntry{}, err
	}
	b.mu.Lock()
	binding := b.binding
	b.mu.Unlock()
	return layoutEntry(d, uint32(binding), visibility), nil
}
