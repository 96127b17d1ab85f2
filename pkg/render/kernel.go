package render

import(
	"fmt"

	"golang.org/x/sys/cpu"

	"github.com/abworrall/rawpipe/pkg/image16"
)

// A Kernel renders rows [y0,y1) of an image in place. Kernels only
// read the State, so any number can run at once on disjoint rows.
type Kernel interface {
	Name() string
	RenderRows(st *State, img *image16.Image, y0, y1 int)
}

var(
	Scalar Kernel = scalarKernel{}
	Vector Kernel = vectorKernel{}

	// DefaultKernel is picked once, at startup, by SelectKernel
	DefaultKernel = SelectKernel()
)

// SelectKernel picks the batched kernel when the CPU has SIMD units
// wide enough for the compiler to make use of, and the scalar one otherwise.
func SelectKernel() Kernel {
	if cpu.X86.HasSSE2 || cpu.ARM64.HasASIMD {
		return Vector
	}
	return Scalar
}

// KernelByName is for config files and flags: "auto", "scalar" or "vector"
func KernelByName(name string) (Kernel, error) {
	switch name {
	case "", "auto": return DefaultKernel, nil
	case "scalar":   return Scalar, nil
	case "vector":   return Vector, nil
	}
	return nil, fmt.Errorf("no render kernel named '%s'", name)
}

// scalarKernel is the reference implementation; float64 all the way
type scalarKernel struct{}

func (scalarKernel)Name() string { return "scalar" }

func (scalarKernel)RenderRows(st *State, img *image16.Image, y0, y1 int) {
	for y:=y0; y<y1; y++ {
		row := img.Row(y)
		for i:=0; i+2<len(row); i+=3 {
			row[i], row[i+1], row[i+2] = st.RenderPixel(row[i], row[i+1], row[i+2])
		}
	}
}
