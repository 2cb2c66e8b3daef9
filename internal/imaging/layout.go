package imaging

// Layout is the axis along which images are concatenated.
type Layout int

const (
	Horizontal Layout = iota
	Vertical
)

func (l Layout) String() string {
	if l == Vertical {
		return "vertical"
	}
	return "horizontal"
}

// Axis names an image dimension.
type Axis int

const (
	AxisHeight Axis = iota
	AxisWidth
)

func (a Axis) String() string {
	if a == AxisWidth {
		return "width"
	}
	return "height"
}

// NormalizeAxis is the dimension equalized for a layout: height for horizontal
// rows, width for vertical columns.
func (l Layout) NormalizeAxis() Axis {
	if l == Vertical {
		return AxisWidth
	}
	return AxisHeight
}
