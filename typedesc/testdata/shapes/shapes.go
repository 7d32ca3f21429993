// Package shapes is a fixture for the package loader tests.
package shapes

// Vec is a 2D vector.
type Vec struct {
	X, Y float64
}

// Len returns the Manhattan length.
func (v Vec) Len() float64 { return v.X + v.Y }

// Scale multiplies vectors.
type Scale struct {
	F float64
}

func OpAddition(a, b Vec) Vec { return Vec{a.X + b.X, a.Y + b.Y} }

func OpMultiply(a Vec, s Scale) Vec { return Vec{a.X * s.F, a.Y * s.F} }

// Shape is anything with an area.
type Shape interface {
	Area() float64
}

// Color enumerates palette entries.
type Color int

const (
	Red Color = iota
	Green
)

// Callback is invoked after each draw.
type Callback func(c *Canvas, n int) bool

// Canvas holds shapes.
//
//hostbind:hotfix=before
type Canvas struct {
	Name string
	// Deprecated: use Name.
	Title string
	//hostbind:omit
	Secret string
	OnDraw Callback

	hidden int
}

func NewCanvas(name string) *Canvas { return &Canvas{Name: name} }

func (c *Canvas) Add(s Shape) error { c.hidden++; return nil }

func (c *Canvas) Close() error { return nil }

func (c *Canvas) Pixels() []byte { return nil }

func (c *Canvas) Colors() []Color { return nil }

// List is a generic container.
type List[T any] struct {
	Items []T
}

func (l *List[T]) Push(v T) { l.Items = append(l.Items, v) }

// Layer stacks ints.
type Layer struct {
	List[int]
	Depth int
}

// Scaled returns v scaled by f.
//
//hostbind:extension
func Scaled(v Vec, f float64) Vec { return Vec{v.X * f, v.Y * f} }

// Origin is the zero vector.
var Origin = Vec{}
