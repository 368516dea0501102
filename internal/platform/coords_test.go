package platform

import (
	"testing"

	"github.com/mj1618/ax-mcp/internal/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		frame  Frame
		screen float64
		want   *model.Rect
	}{
		{
			name:  "top-left passthrough",
			frame: Frame{X: 10, Y: 20, Width: 300, Height: 400, Unit: model.UnitPixel},
			want:  &model.Rect{X: 10, Y: 20, Width: 300, Height: 400, Unit: model.UnitPixel},
		},
		{
			name:   "bottom-left flipped",
			frame:  Frame{X: 10, Y: 100, Width: 50, Height: 20, Origin: OriginBottomLeft, Unit: model.UnitDIP},
			screen: 900,
			want:   &model.Rect{X: 10, Y: 780, Width: 50, Height: 20, Unit: model.UnitDIP},
		},
		{
			name:  "unit defaults to pixels",
			frame: Frame{X: 1, Y: 2, Width: 3, Height: 4},
			want:  &model.Rect{X: 1, Y: 2, Width: 3, Height: 4, Unit: model.UnitPixel},
		},
		{name: "zero width", frame: Frame{Width: 0, Height: 10}},
		{name: "negative height", frame: Frame{Width: 10, Height: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.frame, tt.screen)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("Normalize() = %+v, want nil", got)
				}
				return
			}
			if got == nil || *got != *tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFrameFromEdges(t *testing.T) {
	f := FrameFromEdges(100, 50, 400, 250, model.UnitPixel)
	if f.X != 100 || f.Y != 50 || f.Width != 300 || f.Height != 200 {
		t.Errorf("got %+v", f)
	}
	r := Normalize(f, 0)
	if cx, cy := r.Center(); cx != 250 || cy != 150 {
		t.Errorf("Center() = %v,%v", cx, cy)
	}
}
