package physics

import "math"

// Corner 球場切角
//
// 每個切角由一條斜線 (P1, P2) 與一個位於場內的參考點 Inside 定義。
// Inside 決定斜線的哪一側是「場內」。InRegion 限定只有球心位於
// 該角落的方形區域內才檢查此切角。
type Corner struct {
	Name     string
	P1, P2   Point
	Inside   Point
	InRegion func(x, y float64) bool
}

// Corners 依固定順序（左上、右上、左下、右下）返回四個切角
func Corners(width, height, size float64) []Corner {
	insideX := math.Max(width-size*2, width/2)
	insideY := math.Max(height-size*2, height/2)

	return []Corner{
		{
			Name:     "top-left",
			P1:       Point{0, size},
			P2:       Point{size, 0},
			Inside:   Point{size * 2, size * 2},
			InRegion: func(x, y float64) bool { return x < size && y < size },
		},
		{
			Name:     "top-right",
			P1:       Point{width - size, 0},
			P2:       Point{width, size},
			Inside:   Point{insideX, size * 2},
			InRegion: func(x, y float64) bool { return x > width-size && y < size },
		},
		{
			Name:     "bottom-left",
			P1:       Point{0, height - size},
			P2:       Point{size, height},
			Inside:   Point{size * 2, insideY},
			InRegion: func(x, y float64) bool { return x < size && y > height-size },
		},
		{
			Name:     "bottom-right",
			P1:       Point{width - size, height},
			P2:       Point{width, height - size},
			Inside:   Point{insideX, insideY},
			InRegion: func(x, y float64) bool { return x > width-size && y > height-size },
		},
	}
}

// line 返回斜線隱式方程 A·x + B·y + C = 0 的係數與法向量長度。
// 長度為 0（P1 == P2）時以 1 代替，避免除以零。
func (c Corner) line() (a, b, cc, norm float64) {
	d := c.P2.Sub(c.P1)
	a = d.Y
	b = -d.X
	cc = d.X*c.P1.Y - d.Y*c.P1.X

	norm = math.Hypot(a, b)
	if norm == 0 {
		norm = 1
	}
	return a, b, cc, norm
}

// insideSign 場內那一側的符號，參考點恰在線上時固定為 +1
func (c Corner) insideSign() float64 {
	a, b, cc, _ := c.line()
	if a*c.Inside.X+b*c.Inside.Y+cc < 0 {
		return -1
	}
	return 1
}

// Normal 指向場內的單位法向量
func (c Corner) Normal() Point {
	a, b, _, norm := c.line()
	s := c.insideSign()
	return Point{a / norm * s, b / norm * s}
}

// SignedDistance 點到斜線的距離，場內為正
func (c Corner) SignedDistance(p Point) float64 {
	a, b, cc, norm := c.line()
	return (a*p.X + b*p.Y + cc) / norm * c.insideSign()
}

// Resolve 對單一切角做碰撞修正，返回是否修正過。
//
// 距離 ≥ 半徑時不處理；否則沿法線推出穿透深度，若法向速度朝外
// （小於 0）則以 v' = v − (1+damping)(v·n)n 反射。
func (c Corner) Resolve(ball *Ball, damping float64) bool {
	distance := c.SignedDistance(ball.Position())
	if distance >= ball.Radius {
		return false
	}

	n := c.Normal()
	penetration := ball.Radius - distance
	ball.X += n.X * penetration
	ball.Y += n.Y * penetration

	vn := ball.Velocity().Dot(n)
	if vn < 0 {
		ball.SpeedX -= (1 + damping) * vn * n.X
		ball.SpeedY -= (1 + damping) * vn * n.Y
	}
	return true
}

// ResolveCorners 依序檢查切角，只有第一個實際修正的切角生效。
// 返回生效切角的索引，沒有則為 -1。
func ResolveCorners(ball *Ball, corners []Corner, damping float64) int {
	for i, c := range corners {
		if !c.InRegion(ball.X, ball.Y) {
			continue
		}
		if c.Resolve(ball, damping) {
			return i
		}
	}
	return -1
}
