// Package physics 提供足球場的純數學運算：圓與圓碰撞、軸向牆反彈、
// 以及四個切角的有號距離碰撞。所有函式皆無隱藏狀態。
package physics

import "math"

// Point 二維座標
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add 向量相加
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Sub 向量相減
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Scale 純量乘法
func (p Point) Scale(k float64) Point { return Point{p.X * k, p.Y * k} }

// Dot 內積
func (p Point) Dot(q Point) float64 { return p.X*q.X + p.Y*q.Y }

// Len 向量長度
func (p Point) Len() float64 { return math.Hypot(p.X, p.Y) }

// Clamp 將 v 限制在 [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Ball 球的位置與速度，半徑固定
type Ball struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
	SpeedX float64 `json:"speedX"`
	SpeedY float64 `json:"speedY"`
}

// Position 球心座標
func (b *Ball) Position() Point { return Point{b.X, b.Y} }

// Velocity 速度向量
func (b *Ball) Velocity() Point { return Point{b.SpeedX, b.SpeedY} }

// Speed 速度大小
func (b *Ball) Speed() float64 { return math.Hypot(b.SpeedX, b.SpeedY) }

// Integrate 依速度前進一步
func (b *Ball) Integrate() {
	b.X += b.SpeedX
	b.Y += b.SpeedY
}

// ApplyFriction 指數衰減，與是否碰撞無關
func (b *Ball) ApplyFriction(friction float64) {
	b.SpeedX *= friction
	b.SpeedY *= friction
}
