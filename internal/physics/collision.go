package physics

import "math"

// PushOutFactor 碰撞時球被推出的倍率（多推 10% 避免黏住）
const PushOutFactor = 1.1

// Kick 處理球員與球的圓形碰撞。
//
// 球心距離小於兩半徑和即視為接觸：球沿接觸法線推出 overlap×1.1，
// 速度直接覆寫為 kickSpeed·n 加上球員當下速度（不累加）。
// 兩圓心重合時 atan2(0,0)=0，法線固定為 +X。
func Kick(b *Ball, player Point, playerRadius float64, playerVelocity Point, kickSpeed float64) bool {
	dx := b.X - player.X
	dy := b.Y - player.Y
	distance := math.Hypot(dx, dy)
	reach := playerRadius + b.Radius

	if distance >= reach {
		return false
	}

	angle := math.Atan2(dy, dx)
	nx, ny := math.Cos(angle), math.Sin(angle)
	overlap := reach - distance

	b.X += nx * overlap * PushOutFactor
	b.Y += ny * overlap * PushOutFactor

	b.SpeedX = nx*kickSpeed + playerVelocity.X
	b.SpeedY = ny*kickSpeed + playerVelocity.Y
	return true
}

// ReflectWalls 處理四面牆的軸向反彈。
//
// 球心離邊界不足一個半徑時，法向速度乘上 -damping，位置夾回合法範圍。
// 返回是否撞到左右牆、上下牆。
func ReflectWalls(b *Ball, width, height, damping float64) (hitX, hitY bool) {
	r := b.Radius

	if b.X < r || b.X > width-r {
		b.SpeedX *= -damping
		b.X = Clamp(b.X, r, width-r)
		hitX = true
	}

	if b.Y < r || b.Y > height-r {
		b.SpeedY *= -damping
		b.Y = Clamp(b.Y, r, height-r)
		hitY = true
	}

	return hitX, hitY
}
