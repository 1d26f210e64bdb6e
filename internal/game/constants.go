package game

import "time"

// 比賽常數
//
// 這些數值決定玩法手感與客戶端顯示，修改任何一個都會破壞與既有客戶端的一致性。
const (
	FieldWidth  = 800.0
	FieldHeight = 600.0

	PlayerRadius = 20.0
	BallRadius   = 10.0

	GoalHeight = 200.0 // 球門垂直範圍
	GoalWidth  = 50.0  // 球門深度（距離左右邊界）
	CornerSize = 80.0  // 切角長度

	PlayerSpeed   = 5.0  // 每 tick 每軸位移
	KickSpeed     = 12.0 // 踢球初速
	BallFriction  = 0.89
	WallDamping   = 0.7
	CornerDamping = 0.7

	MatchDuration = 60 // 秒
	RoomCapacity  = 6

	TickRate      = 60 // Hz
	TimerInterval = time.Second
	GoalCooldown  = 500 * time.Millisecond

	SpawnOffset     = 100.0  // 出生點距離己方邊界
	OffField        = -100.0 // 比賽結束後把球員移出畫面
	MaxRoomIDLength = 32
)

// TickInterval 物理 tick 間隔
const TickInterval = time.Second / TickRate
