// Command server 是多房間 2D 足球遊戲的權威伺服器。
//
// 伺服器以固定頻率（預設 60Hz）推進每個房間的物理模擬，
// 並透過 WebSocket 把狀態推送給房間內的所有玩家。
//
// 房間
//
// 每個房間最多 6 名玩家，紅藍兩隊。玩家加入時自動分配到人數較少的隊伍，
// 兩隊都有人時比賽開始，比賽時間預設 60 秒，時間到後進入等待重賽狀態，
// 所有人都按下重賽後開始新的一局。
//
// # WebSocket 通訊
//
// 連線時以 query 指定房間與名稱：
//
//	ws://localhost:8080/ws?room=arena&name=Alice
//
// 伺服器的訊息格式為 {"event": "...", "data": {...}}，
// 客戶端送出的訊息格式為 {"type": "...", "data": {...}}：
//
//	{"type": "input", "data": {"left": false, "right": true, "up": false, "down": false}}
//	{"type": "requestRestart"}
//
// 查詢 API
//
//   - GET /api/v1/rooms：房間列表
//   - GET /api/v1/rooms/{room_id}：房間快照
//   - GET /api/v1/ranking：排行榜（需要 Redis）
//   - GET /api/v1/matches：最近的比賽（需要 PostgreSQL）
//   - GET /api/v1/players/{name}：球員戰績（需要 PostgreSQL）
//   - GET /health、GET /stats
//
// 配置選項
//
// 配置來源依序為預設值、YAML 配置檔、環境變數（SOCCER_PORT、DATABASE_URL、
// REDIS_ADDR、NATS_URL）、命令行參數：
//   - -config：配置檔路徑
//   - -port：服務監聽端口（預設 8080）
//   - -log-level：日誌級別（debug/info/warn/error）
//   - -log-format：日誌格式（text/json）
//
// NATS、Redis、PostgreSQL 都是選用的，未啟用時遊戲本身照常運作。
package main
