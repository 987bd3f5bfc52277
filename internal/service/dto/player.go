package dto

// 对房间内所有人公开的玩家信息，任何阶段都不包含私密日志
// 机器人席位在这里与真人完全一致
type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Character string `json:"character"`
}

// 档案里的公开名单只暴露 ID 与角色名
type RosterEntry struct {
	ID        string `json:"id"`
	Character string `json:"character"`
}
