package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"turing-trap-be/internal/service/dto"
	"turing-trap-be/internal/service/game"

	"go.uber.org/zap"
)

type RoomService struct {
	mu sync.RWMutex

	// 从房间 ID 到房间状态机的映射
	rooms map[string]*game.GameMachine
	deps  game.Deps

	cleanUpDone chan struct{}
	closeOnce   sync.Once
}

func NewRoomService(deps game.Deps) *RoomService {
	rs := newRoomService(deps)

	// 启动一个 goroutine 定期清理无人的房间
	go rs.startCleanupLoop(time.Minute)

	return rs
}

func newRoomService(deps game.Deps) *RoomService {
	rs := &RoomService{
		rooms:       make(map[string]*game.GameMachine),
		cleanUpDone: make(chan struct{}),
	}

	deps.Releaser = rs
	rs.deps = deps

	return rs
}

func (rs *RoomService) now() time.Time {
	if rs.deps.Clock != nil {
		return rs.deps.Clock()
	}

	return time.Now()
}

func (rs *RoomService) startCleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rs.cleanUpDone:
			return

		case <-ticker.C:
			rs.sweep()
		}
	}
}

// sweep 回收超过保留时长仍没有真人的房间，返回回收的数量
func (rs *RoomService) sweep() int {
	now := rs.now()

	removed := 0
	for _, roomID := range rs.roomIDs() {
		stale := rs.removeIf(roomID, func(gm *game.GameMachine) bool {
			return isRoomStale(gm, now)
		})
		if stale {
			zap.S().Infof("房间 %s 长时间无人，已清理", roomID)
			removed++
		}
	}

	return removed
}

func (rs *RoomService) Close() {
	rs.closeOnce.Do(func() {
		close(rs.cleanUpDone)

		rs.mu.Lock()
		machines := make([]*game.GameMachine, 0, len(rs.rooms))
		for roomID, gm := range rs.rooms {
			machines = append(machines, gm)
			delete(rs.rooms, roomID)
		}
		rs.mu.Unlock()

		for _, gm := range machines {
			gm.Stop()
		}
	})
}

// createLocked 要求调用方持有写锁
func (rs *RoomService) createLocked(roomID string) *game.GameMachine {
	gm := game.NewGameMachine(roomID, rs.deps)
	rs.rooms[roomID] = gm

	go gm.Start()

	return gm
}

func (rs *RoomService) CreateRoom(roomID string) error {
	id, err := NormalizeRoomID(roomID)
	if err != nil {
		return err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if _, ok := rs.rooms[id]; ok {
		return fmt.Errorf("room %s: %w", id, game.ErrAlreadyExists)
	}

	rs.createLocked(id)

	zap.S().Infof("房间 %s 已创建", id)

	return nil
}

func (rs *RoomService) GetRoom(roomID string) (*game.GameMachine, error) {
	id := strings.TrimSpace(roomID)

	rs.mu.RLock()
	defer rs.mu.RUnlock()

	gm, ok := rs.rooms[id]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", id, game.ErrNotFound)
	}

	return gm, nil
}

// getOrCreate 在 create 为真时创建房间，房间已存在则返回 ErrAlreadyExists；
// create 为假时只查找已有房间
func (rs *RoomService) getOrCreate(roomID string, create bool) (*game.GameMachine, error) {
	id, err := NormalizeRoomID(roomID)
	if err != nil {
		return nil, err
	}

	if !create {
		return rs.GetRoom(id)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if _, ok := rs.rooms[id]; ok {
		return nil, fmt.Errorf("room %s: %w", id, game.ErrAlreadyExists)
	}

	zap.S().Infof("房间 %s 随首个玩家加入而创建", id)

	return rs.createLocked(id), nil
}

// JoinRoom 把加入请求送入房间，加入结果通过 req.RespCh 异步返回
func (rs *RoomService) JoinRoom(ctx context.Context, playerID string, req *game.JoinRoomRequest) (*game.GameMachine, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: missing join request", game.ErrInvalidRequest)
	}

	gm, err := rs.getOrCreate(req.RoomID, req.Create)
	if err != nil {
		return nil, err
	}

	wrapper := game.RequestWrapper{
		ReqType:    game.REQ_JOIN_ROOM,
		PlayerID:   playerID,
		NativeData: req,
	}

	if err := gm.Submit(ctx, wrapper); err != nil {
		zap.S().Warnf("房间 %s 无法接收加入请求：%v", gm.RoomID(), err)
		return nil, err
	}

	return gm, nil
}

// RemoveIfEmpty 在房间没有真人时移除并停止房间，返回是否移除
func (rs *RoomService) RemoveIfEmpty(roomID string) bool {
	removed := rs.removeIf(roomID, func(gm *game.GameMachine) bool {
		return gm.HumanCount() == 0
	})
	if removed {
		zap.S().Infof("房间 %s 无人，已移除", roomID)
	}

	return removed
}

// removeIf 持锁检查条件并移除房间，状态机在锁外停止
func (rs *RoomService) removeIf(roomID string, cond func(gm *game.GameMachine) bool) bool {
	rs.mu.Lock()

	gm, ok := rs.rooms[roomID]
	if !ok || !cond(gm) {
		rs.mu.Unlock()
		return false
	}

	delete(rs.rooms, roomID)
	rs.mu.Unlock()

	gm.Stop()

	return true
}

func (rs *RoomService) roomIDs() []string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	ids := make([]string, 0, len(rs.rooms))
	for roomID := range rs.rooms {
		ids = append(ids, roomID)
	}

	return ids
}

// Release 由房间状态机在自身结束时调用，只移除仍指向该状态机的条目
func (rs *RoomService) Release(roomID string, gm *game.GameMachine) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if current, ok := rs.rooms[roomID]; ok && current == gm {
		delete(rs.rooms, roomID)
		zap.S().Infof("房间 %s 已释放", roomID)
	}
}

// CloseRoom 先从注册表移除房间，再通知房间广播原因并断开所有连接
func (rs *RoomService) CloseRoom(ctx context.Context, roomID, reason string) error {
	rs.mu.Lock()

	gm, ok := rs.rooms[roomID]
	if ok {
		delete(rs.rooms, roomID)
	}

	rs.mu.Unlock()

	if !ok {
		return fmt.Errorf("room %s: %w", roomID, game.ErrNotFound)
	}

	if reason == "" {
		reason = dto.DEFAULT_ADMIN_CLOSE_REASON
	}

	req := game.RequestWrapper{
		ReqType:    game.REQ_CLOSE_ROOM,
		NativeData: &game.CloseRoomRequest{Reason: reason},
	}

	if err := gm.Submit(ctx, req); err != nil {
		zap.S().Warnf("房间 %s 无法接收关闭请求，直接停止：%v", roomID, err)
		gm.Stop()
	}

	zap.S().Infof("房间 %s 已被关闭：%s", roomID, reason)

	return nil
}

func (rs *RoomService) KickPlayer(ctx context.Context, roomID, playerID string) error {
	gm, err := rs.GetRoom(roomID)
	if err != nil {
		return err
	}

	reply := make(chan error, 1)

	req := game.RequestWrapper{
		ReqType:    game.REQ_KICK_PLAYER,
		NativeData: &game.KickPlayerRequest{TargetID: playerID, Reply: reply},
	}

	if err := gm.Submit(ctx, req); err != nil {
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-gm.Done():
		// 踢出最后一个真人时房间会随之结束，回复可能与结束信号同时就绪
		select {
		case err := <-reply:
			return err
		default:
			return game.ErrRoomClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rs *RoomService) RoomCount() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	return len(rs.rooms)
}

func (rs *RoomService) machines() []*game.GameMachine {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	machines := make([]*game.GameMachine, 0, len(rs.rooms))
	for _, gm := range rs.rooms {
		machines = append(machines, gm)
	}

	return machines
}

// Snapshots 按房间 ID 排序返回所有仍在运行的房间快照
func (rs *RoomService) Snapshots(ctx context.Context) []dto.RoomSnapshot {
	snapshots := make([]dto.RoomSnapshot, 0)

	for _, gm := range rs.machines() {
		snap, err := gm.Query(ctx)
		if err != nil {
			zap.S().Debugf("房间 %s 快照获取失败：%v", gm.RoomID(), err)
			continue
		}

		snapshots = append(snapshots, snap)
	}

	slices.SortFunc(snapshots, func(a, b dto.RoomSnapshot) int {
		return strings.Compare(a.ID, b.ID)
	})

	return snapshots
}
