package service

import (
	"image"
	"sync"
	"time"
)

// sessionProctorState 单个会话的内存监考状态。帧间运动估计和周期性
// 留痕节流都只依赖本进程内的上一帧，不落库。
type sessionProctorState struct {
	mu               sync.Mutex
	lastFrame        *image.Gray
	lastPeriodicSave time.Time
	lastSeen         time.Time
}

// ProctorStateArena 按会话维护监考内存状态，带空闲回收
type ProctorStateArena struct {
	mu       sync.RWMutex
	sessions map[uint]*sessionProctorState
	now      func() time.Time
}

func NewProctorStateArena() *ProctorStateArena {
	return &ProctorStateArena{
		sessions: make(map[uint]*sessionProctorState),
		now:      time.Now,
	}
}

func (a *ProctorStateArena) get(sessionID uint) *sessionProctorState {
	a.mu.RLock()
	state, ok := a.sessions[sessionID]
	a.mu.RUnlock()
	if ok {
		return state
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if state, ok = a.sessions[sessionID]; ok {
		return state
	}
	state = &sessionProctorState{lastSeen: a.now()}
	a.sessions[sessionID] = state
	return state
}

// Evict 会话结束时释放其内存状态
func (a *ProctorStateArena) Evict(sessionID uint) {
	a.mu.Lock()
	delete(a.sessions, sessionID)
	a.mu.Unlock()
}

// EvictIdle 清理超过 ttl 未收到帧的会话状态，由定时任务调用
func (a *ProctorStateArena) EvictIdle(ttl time.Duration) int {
	cutoff := a.now().Add(-ttl)
	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for id, state := range a.sessions {
		state.mu.Lock()
		idle := state.lastSeen.Before(cutoff)
		state.mu.Unlock()
		if idle {
			delete(a.sessions, id)
			removed++
		}
	}
	return removed
}

func (a *ProctorStateArena) Size() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.sessions)
}
