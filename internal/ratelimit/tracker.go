// Package ratelimit 维护后端与模型的滚动用量计数。
// 内存缓存为准，异步镜像到持久层；镜像失败只记日志，不影响请求路径。
package ratelimit

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"llmgateway/internal/model"
	"llmgateway/internal/repository"
)

// Outcome 一次补全尝试的结果，成功失败都消耗配额
type Outcome struct {
	BackendID string
	ModelID   string
	Success   bool
	Tokens    int64
}

// counter 单个实体的内存计数
type counter struct {
	requestsToday      int64
	requestsThisMinute int64
	lastRequestAt      time.Time
	minuteWindowStart  time.Time
	dayWindowStart     time.Time
	totalTokens        int64
	totalCalls         int64
	totalSuccesses     int64
	totalFailures      int64
}

type Tracker struct {
	mu       sync.Mutex
	counters map[string]*counter

	repo       repository.UsageRepositoryInterface
	mirrorChan chan *model.Usage
	stopChan   chan struct{}
	wg         sync.WaitGroup
	stopped    bool
	stopMu     sync.Mutex

	// now 可注入，便于测试窗口滚动
	now func() time.Time
}

func NewTracker(repo repository.UsageRepositoryInterface) *Tracker {
	t := &Tracker{
		counters:   make(map[string]*counter),
		repo:       repo,
		mirrorChan: make(chan *model.Usage, 4096),
		stopChan:   make(chan struct{}),
		now:        time.Now,
	}
	t.wg.Add(1)
	go t.runMirror()
	return t
}

func counterKey(entityType model.EntityType, entityID string) string {
	return string(entityType) + ":" + entityID
}

// Rehydrate 进程启动时从持久层恢复缓存
// 恢复失败时从零开始：少计比多计安全，不会错误拒绝服务
func (t *Tracker) Rehydrate() {
	usages, err := t.repo.List()
	if err != nil {
		log.Warnf("tracker: failed to rehydrate usage counters, starting from zero: %v", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, u := range usages {
		c := &counter{
			requestsToday:      u.RequestsToday,
			requestsThisMinute: u.RequestsThisMinute,
			minuteWindowStart:  u.MinuteWindowStart,
			dayWindowStart:     u.DayWindowStart,
			totalTokens:        u.TotalTokens,
			totalCalls:         u.TotalCalls,
			totalSuccesses:     u.TotalSuccesses,
			totalFailures:      u.TotalFailures,
		}
		if u.LastRequestAt != nil {
			c.lastRequestAt = *u.LastRequestAt
		}
		t.counters[counterKey(u.EntityType, u.EntityID)] = c
	}
	log.Infof("tracker: rehydrated %d usage counters", len(usages))
}

// rollWindows 惰性滚动分钟窗和日窗，调用方需持有锁
func (t *Tracker) rollWindows(c *counter, now time.Time) {
	if c.minuteWindowStart.IsZero() || now.Sub(c.minuteWindowStart) >= time.Minute {
		c.minuteWindowStart = now
		c.requestsThisMinute = 0
	}
	midnight := model.UTCMidnight(now)
	if c.dayWindowStart.Before(midnight) {
		c.dayWindowStart = midnight
		c.requestsToday = 0
	}
}

func (t *Tracker) getCounter(key string, now time.Time) *counter {
	c, ok := t.counters[key]
	if !ok {
		c = &counter{
			minuteWindowStart: now,
			dayWindowStart:    model.UTCMidnight(now),
		}
		t.counters[key] = c
	}
	return c
}

// CanUse 准入检查：已达到任一配置上限则拒绝，nil 表示无限制
func (t *Tracker) CanUse(entityType model.EntityType, entityID string, rpmLimit, rpdLimit *int) bool {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.getCounter(counterKey(entityType, entityID), now)
	t.rollWindows(c, now)

	if rpmLimit != nil && c.requestsThisMinute >= int64(*rpmLimit) {
		return false
	}
	if rpdLimit != nil && c.requestsToday >= int64(*rpdLimit) {
		return false
	}
	return true
}

// Track 记录一次尝试：后端与模型计数无条件同时递增
func (t *Tracker) Track(o Outcome) {
	now := t.now()

	t.mu.Lock()
	snapshots := []*model.Usage{
		t.trackEntity(model.EntityBackend, o.BackendID, o, now),
		t.trackEntity(model.EntityModel, o.ModelID, o, now),
	}
	t.mu.Unlock()

	for _, snapshot := range snapshots {
		t.enqueueMirror(snapshot)
	}
}

func (t *Tracker) trackEntity(entityType model.EntityType, entityID string, o Outcome, now time.Time) *model.Usage {
	c := t.getCounter(counterKey(entityType, entityID), now)
	t.rollWindows(c, now)

	c.requestsThisMinute++
	c.requestsToday++
	c.lastRequestAt = now
	c.totalTokens += o.Tokens
	c.totalCalls++
	if o.Success {
		c.totalSuccesses++
	} else {
		c.totalFailures++
	}

	last := c.lastRequestAt
	return &model.Usage{
		EntityType:         entityType,
		EntityID:           entityID,
		RequestsToday:      c.requestsToday,
		RequestsThisMinute: c.requestsThisMinute,
		LastRequestAt:      &last,
		MinuteWindowStart:  c.minuteWindowStart,
		DayWindowStart:     c.dayWindowStart,
		TotalTokens:        c.totalTokens,
		TotalCalls:         c.totalCalls,
		TotalSuccesses:     c.totalSuccesses,
		TotalFailures:      c.totalFailures,
	}
}

// enqueueMirror 非阻塞入队，队列满时丢弃并告警
func (t *Tracker) enqueueMirror(snapshot *model.Usage) {
	t.stopMu.Lock()
	if t.stopped {
		t.stopMu.Unlock()
		return
	}
	t.stopMu.Unlock()

	select {
	case t.mirrorChan <- snapshot:
	default:
		log.Warn("tracker: mirror queue full, dropping usage snapshot")
	}
}

// ResetDailyCounters 日重置清扫，由外部调度器触发
// 清零所有日窗口已过期的计数，缓存与持久层都处理
func (t *Tracker) ResetDailyCounters() {
	midnight := model.UTCMidnight(t.now())

	t.mu.Lock()
	reset := 0
	for _, c := range t.counters {
		if c.dayWindowStart.Before(midnight) {
			c.dayWindowStart = midnight
			c.requestsToday = 0
			reset++
		}
	}
	t.mu.Unlock()

	if err := t.repo.ResetDailyBefore(midnight); err != nil {
		log.Errorf("tracker: failed to reset daily counters in store: %v", err)
	}
	if reset > 0 {
		log.Infof("tracker: reset %d daily counters", reset)
	}
}

// Usage 返回某实体的当前缓存计数快照，不存在返回 nil
func (t *Tracker) Usage(entityType model.EntityType, entityID string) *model.Usage {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.counters[counterKey(entityType, entityID)]
	if !ok {
		return nil
	}
	var last *time.Time
	if !c.lastRequestAt.IsZero() {
		l := c.lastRequestAt
		last = &l
	}
	return &model.Usage{
		EntityType:         entityType,
		EntityID:           entityID,
		RequestsToday:      c.requestsToday,
		RequestsThisMinute: c.requestsThisMinute,
		LastRequestAt:      last,
		MinuteWindowStart:  c.minuteWindowStart,
		DayWindowStart:     c.dayWindowStart,
		TotalTokens:        c.totalTokens,
		TotalCalls:         c.totalCalls,
		TotalSuccesses:     c.totalSuccesses,
		TotalFailures:      c.totalFailures,
	}
}

// Stop 停止镜像协程并刷完队列中剩余的快照
func (t *Tracker) Stop() {
	t.stopMu.Lock()
	if t.stopped {
		t.stopMu.Unlock()
		return
	}
	t.stopped = true
	t.stopMu.Unlock()

	close(t.stopChan)
	t.wg.Wait()
}

// runMirror 后台镜像循环
func (t *Tracker) runMirror() {
	defer t.wg.Done()

	for {
		select {
		case snapshot := <-t.mirrorChan:
			t.mirror(snapshot)
		case <-t.stopChan:
			// 处理剩余快照
			for {
				select {
				case snapshot := <-t.mirrorChan:
					t.mirror(snapshot)
				default:
					return
				}
			}
		}
	}
}

func (t *Tracker) mirror(snapshot *model.Usage) {
	if err := t.repo.Upsert(snapshot); err != nil {
		log.Errorf("tracker: failed to mirror usage for %s %s: %v", snapshot.EntityType, snapshot.EntityID, err)
	}
}
