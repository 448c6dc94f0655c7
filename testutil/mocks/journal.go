package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/fedflow/session"
)

// RecordingJournal 记录所有阶段迁移
type RecordingJournal struct {
	mu          sync.Mutex
	transitions []session.Transition
	err         error
}

// NewRecordingJournal 创建空的 RecordingJournal
func NewRecordingJournal() *RecordingJournal {
	return &RecordingJournal{}
}

// WithError 让 RecordTransition 返回错误
func (j *RecordingJournal) WithError(err error) *RecordingJournal {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.err = err
	return j
}

// RecordTransition 实现 session.Journal
func (j *RecordingJournal) RecordTransition(_ context.Context, t session.Transition) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.transitions = append(j.transitions, t)
	return j.err
}

// Phases 返回按顺序进入的阶段
func (j *RecordingJournal) Phases() []session.Phase {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]session.Phase, 0, len(j.transitions))
	for _, t := range j.transitions {
		out = append(out, t.To)
	}
	return out
}

// Transitions 返回全部记录
func (j *RecordingJournal) Transitions() []session.Transition {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]session.Transition(nil), j.transitions...)
}

// RecordingObserver 记录会话指标调用
type RecordingObserver struct {
	mu          sync.Mutex
	Ticks       int
	Transitions []string
	Inbound     int
	Outbound    []string
	Barrier     [2]int
	Failures    []string
}

// NewRecordingObserver 创建空的 RecordingObserver
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{}
}

func (o *RecordingObserver) ObserveTick(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Ticks++
}

func (o *RecordingObserver) ObserveTransition(from, to string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Transitions = append(o.Transitions, from+"->"+to)
}

func (o *RecordingObserver) ObserveInbound(int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Inbound++
}

func (o *RecordingObserver) ObserveOutbound(kind string, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Outbound = append(o.Outbound, kind)
}

func (o *RecordingObserver) ObserveBarrier(have, need int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Barrier = [2]int{have, need}
}

func (o *RecordingObserver) ObserveFailure(code string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Failures = append(o.Failures, code)
}

// Snapshot 返回当前记录的副本
func (o *RecordingObserver) Snapshot() RecordingObserver {
	o.mu.Lock()
	defer o.mu.Unlock()
	return RecordingObserver{
		Ticks:       o.Ticks,
		Transitions: append([]string(nil), o.Transitions...),
		Inbound:     o.Inbound,
		Outbound:    append([]string(nil), o.Outbound...),
		Barrier:     o.Barrier,
		Failures:    append([]string(nil), o.Failures...),
	}
}

var (
	_ session.Journal  = (*RecordingJournal)(nil)
	_ session.Observer = (*RecordingObserver)(nil)
)
