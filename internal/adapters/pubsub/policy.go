package pubsub

import "github.com/dkeye/Huddle/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a member whose send buffer is full.
type Policy interface {
	OnBackPressure(topic *Topic, member domain.UserID) BackpressureAction
}

// KickSlowPolicy evicts slow members; a missed signaling frame leaves their
// negotiations in an unknown state anyway.
type KickSlowPolicy struct{}

func (KickSlowPolicy) OnBackPressure(*Topic, domain.UserID) BackpressureAction {
	return KickMember
}

// TolerantPolicy drops the frame and keeps the member.
type TolerantPolicy struct{}

func (TolerantPolicy) OnBackPressure(*Topic, domain.UserID) BackpressureAction {
	return NoAction
}
