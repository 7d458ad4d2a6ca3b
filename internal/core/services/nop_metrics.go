package services

import "time"

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) SubscriptionOpened(string)          {}
func (NopMetrics) SubscriptionClosed(string)          {}
func (NopMetrics) SubscriptionFailed(string)          {}
func (NopMetrics) AccessEvaluated(bool)               {}
func (NopMetrics) MessageAppended()                   {}
func (NopMetrics) MessageAppendFailed()               {}
func (NopMetrics) TokenRequested(bool, time.Duration) {}
func (NopMetrics) RoomCreated()                       {}
