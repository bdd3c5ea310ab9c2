package batch

import (
	"time"

	"stemsplit/internal/workunit"
)

// BatchInfo describes a batch that is about to process its items.
type BatchInfo struct {
	ID      string
	Source  string
	Started time.Time
	Items   []workunit.InputItem
}

// Observer receives batch progress. Calls are serialized by the Runner.
type Observer interface {
	BatchStarted(info BatchInfo)
	ItemStatus(item workunit.InputItem, status workunit.Status)
	ItemDone(entry Entry)
	BatchDone(report *Report)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) BatchStarted(BatchInfo)                         {}
func (NopObserver) ItemStatus(workunit.InputItem, workunit.Status) {}
func (NopObserver) ItemDone(Entry)                                 {}
func (NopObserver) BatchDone(*Report)                              {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) BatchStarted(info BatchInfo) {
	for _, obs := range o {
		obs.BatchStarted(info)
	}
}

func (o Observers) ItemStatus(item workunit.InputItem, status workunit.Status) {
	for _, obs := range o {
		obs.ItemStatus(item, status)
	}
}

func (o Observers) ItemDone(entry Entry) {
	for _, obs := range o {
		obs.ItemDone(entry)
	}
}

func (o Observers) BatchDone(report *Report) {
	for _, obs := range o {
		obs.BatchDone(report)
	}
}
