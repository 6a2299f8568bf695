package notify

import (
	"dashboard_sync/internal/core"
)

// Presenter renders a notification the instant it is created. The toast
// layer of the dashboard is one implementation; tests register their own.
type Presenter interface {
	Present(n Notification)
	Name() string
}

// presenterSet fans a notification out to every registered presenter. A
// presenter that panics is logged and skipped; presentation failures never
// reach the store's caller.
type presenterSet struct {
	logger     core.ILogger
	presenters []Presenter
}

func (ps *presenterSet) add(p Presenter) {
	ps.presenters = append(ps.presenters, p)
	ps.logger.Info("registered presenter", "name", p.Name())
}

func (ps *presenterSet) snapshot() presenterSet {
	return presenterSet{
		logger:     ps.logger,
		presenters: append([]Presenter(nil), ps.presenters...),
	}
}

func (ps presenterSet) present(n Notification) {
	for _, p := range ps.presenters {
		ps.presentOne(p, n)
	}
}

func (ps presenterSet) presentOne(p Presenter, n Notification) {
	defer func() {
		if rec := recover(); rec != nil {
			ps.logger.Error("presenter panicked", "presenter", p.Name(), "panic", rec)
		}
	}()
	p.Present(n)
}

// LogPresenter writes notifications to the structured log. It is the default
// presenter when the UI toast layer is not attached.
type LogPresenter struct {
	Logger core.ILogger
}

func (lp *LogPresenter) Name() string { return "log" }

func (lp *LogPresenter) Present(n Notification) {
	lp.Logger.Info("notification",
		"id", n.ID,
		"type", string(n.Type),
		"title", n.Title,
		"message", n.Message,
	)
}
