package packages

// Observer receives lifecycle events after the store has committed them.
// Events are emitted with no store lock held, so implementations may call the
// store's read methods (Stats, ListActive, Get) from inside a callback.
type Observer interface {
	PackageCreated(sub Subscription)
	PackageRenewed(sub Subscription, entry HistoryEntry)
	RenewalFailed(sub Subscription, err error)
	PackageExpired(sub Subscription)
	PackageCancelled(sub Subscription)
}

// Observers fans every event out to each element in order.
type Observers []Observer

func (o Observers) PackageCreated(sub Subscription) {
	for _, obs := range o {
		obs.PackageCreated(sub)
	}
}

func (o Observers) PackageRenewed(sub Subscription, entry HistoryEntry) {
	for _, obs := range o {
		obs.PackageRenewed(sub, entry)
	}
}

func (o Observers) RenewalFailed(sub Subscription, err error) {
	for _, obs := range o {
		obs.RenewalFailed(sub, err)
	}
}

func (o Observers) PackageExpired(sub Subscription) {
	for _, obs := range o {
		obs.PackageExpired(sub)
	}
}

func (o Observers) PackageCancelled(sub Subscription) {
	for _, obs := range o {
		obs.PackageCancelled(sub)
	}
}
