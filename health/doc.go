// Package health reports whether the node cache host is fit to serve.
//
// A Checker reports one component's Status: Healthy, Degraded, or Unhealthy.
// StoreChecker compares a cache store's occupancy against entry and byte
// budgets. An Aggregator runs every registered checker under one deadline and
// folds the results into an overall status, which Mount exposes over HTTP:
//
//	agg := health.NewAggregator()
//	agg.Register("store", health.NewStoreChecker(store, health.StoreCheckerConfig{
//	    MaxBytes: 256 << 20,
//	}))
//
//	r := chi.NewRouter()
//	health.Mount(r, agg)
package health
