// Package health reports whether the diagram caches are serving well.
//
// A Checker reports a Result with a Status: Healthy, Degraded or
// Unhealthy. CacheChecker turns a cache's Stats into a Result, flagging
// caches that are nearly full or whose hit rate has collapsed. An
// Aggregator runs many checkers concurrently under one timeout and folds
// their results into an overall status.
//
//	agg := health.NewAggregator()
//	agg.Register("cache.diagrams", health.NewCacheChecker("cache.diagrams", diagrams, health.CacheCheckerConfig{}))
//
//	results := agg.CheckAll(ctx)
//	if agg.OverallStatus(results) != health.StatusHealthy {
//	    // page someone
//	}
package health
