// Package cache provides a hierarchical, incrementally populated view-model
// cache that sits between a slow tree source (for example a debugger's
// process, thread and stack frame tree) and a presentation layer that keeps
// asking for slices of that tree while the target keeps changing.
//
// Design
//
//   - Keys: an entry is identified by (root, node, input, path). The root is
//     the first attached root equal to the input or found on the path; it
//     anchors a region that is flushed as one unit. Keys are hashed with
//     xxhash and compared component-wise.
//
//   - Storage: an arena of slots addressed by integer handles, threaded on a
//     circular MRU↔LRU list. Slots are data entries, flush markers or root
//     markers; all of them count toward Capacity and the least recently used
//     slot is evicted first. Removing a root marker reports the root as
//     cleared (Options.OnRootCleared).
//
//   - Policies: the active update policy (package policy) turns a change
//     event into a tester. A flush walks the list from MRU to LRU applying
//     the tester's flags (flush, archive, dirty, drop properties) to the
//     entries of one root, and stops early at a flush marker whose tester
//     already covers the new one.
//
//   - Fetching: hits are answered under the lock. Misses become sub-requests
//     to the source running on their own goroutines; identical concurrent
//     misses share one sub-request. Each sub-request carries a ticket (slot,
//     generation, flush version) and writes back only if the entry was not
//     flushed or evicted meanwhile. The caller always gets the fetched data.
//
//   - Children: cached indices are served at once, each maximal run of
//     missing indices costs one sub-request, and all runs are awaited
//     together. A zero element in a source result is a gap: not cached, not
//     returned.
//
//   - Properties: requests are batched per node. Keys the source does not
//     return are cached as Unknown so that the next identical request is a
//     hit. "is_changed.<name>" keys compare against the archive kept by the
//     last archiving flush.
//
//   - Metrics: Options.Metrics receives Hit/Miss/SourceCall/StaleWrite/
//     Evict/Flush/Size signals. By default NoopMetrics is used; package
//     metrics/prom exports them to Prometheus.
//
// Basic usage
//
//	c := cache.New[string](cache.Options[string]{
//	    Policies: []policy.Policy[string]{automatic.New[string](), manual.New[string]()},
//	})
//	defer c.Close()
//	c.AttachRoot("session")
//
//	req := cache.Request[string]{Node: threads, Input: "session", Path: policy.Path[string]{"proc-1"}}
//	n, err := c.ChildCount(ctx, req)
//	kids, err := c.Children(ctx, cache.ChildrenRequest[string]{Request: req, Offset: 0, Length: n})
//
//	// the target resumed: flush according to the active policy
//	c.NotifyEvent(resumed)
//
// Cancellation
//
// A caller whose context is cancelled gets ctx.Err(); the sub-request keeps
// running under the cache's own context and its result is still merged.
// Close cancels that context and waits for running sub-requests.
package cache
