// Package afli implements a concurrent, updatable learned index: a tree of
// fitted linear models over sorted keys, with conflicted positions resolved
// into small buckets or aggregated child subtrees, an optional
// numerical-flow key remap chosen automatically at bulk-load time, and
// background rebuilds handed off to a worker pool so that readers and
// writers elsewhere in the tree are never blocked by a single bucket
// overflowing.
//
// Ported from the AFLI/NFLPara learned-index design: build a model over the
// whole keyspace once, then keep it correct under insertion by rebuilding
// only the conflicted subtree that overflowed, not the whole structure.
package afli
