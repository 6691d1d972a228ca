// Package imagecache resolves remote icon URLs into decoded preview bitmaps.
// Each URL flows through two tiers: a bounded in-memory LRU in front of a
// digest-verified disk store, with a per-key lock table so concurrent requests
// for the same URL trigger at most one download. Resolution is total from the
// caller's point of view; every failure degrades to a neutral placeholder
// bitmap instead of an error.
package imagecache
