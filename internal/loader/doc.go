// Package loader provides the partial loading engine: a resumable state
// machine that drains a slowly produced asynchronous sequence in bounded
// increments. Each Resume call returns after a time budget and/or an item
// budget is spent, while a background producer keeps filling the buffer
// between calls.
package loader
