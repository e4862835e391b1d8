// Package toggle implements the state synchronization core: one shared
// on/off cell mutated from remote write requests and local console commands,
// an event dispatcher answering remote reads and writes, and the bootstrap
// sequencer that brings the peripheral from powered-off to advertising.
package toggle
