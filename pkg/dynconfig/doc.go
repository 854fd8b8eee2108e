// Package dynconfig resolves configuration values that can change while the
// process runs.
//
// A DynamicSource answers only for property names registered in its
// PropertyIndex and reads the current value from a Storage on every lookup;
// it keeps no copy. It has a very high ordinal (450) so that, inside a
// Sources aggregate, it wins over environment (300) and file (250) sources.
// Names it does not claim fall through to lower-ordinal sources.
//
// Storage implementations live in pkg/storage/memory and
// pkg/storage/postgres.
package dynconfig
