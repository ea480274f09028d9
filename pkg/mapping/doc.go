// Package mapping defines the compiled, immutable model of a leapmap
// configuration: mapped statements, result maps, parameter mappings, the
// per-invocation BoundSQL and the Configuration that owns them all.
//
// Values in this package are created by the builder package and are safe for
// concurrent reads once Configuration.Freeze has been called.
package mapping
