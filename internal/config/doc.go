// Package config defines the format-agnostic build definition model: an
// ordered list of segments, each a partial configuration fragment, along
// with the Loader interface that produces them.
//
// Segments are read-only inputs. The plan package folds them, in order, into
// one immutable execution plan. Concrete loaders, such as the HCL one, live
// in separate packages.
package config
