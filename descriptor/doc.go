// Package descriptor parses the WIT subset a guest uses to declare its
// imports and exports.
//
// A descriptor holds an optional package line, interfaces and exactly one
// world:
//
//	package example:convert;
//
//	interface host {
//		multiply: func(a: f32, b: f32) -> f32;
//	}
//
//	world convert {
//		import host;
//		export convert-celsius-to-fahrenheit: func(x: f32) -> f32;
//	}
//
// Each imported interface carries the core module name the guest imports it
// from (Interface.Module), and each export carries its core export name
// (Export.Name). Types are represented with go.bytecodealliance.org/wit.
package descriptor
