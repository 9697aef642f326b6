// Package value defines the payload carried between plugin nodes, through the
// host's cache store and through lifecycle hook parameters.
//
// Value is a closed set of variants. Each variant reports its Kind, and the
// wire form shared by host and plugin is a JSON envelope:
//
//	{"type":"Float","data":1.5}
//	{"type":"None"}
//
// Marshal and Unmarshal are the only sanctioned way to cross that boundary.
package value
