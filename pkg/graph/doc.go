// Package graph projects the Object-Fact store into a read-only property graph.
//
// Objects become vertices and Facts become edges between the Objects they
// bind. Vertices and edges are derived on demand by an ElementFactory and kept
// in bounded caches; they are never written back to the store. A Graph is
// bound to one viewer through its AccessGate: Facts the viewer cannot read
// produce no edges.
//
// Edge identity is keyed by the ordered triplet (fact, in-vertex, out-vertex).
// The in-vertex is the origin of the relation and the out-vertex its
// destination, so a single Fact may project into several edges.
package graph
