// Package security decides what a viewer may read.
//
// A SecurityContext is bound to one viewer (subject) and evaluates Fact read
// access from the Fact's AccessMode, its ACL and the organization-scoped
// function grants held by the viewer. Denials are reported as errors by the
// Check* methods and as false by the Has* methods; the graph and retraction
// packages only consume the boolean form.
package security
