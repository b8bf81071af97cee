// Package retraction decides whether a Fact is retracted from one viewer's
// point of view.
//
// A Fact is retracted when a visible, non-retracted Retraction Fact refers to
// it. Retractions can themselves be retracted, so the verdict alternates
// with the depth of the retraction chain. A Resolver memoizes verdicts for
// one request and must not be shared between viewers.
package retraction
