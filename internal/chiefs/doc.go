// Package chiefs holds the built-in domain controllers. Every chief
// follows the same shape: a priority-ordered decision cascade over a
// compact observation, a small action vocabulary declared as
// capabilities, and a reward derived purely from post-action context.
// Only the thresholds, feature names, and actions differ per domain.
package chiefs
