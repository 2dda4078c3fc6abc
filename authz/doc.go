// Package authz provides the role-based authorization primitives for the
// reference-data portal.
//
// This package implements:
//   - The closed, ranked role set (READ_ONLY < STANDARD_USER < POWER_USER < ADMIN)
//   - The resource/action permission matrix with a fail-closed default
//   - Pure authorization predicates over a principal
//   - The requirement variants enforced by the request guard and view gate
//
// Everything here is immutable after process start and safe for concurrent use.
package authz
