// Package vm implements instance-variable storage for guest-language
// objects.
//
// This package contains:
//   - NaN-boxed value representation and the heap behind reference values
//   - Per-class shapes mapping variable names to stable accessors
//   - Per-object attribute tables and three interchangeable concurrency
//     strategies for growing and updating them
//   - Field-backed accessors for classes reified onto Go structs
//   - Identity numbers, bulk copy, presence queries and name/value
//     enumeration
package vm
