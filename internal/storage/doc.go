// Package storage persists the last observed search total.
//
// Besides the total it keeps:
//   - Cycle history (one record per completed cycle)
//   - Notifier dedup state (to survive restarts)
package storage
