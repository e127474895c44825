// Package model defines the domain types shared across the notifier core:
// subscriptions with their filter fields, canonical operations extracted from
// ledger transactions, fan-out notifications, and asset normalization rules.
package model
