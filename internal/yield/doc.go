// Package yield implements the hourly distribution scan: for every asset
// whose next distribution is due, it computes each holder's pro-rata
// share, either credits pending_yield or synthesises a primary-market
// buy fill (reinvestment), and records a Distribution ledger entry.
// Scheduling is github.com/robfig/cron/v3: Start registers Scan on the
// "@hourly" cron expression.
package yield
