// Package catalog queries a relay controller for the bulbs it serves.
//
// Every controller answers the /bulbs status path with its current bulb
// catalog. The query is throttle-exempt at the dispatch layer; this
// package only performs the exchange and parses the result. It never
// retries: retry and re-resolution policy live with the coordinator.
package catalog
