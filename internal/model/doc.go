// Package model defines the domain types shared across the service.
//
// Types here mirror what the trading gateway reports on the wire
// (bars, quotes, account rows) plus the JSON shapes the HTTP facade
// returns. Packages communicate with these types, never with raw
// wire frames.
package model
