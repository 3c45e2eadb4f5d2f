// Package http translates between the external HTTP surface and the
// services layer. Handlers validate input at the boundary, delegate to a
// service and render the wire responses; no business logic lives here.
package http
