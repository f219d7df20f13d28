// Package observability builds the application logger and the HTTP access
// log middleware.
package observability
