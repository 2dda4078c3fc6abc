// Package observability builds the process logger and the request logging
// middleware. All components receive the *zap.Logger built here.
package observability
