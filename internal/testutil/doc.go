// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing core model objects (workflows,
// runs, scheduled tasks) and scripting agent behavior. These helpers are
// intentionally minimal. They are not intended for production usage.
package testutil
