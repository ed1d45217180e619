// Package source holds the named data sources that sessions can be started
// against, along with the parameters each factory accepts.
package source
