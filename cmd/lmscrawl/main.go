// Package main provides the entry point for the lmscrawl CLI.
//
// lmscrawl archives semester catalogs, course pages, and user profiles from
// the HCMUT learning-management portal by following links between them,
// saving each page once and emitting the relationship data as JSON.
//
// Usage:
//
//	lmscrawl crawl --cookie <session-cookie>
//	lmscrawl crawl --min-user-id 1 --max-user-id 50000
//	lmscrawl search --dataset courses "giai tich"
//
// See --help for all available options.
package main

// main is the entry point for lmscrawl.
func main() {
	Execute()
}
