// Package siteops owns the "configured site -> authenticated SharePoint
// client" glue shared by the CLI (ls, whoami) and the mirror engine.
//
// SessionProvider caches token sources by auth identity so a long-running
// daemon reuses one token across runs, and rebuilds it when a config reload
// changes the credentials. Session wraps a pair of sharepoint.Client
// instances (metadata + transfer) and implements mirror.Store.
package siteops
