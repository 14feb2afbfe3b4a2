// Package ledger tracks which image URLs have already been downloaded into an
// output directory and hands out collision-free local filenames.
//
// One Ledger is opened per (engine, query) directory. Already-downloaded URLs
// are persisted in a plain-text record file (one URL per line) inside the
// directory, so a later run against the same directory skips them. Filenames
// reserved during a session never repeat, and names already on disk are never
// reused.
//
// A Ledger has a single writer: no two goroutines may share one instance, and
// no two processes should scrape into the same directory at once. Ledgers for
// different directories are fully independent.
//
// Usage:
//
//	led, err := ledger.Open(dir, "bing", log)
//	if err != nil {
//	    return err
//	}
//	defer led.Close()
//
//	if !led.IsKnown(url) {
//	    name := led.ReserveName(suggested, url, keepOriginal, contentType)
//	    // ... download and write the file ...
//	    led.Record(url)
//	}
package ledger
