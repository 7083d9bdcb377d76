package main

import "os"

// FileStopCheck returns the stop-watcher poll for a filesystem marker. The
// marker's presence is the entire protocol: the launching shell creates it to
// request a stop and removes it afterwards; the core only ever checks
// existence. A stat failure other than not-exist reads as "keep running" so a
// transient filesystem hiccup cannot kill the broadcast.
func FileStopCheck(path string) func() bool {
	return func() bool {
		_, err := os.Stat(path)
		return err == nil
	}
}

// RequestStop creates the stop marker; convenience for callers and tests.
func RequestStop(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}
