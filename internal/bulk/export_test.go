package bulk

import "time"

// SetPollInterval shortens the downloader's status poll for tests.
func SetPollInterval(d *Downloader, interval time.Duration) {
	d.pollInterval = interval
}
