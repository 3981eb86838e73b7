// Package seedsignals generates and replays synthetic signal streams
// for manual end-to-end checks against a running instance.
package seedsignals

import "time"

// Config controls a seeding run.
type Config struct {
	BaseURL  string
	Entities int
	Days     int
	Workers  int
	Timeout  time.Duration
	Seed     int64
	Verify   bool
}
