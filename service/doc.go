// Package service owns a single order book and serializes every access
// to it. Around the book it journals commands, publishes trades,
// records metrics and takes snapshots.
package service
