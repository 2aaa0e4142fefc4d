// Package state keeps per-chat conversation sessions in memory.
// It knows nothing about Telegram or images beyond holding decoded bitmaps.
package state
