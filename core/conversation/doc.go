// Package conversation drives the per-chat dialogue that collects a main
// image, a reference image and a label, then asks the compositor for the
// merged result. It knows nothing about Telegram: the transport converts
// updates into Events and delivers the returned Actions.
package conversation
