// Package observatory composes the site, its devices and the scheduler
// into the single object the state handlers drive.
//
// Observatory owns device lifecycle (Initialize, PowerDown), target
// selection on top of the scheduler, and the multi-camera exposure that
// waits on every camera at once.
package observatory
