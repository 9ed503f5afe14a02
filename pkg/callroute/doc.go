// Package callroute sets up and tears down the audio path of a hands-free
// call.
//
// A call needs three streams besides the primary output: the hands-free
// output (to the phone), the hands-free input (from the phone) relayed
// into the primary output, and the microphone relayed into the hands-free
// output. The Coordinator opens all three, waits until each has opened its
// hardware, and only then starts the relays. If any stream fails to become
// ready in time the attempt unwinds completely.
//
//	Idle -> OpeningStreams -> WaitingReady -> Active -> Closing -> Idle
package callroute
