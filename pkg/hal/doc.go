// Package hal is the audio device of the head unit: it negotiates stream
// formats, opens output and input streams on the right PCM endpoints, keeps
// one shared mixer per playback device and drives the hands-free call path.
//
// Outputs addressed to a bus share the default playback device through a
// mixer.Registry. The hands-free (SCO) output gets a private mixer on the
// hands-free card. Inputs read the built-in microphone, the FM tuner or the
// hands-free card directly.
//
// The control surface mirrors a string key/value parameter interface:
//
//	hfp_enable=true|false      start or stop the hands-free call
//	hfp_set_sampling_rate=N    accepted and recorded
//	hfp_volume=N               call volume
//	routing=N                  per-stream logical device (SetStreamParameters)
package hal
