// Package transform converts acquired media into the publishable vertical
// format and computes its perceptual fingerprint.
//
// FFmpegEngine shells out to ffmpeg twice per item: once to scale and pad
// the clip into the staging directory, and once to grab the still frame that
// internal/phash hashes. A missing input is a permanent failure; ffmpeg
// failures are transient and retried by the stage executor.
package transform
