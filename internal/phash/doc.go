// Package phash computes perceptual fingerprints of video frames.
package phash
