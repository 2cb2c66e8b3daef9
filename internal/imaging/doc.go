// Package imaging implements the collage compositing algorithm.
//
// Decode reads PNG and JPEG inputs. Normalize scales a set of images so they
// share the smallest cross-axis dimension (height for horizontal layouts,
// width for vertical ones). Plan computes canvas size and placement offsets,
// and Compose renders the images onto a canvas filled with the border color.
// EncodePNG writes the single supported output format.
package imaging
