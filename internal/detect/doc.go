// Package detect locates QR markers in a captured frame, decodes their
// payloads and draws an annotated copy of the frame for the live view.
//
// Decoding is delegated to a SymbolDecoder; the default implementation wraps
// the gozxing multi-symbol QR reader. Detection is a pure function of the
// frame and the annotate-text flag: the input image is never modified.
package detect
