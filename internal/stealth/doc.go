// Package stealth reads and writes the "stealth_pngcomp" metadata payload that
// image generators hide in the least-significant bit of a PNG's alpha channel.
//
// The wire layout, after the alpha LSB plane is packed MSB-first into bytes, is:
//
//	magic   15 bytes  "stealth_pngcomp"
//	length   4 bytes  big-endian bit count of the body
//	body     length/8 bytes of gzip-compressed UTF-8 JSON
//
// ExtractBits and EmbedBits convert between a Grid and the packed byte stream.
// Parse and Build convert between that stream and a JSON document, and Decode
// and Encode chain the two. Every failure is a *FormatError whose Kind tells
// callers whether the payload is simply absent (IsNotPresent) or recognised
// but damaged (IsCorrupt).
//
// The package keeps no mutable state and never logs; independent grids may be
// processed concurrently.
package stealth
