// Package pngtext reads the textual chunks (tEXt, zTXt and iTXt) of a PNG
// stream without decoding image data.
//
// Read walks the chunk sequence, verifying each chunk CRC, and returns the
// keyword/text pairs in file order. Metadata folds those pairs into the map
// shape NovelAI tooling expects, parsing JSON-looking values for the well-known
// keys. Insert adds a tEXt chunk to an encoded PNG and is used when writing
// images that carry both text and alpha metadata.
package pngtext
