// Package extract pulls NovelAI generation metadata out of PNG files.
//
// Two carriers are consulted for every image: the stealth payload hidden in
// the alpha channel and the PNG text chunks. The alpha payload wins when both
// are present and the text document is kept alongside it under
// "text_metadata". Results are resolved into prompt fields, optionally cached
// in a metacache.Store, and can be produced for a whole directory by Scan
// using a bounded worker pool.
package extract
