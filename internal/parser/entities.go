package parser

import "html"

// TokenizeEntityEncoded decodes HTML entities over the entire input
// before tokenizing, for raw messages that arrive entity-encoded. Every
// resulting block is forced to Partial = false, since an entity-decoded
// message is by definition a complete, final representation rather than
// a streaming partial one.
func TokenizeEntityEncoded(message string) []Block {
	decoded := html.UnescapeString(message)
	blocks := Tokenize(decoded)
	for i := range blocks {
		blocks[i].Partial = false
	}
	return blocks
}
