package parser

// ChildTaskDeclaration is one sub-task declaration extracted from a
// parent's assistant message.
type ChildTaskDeclaration struct {
	ToolName         string
	NormalizedPrefix string
}

// ExtractChildTaskDeclarations scans blocks for spawn-tool calls and
// returns the normalized opening-instruction prefix of each. Blocks
// without the spawn tool's primary instruction parameter are skipped.
func ExtractChildTaskDeclarations(blocks []Block, prefixLength int) []ChildTaskDeclaration {
	var decls []ChildTaskDeclaration
	for _, b := range blocks {
		if b.Kind != KindToolUse || b.Name != spawnToolName {
			continue
		}
		msg, ok := b.Params[primaryInstructionParam]
		if !ok || msg == "" {
			continue
		}
		decls = append(decls, ChildTaskDeclaration{
			ToolName:         b.Name,
			NormalizedPrefix: NormalizePrefix(msg, prefixLength),
		})
	}
	return decls
}
