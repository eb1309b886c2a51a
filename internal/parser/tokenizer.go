// Package parser tokenizes an assistant message into text and tool-use
// blocks, and extracts child-task declarations from them. The grammar is
// not XML-conformant -- it is hand-rolled over the conventions a coding
// assistant's own tool-call markup uses, including the quirk that a tool's
// own output (e.g. a diff) can embed a string that looks like the tool's
// closing tag.
package parser

import "strings"

// BlockKind distinguishes a literal text run from a recognized tool call.
type BlockKind int

const (
	KindText BlockKind = iota
	KindToolUse
)

// Block is one element of a tokenized message.
type Block struct {
	Kind    BlockKind
	Text    string            // set when Kind == KindText
	Name    string            // set when Kind == KindToolUse
	Params  map[string]string // set when Kind == KindToolUse
	Partial bool
}

// recognizedParams is the closed set of parameter names the tokenizer will
// treat as a PARAM tag inside a tool-use body. Anything else inside a
// tool-use body is left as literal text.
var recognizedParams = map[string]struct{}{
	"path": {}, "line_range": {}, "paths": {}, "file": {}, "content": {},
	"line_count": {}, "diff": {}, "line": {}, "regex": {}, "file_pattern": {},
	"query": {}, "search": {}, "replace": {}, "use_regex": {}, "ignore_case": {},
	"start_line": {}, "end_line": {}, "command": {}, "cwd": {}, "server_name": {},
	"tool_name": {}, "arguments": {}, "uri": {}, "question": {}, "follow_up": {},
	"suggest": {}, "result": {}, "mode_slug": {}, "mode": {}, "reason": {},
	"message": {}, "todos": {}, "args": {}, "task": {}, "recursive": {},
	"index": {}, "timeout": {}, "preview": {},
}

// reservedBareNames are tool names admitted even though they lack an
// underscore, because they also appear in recognizedParams and would
// otherwise never be reachable as a tool name.
var reservedBareNames = map[string]struct{}{
	"args": {}, "file": {}, "path": {}, "task": {},
}

// writeLikeTools get closing-tag occurrences resolved to the last match
// in the remaining input rather than the first, tolerating tool output
// (a diff, a file body) that embeds a string resembling their own
// closing tag.
var writeLikeTools = map[string]struct{}{
	"write_to_file": {}, "apply_diff": {}, "insert_content": {}, "search_and_replace": {},
}

// spawnToolName is the conventional tool used to declare a sub-task.
const spawnToolName = "new_task"

// primaryInstructionParam carries the sub-task's opening instruction.
const primaryInstructionParam = "message"

const identifierChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_"

// Tokenize scans message into an ordered sequence of text and tool-use
// blocks. Incomplete tool-use blocks (an opening tag with no matching
// close before end of input) are silently dropped, per the grammar's
// end-of-input rule.
func Tokenize(message string) []Block {
	var blocks []Block
	var textBuf strings.Builder
	i := 0
	n := len(message)

	flushText := func() {
		if textBuf.Len() > 0 {
			blocks = append(blocks, Block{Kind: KindText, Text: textBuf.String()})
			textBuf.Reset()
		}
	}

	for i < n {
		if message[i] != '<' {
			textBuf.WriteByte(message[i])
			i++
			continue
		}
		next := byte(0)
		if i+1 < n {
			next = message[i+1]
		}
		if next == 0 || next == '/' || next == '!' || next == '?' {
			textBuf.WriteByte(message[i])
			i++
			continue
		}

		name, nameEnd, ok := scanIdentifier(message, i+1)
		if !ok || !isToolName(name) {
			textBuf.WriteByte(message[i])
			i++
			continue
		}
		gt := strings.IndexByte(message[nameEnd:], '>')
		if gt < 0 {
			// No closing '>' for the opening tag itself: incomplete, drop
			// the rest of the input as an unterminated tag.
			break
		}
		bodyStart := nameEnd + gt + 1

		closeTag := "</" + name + ">"
		closeIdx := findClose(message[bodyStart:], closeTag, isWriteLike(name))
		if closeIdx < 0 {
			// Unterminated tool-use: silently dropped (R4).
			break
		}
		flushText()

		body := message[bodyStart : bodyStart+closeIdx]
		blocks = append(blocks, Block{
			Kind:   KindToolUse,
			Name:   name,
			Params: parseParams(body),
		})
		i = bodyStart + closeIdx + len(closeTag)
	}
	flushText()
	return blocks
}

// scanIdentifier reads a run of identifier characters starting at start,
// returning the identifier and the index immediately following it.
func scanIdentifier(s string, start int) (name string, end int, ok bool) {
	j := start
	for j < len(s) && strings.IndexByte(identifierChars, s[j]) >= 0 {
		j++
	}
	if j == start {
		return "", start, false
	}
	return s[start:j], j, true
}

func isToolName(name string) bool {
	if strings.Contains(name, "_") {
		return true
	}
	_, reserved := reservedBareNames[name]
	return reserved
}

func isWriteLike(name string) bool {
	_, ok := writeLikeTools[name]
	return ok
}

// findClose returns the index of the chosen closing tag occurrence within
// s, or -1 if absent. write-like tools prefer the last occurrence.
func findClose(s, closeTag string, writeLike bool) int {
	if !writeLike {
		return strings.Index(s, closeTag)
	}
	idx := strings.LastIndex(s, closeTag)
	return idx
}

// parseParams extracts PARAM tags from a tool-use body. The content
// parameter is preserved verbatim; every other recognized parameter is
// trimmed of surrounding whitespace.
func parseParams(body string) map[string]string {
	params := make(map[string]string)
	i := 0
	n := len(body)
	for i < n {
		lt := strings.IndexByte(body[i:], '<')
		if lt < 0 {
			break
		}
		i += lt
		if i+1 >= n || body[i+1] == '/' {
			i++
			continue
		}
		name, nameEnd, ok := scanIdentifier(body, i+1)
		if !ok {
			i++
			continue
		}
		if _, recognized := recognizedParams[name]; !recognized {
			i++
			continue
		}
		if nameEnd >= n || body[nameEnd] != '>' {
			i++
			continue
		}
		valueStart := nameEnd + 1
		closeTag := "</" + name + ">"
		rel := strings.Index(body[valueStart:], closeTag)
		if rel < 0 {
			i++
			continue
		}
		value := body[valueStart : valueStart+rel]
		if name != "content" {
			value = strings.TrimSpace(value)
		}
		params[name] = value
		i = valueStart + rel + len(closeTag)
	}
	return params
}
