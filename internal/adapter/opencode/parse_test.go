package opencode

import (
	"testing"

	"github.com/cabinetrun/cabinet/internal/adapter"
	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileOf(name string) adapter.TranscriptFile {
	return adapter.TranscriptFile{FileName: name}
}

func TestParseTranscriptsTranslatesParts(t *testing.T) {
	doc := `{"messages":[{"id":"m1","model":"anthropic/claude","parts":[
		{"type":"text","text":"hello"},
		{"type":"reasoning","text":"thinking..."},
		{"type":"tool","tool":"bash","callID":"c1","input":{"cmd":"ls"},"state":{"status":"completed","output":"a.txt"}},
		{"type":"file"},
		{"type":"retry","message":"rate limited"}
	]}]}`
	a := New("")
	parsed := a.ParseTranscripts(doc, nil)

	require.Len(t, parsed.Blocks, 5)
	assert.Equal(t, blocks.BlockKindAssistantText, parsed.Blocks[0].Kind)
	assert.Equal(t, blocks.BlockKindThinking, parsed.Blocks[1].Kind)
	assert.Equal(t, blocks.BlockKindToolUse, parsed.Blocks[2].Kind)
	assert.Equal(t, blocks.ToolStatusSuccess, parsed.Blocks[2].Status)
	assert.Equal(t, blocks.BlockKindToolResult, parsed.Blocks[3].Kind)
	assert.Equal(t, "a.txt", parsed.Blocks[3].Output)
	assert.Equal(t, blocks.BlockKindSystem, parsed.Blocks[4].Kind)
	assert.Equal(t, blocks.SystemSubtypeError, parsed.Blocks[4].Subtype)
}

func TestParseTranscriptsIgnoresUnsurfacedPartTypes(t *testing.T) {
	doc := `{"messages":[{"id":"m1","parts":[{"type":"snapshot"},{"type":"patch"},{"type":"compaction"}]}]}`
	a := New("")
	parsed := a.ParseTranscripts(doc, nil)
	assert.Empty(t, parsed.Blocks)
}

func TestParseTranscriptsMalformedDocumentYieldsNoBlocks(t *testing.T) {
	a := New("")
	parsed := a.ParseTranscripts("not json", nil)
	assert.Empty(t, parsed.Blocks)
}

func TestParseTranscriptsDropsPlaceholderSubagents(t *testing.T) {
	a := New("")
	parsed := a.ParseTranscripts("{}", map[string]string{
		"s1": `{"messages":[]}`,
		"s2": `{"messages":[{"id":"m1","parts":[{"type":"text","text":"go"}]}]}`,
	})
	_, hasS1 := parsed.Subagents["s1"]
	_, hasS2 := parsed.Subagents["s2"]
	assert.False(t, hasS1)
	assert.True(t, hasS2)
}

func TestIdentifyTranscriptFile(t *testing.T) {
	a := New("")
	main := a.IdentifyTranscriptFile(fileOf("sess1.json"))
	assert.True(t, main.IsMain)

	sub := a.IdentifyTranscriptFile(fileOf("subtask-xyz.json"))
	assert.Equal(t, "xyz", sub.SubagentID)

	other := a.IdentifyTranscriptFile(fileOf("notes.txt"))
	assert.True(t, other.Unrecognized)
}
