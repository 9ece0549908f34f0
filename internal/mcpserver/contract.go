package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// CardFormatContract describes the conventions LLM consumers should
// follow when creating or updating cards through this bridge.
const CardFormatContract = `# Ansuz Card Format Guide

Cards are created from a note type (model) that defines ordered fields
and rendering templates. Follow these conventions when building notes.

## Fields

- Field values are HTML fragments. Plain text is fine; avoid block-level
  HTML unless the deck's templates expect it.
- The FIRST field of a note type is the duplicate key: two notes of the
  same type with an identical first field are duplicates, and bulk
  creation will reject the second one before anything is written.
- Never leave the first field empty; Anki refuses empty notes.

## Audio

- Generate and store pronunciation audio with the ` + "`generate_and_save_audio`" + `
  tool. It returns a ` + "`sound_tag`" + ` value like ` + "`[sound:tts-a1b2c3d4e5f6.mp3]`" + `.
- Paste the sound tag into a field (commonly a dedicated Audio field, or
  appended to the Front/Back) with ` + "`update_note`" + `; Anki's renderer plays
  the referenced file during review.
- Media filenames must be plain (no path separators). When you omit the
  filename the bridge derives a stable one from the text and voice, so
  regenerating the same phrase reuses the same file.

## Tags

- Tags are single words; use hyphens instead of spaces (e.g.
  ` + "`hsk-level-1`" + `, ` + "`verb`" + `).
- ` + "`update_note`" + ` REPLACES the tag list when the tags parameter is given
  and keeps the existing tags when it is omitted.

## Workflow for a new deck

1. ` + "`create_deck_with_note_type`" + ` with the field list (first field is the
   prompt/duplicate key).
2. ` + "`create_notes_bulk`" + ` with the notes; inspect ` + "`failed_notes`" + ` for
   duplicates and validation errors.
3. ` + "`generate_and_save_audio`" + ` per note, then ` + "`update_notes_bulk`" + ` to add
   the sound tags.
`

func (s *Server) readCardFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "ansuz://card-format",
			MIMEType: "text/markdown",
			Text:     CardFormatContract,
		},
	}, nil
}
