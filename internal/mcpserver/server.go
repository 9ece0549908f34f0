// Package mcpserver exposes the Anki bridge as MCP tools over stdio or
// SSE transports.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/anki"
	"github.com/starford/ansuz/internal/noteservice"
)

// Server wraps the MCP server with all bridge tools registered.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates the MCP server and registers every tool.
func New(svc *noteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_decks",
		mcp.WithDescription("List all available Anki decks."),
	), s.listDecks)

	s.mcp.AddTool(mcp.NewTool("get_deck_notes",
		mcp.WithDescription("Get all notes/cards from a specific deck."),
		mcp.WithString("deck_name", mcp.Required(), mcp.Description("Name of the Anki deck to retrieve notes from")),
	), s.getDeckNotes)

	s.mcp.AddTool(mcp.NewTool("get_deck_sample",
		mcp.WithDescription("Get a random sample of notes from a deck to understand typical note structure."),
		mcp.WithString("deck_name", mcp.Required(), mcp.Description("Name of the Anki deck to sample notes from")),
		mcp.WithNumber("sample_size", mcp.Description("Number of notes to randomly sample (1-50)"), mcp.DefaultNumber(5), mcp.Min(1), mcp.Max(50)),
	), s.getDeckSample)

	s.mcp.AddTool(mcp.NewTool("get_deck_note_types",
		mcp.WithDescription("Get the note types (models) and their field definitions used in a specific deck."),
		mcp.WithString("deck_name", mcp.Required(), mcp.Description("Name of the Anki deck to analyze for note types")),
	), s.getDeckNoteTypes)

	s.mcp.AddTool(mcp.NewTool("list_note_types",
		mcp.WithDescription("List all available note types (models) with their fields and card templates."),
	), s.listNoteTypes)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note in the specified deck with the given fields and tags. "+
			"Read the ansuz://card-format resource for field conventions, including audio sound tags."),
		mcp.WithString("deck_name", mcp.Required(), mcp.Description("Name of the Anki deck to add the note to")),
		mcp.WithString("model_name", mcp.Required(), mcp.Description("Name of the note type/model to use")),
		mcp.WithObject("fields", mcp.Required(), mcp.Description("Mapping of field names to values (e.g. {\"Front\": \"Question\", \"Back\": \"Answer\"})")),
		mcp.WithArray("tags", mcp.Description("Optional list of tags to add to the note")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Update specific fields of an existing note; fields not named keep their current values. "+
			"Useful for adding audio sound tags to existing cards."),
		mcp.WithNumber("note_id", mcp.Required(), mcp.Description("ID of the note to update")),
		mcp.WithObject("fields", mcp.Required(), mcp.Description("Mapping of field names to their new values")),
		mcp.WithArray("tags", mcp.Description("Optional list of tags that replaces the existing tags")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("create_deck_with_note_type",
		mcp.WithDescription("Create a new deck and, if needed, a new note type with the given fields and card templates."),
		mcp.WithString("deck_name", mcp.Required(), mcp.Description("Name for the new Anki deck")),
		mcp.WithString("model_name", mcp.Required(), mcp.Description("Name for the note type/model to create or reuse")),
		mcp.WithArray("fields", mcp.Required(), mcp.Description("Field names for the note type (e.g. [\"Front\", \"Back\"])")),
		mcp.WithArray("card_templates", mcp.Description("Optional card template definitions; default front/back templates are generated when omitted")),
	), s.createDeckWithNoteType)

	s.mcp.AddTool(mcp.NewTool("create_notes_bulk",
		mcp.WithDescription("Create multiple notes in one batch. Duplicates and invalid notes are classified "+
			"before anything is written; only addable notes are submitted, in a single store call."),
		mcp.WithString("deck_name", mcp.Required(), mcp.Description("Name of the Anki deck to add notes to")),
		mcp.WithArray("notes_list", mcp.Required(), mcp.Description("Notes to create; each needs model_name and fields, tags optional")),
	), s.createNotesBulk)

	s.mcp.AddTool(mcp.NewTool("update_notes_bulk",
		mcp.WithDescription("Update multiple notes in one batch. Items are applied individually; one item's "+
			"failure does not stop the rest."),
		mcp.WithArray("updates", mcp.Required(), mcp.Description("Updates to apply; each needs note_id and fields, tags optional")),
	), s.updateNotesBulk)

	s.mcp.AddTool(mcp.NewTool("find_similar_notes",
		mcp.WithDescription("Find notes that contain the search text as a substring in any field."),
		mcp.WithString("deck_name", mcp.Required(), mcp.Description("Name of the Anki deck to search in")),
		mcp.WithString("search_text", mcp.Required(), mcp.Description("Text to search for as a substring in any field")),
		mcp.WithBoolean("case_sensitive", mcp.Description("Whether the search should be case sensitive"), mcp.DefaultBool(false)),
		mcp.WithNumber("max_results", mcp.Description("Maximum number of matching notes to return (1-100)"), mcp.DefaultNumber(20), mcp.Min(1), mcp.Max(100)),
	), s.findSimilarNotes)

	s.mcp.AddTool(mcp.NewTool("find_semantic_notes",
		mcp.WithDescription("Find notes semantically similar to a query using embeddings. Requires an "+
			"embeddings API key; this tool never falls back to substring matching."),
		mcp.WithString("deck_name", mcp.Required(), mcp.Description("Name of the Anki deck to search in")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Free-form text to rank notes against")),
		mcp.WithNumber("threshold", mcp.Description("Minimum similarity score in [0,1]"), mcp.DefaultNumber(0.7), mcp.Min(0), mcp.Max(1)),
		mcp.WithNumber("max_results", mcp.Description("Maximum number of notes to return (1-100)"), mcp.DefaultNumber(20), mcp.Min(1), mcp.Max(100)),
	), s.findSemanticNotes)

	s.registerAudioTools()

	s.mcp.AddResource(
		mcp.NewResource("ansuz://card-format", "Card Format Guide",
			mcp.WithResourceDescription("Conventions for building Anki cards through this bridge, including sound tags."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCardFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for transports and tests.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listDecks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	decks, err := s.svc.ListDecks(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Available decks (%d):\n", len(decks))
	for _, deck := range decks {
		fmt.Fprintf(&b, "- %s\n", deck)
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (s *Server) getDeckNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deck, err := req.RequireString("deck_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notes, err := s.svc.DeckNotes(ctx, deck)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(notes) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No notes found in deck '%s'", deck)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Notes in deck '%s' (%d total):\n\n", deck, len(notes))
	for i, note := range notes {
		writeNoteBlock(&b, fmt.Sprintf("Note %d", i+1), note, 100)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) getDeckSample(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deck, err := req.RequireString("deck_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sampleSize := req.GetInt("sample_size", 5)
	if sampleSize < 1 || sampleSize > 50 {
		return mcp.NewToolResultError("sample_size must be between 1 and 50"), nil
	}
	notes, total, err := s.svc.SampleDeckNotes(ctx, deck, sampleSize)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if total == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No notes found in deck '%s'", deck)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sample of %d notes from deck '%s' (total: %d):\n\n", len(notes), deck, total)
	for i, note := range notes {
		writeNoteBlock(&b, fmt.Sprintf("Sample Note %d", i+1), note, 200)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) getDeckNoteTypes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deck, err := req.RequireString("deck_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	models, err := s.svc.DeckNoteTypes(ctx, deck)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(models) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No notes found in deck '%s'", deck)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Note types used in deck '%s':\n\n", deck)
	for _, m := range models {
		fmt.Fprintf(&b, "Model: %s\n", m.Model)
		fmt.Fprintf(&b, "  Fields: %s\n\n", strings.Join(m.Fields, ", "))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) listNoteTypes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	models, err := s.svc.ListNoteTypes(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Available note types (%d):\n\n", len(models))
	for _, m := range models {
		fmt.Fprintf(&b, "Model: %s\n", m.Name)
		if len(m.Fields) > 0 {
			fmt.Fprintf(&b, "  Fields: %s\n", strings.Join(m.Fields, ", "))
		}
		fmt.Fprintf(&b, "  Templates: %d card type(s)\n", len(m.TemplateNames))
		for _, name := range m.TemplateNames {
			fmt.Fprintf(&b, "    - %s\n", name)
		}
		fmt.Fprintf(&b, "  CSS: %d characters\n\n", m.CSSLength)
	}
	return mcp.NewToolResultText(b.String()), nil
}

type createNoteArgs struct {
	DeckName  string            `json:"deck_name"`
	ModelName string            `json:"model_name"`
	Fields    map[string]string `json:"fields"`
	Tags      []string          `json:"tags"`
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args createNoteArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.DeckName == "" || args.ModelName == "" || len(args.Fields) == 0 {
		return mcp.NewToolResultError("deck_name, model_name and fields are required"), nil
	}
	id, err := s.svc.CreateNote(ctx, args.DeckName, args.ModelName, args.Fields, args.Tags)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"success": true, "noteId": id})
}

type updateNoteArgs struct {
	NoteID int64             `json:"note_id"`
	Fields map[string]string `json:"fields"`
	Tags   []string          `json:"tags"`
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args updateNoteArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.NoteID == 0 || len(args.Fields) == 0 {
		return mcp.NewToolResultError("note_id and fields are required"), nil
	}
	updated, err := s.svc.UpdateNote(ctx, args.NoteID, args.Fields, args.Tags)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"success":        true,
		"note_id":        args.NoteID,
		"updated_fields": updated,
		"message":        fmt.Sprintf("Successfully updated note %d with fields: %s", args.NoteID, strings.Join(updated, ", ")),
	})
}

type createDeckArgs struct {
	DeckName      string              `json:"deck_name"`
	ModelName     string              `json:"model_name"`
	Fields        []string            `json:"fields"`
	CardTemplates []anki.CardTemplate `json:"card_templates"`
}

func (s *Server) createDeckWithNoteType(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args createDeckArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.DeckName == "" || args.ModelName == "" || len(args.Fields) == 0 {
		return mcp.NewToolResultError("deck_name, model_name and fields are required"), nil
	}
	setup, err := s.svc.CreateDeckWithNoteType(ctx, args.DeckName, args.ModelName, args.Fields, args.CardTemplates)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := map[string]any{
		"success":       true,
		"deck_id":       setup.DeckID,
		"deck_name":     setup.DeckName,
		"model_name":    setup.ModelName,
		"model_created": setup.ModelCreated,
	}
	if setup.ModelCreated {
		out["fields"] = args.Fields
	} else {
		out["message"] = fmt.Sprintf("Note type '%s' already exists, deck created with existing note type", setup.ModelName)
	}
	return jsonResult(out)
}

type bulkCreateArgs struct {
	DeckName string                    `json:"deck_name"`
	Notes    []noteservice.NoteRequest `json:"notes_list"`
}

func (s *Server) createNotesBulk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args bulkCreateArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.DeckName == "" {
		return mcp.NewToolResultError("deck_name is required"), nil
	}
	result, err := s.svc.BulkCreate(ctx, args.DeckName, args.Notes)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"success":          true,
		"total_attempted":  result.TotalAttempted,
		"successful_count": len(result.Created),
		"failed_count":     len(result.Rejected),
		"successful_notes": result.Created,
		"failed_notes":     result.Rejected,
		"message": fmt.Sprintf("Created %d new notes. %d notes failed (see failed_notes for details).",
			len(result.Created), len(result.Rejected)),
	})
}

type bulkUpdateArgs struct {
	Updates []noteservice.UpdateRequest `json:"updates"`
}

func (s *Server) updateNotesBulk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args bulkUpdateArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.svc.BulkUpdate(ctx, args.Updates)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"success":            true,
		"total_attempted":    result.TotalAttempted,
		"successful_count":   len(result.Updated),
		"failed_count":       len(result.Failed),
		"successful_updates": result.Updated,
		"failed_updates":     result.Failed,
		"message": fmt.Sprintf("Successfully updated %d out of %d notes",
			len(result.Updated), result.TotalAttempted),
	})
}

func (s *Server) findSimilarNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deck, err := req.RequireString("deck_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	searchText, err := req.RequireString("search_text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	caseSensitive := req.GetBool("case_sensitive", false)
	maxResults := req.GetInt("max_results", 20)
	if maxResults < 1 || maxResults > 100 {
		return mcp.NewToolResultError("max_results must be between 1 and 100"), nil
	}

	matches, err := s.svc.FindSimilar(ctx, deck, searchText, caseSensitive, maxResults)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(matches) == 0 {
		return jsonResult(map[string]any{
			"success":     true,
			"found_count": 0,
			"message":     fmt.Sprintf("No notes found containing '%s' in deck '%s'", searchText, deck),
			"notes":       []any{},
		})
	}

	notes := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		notes = append(notes, map[string]any{
			"note_id":         m.Note.ID,
			"model_name":      m.Note.Model,
			"tags":            m.Note.Tags,
			"matching_fields": m.MatchingFields,
			"fields":          flattenFields(m.Note),
		})
	}
	return jsonResult(map[string]any{
		"success":        true,
		"search_text":    searchText,
		"found_count":    len(matches),
		"case_sensitive": caseSensitive,
		"deck_name":      deck,
		"notes":          notes,
	})
}

func (s *Server) findSemanticNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deck, err := req.RequireString("deck_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	threshold := req.GetFloat("threshold", 0.7)
	if threshold < 0 || threshold > 1 {
		return mcp.NewToolResultError("threshold must be between 0 and 1"), nil
	}
	maxResults := req.GetInt("max_results", 20)
	if maxResults < 1 || maxResults > 100 {
		return mcp.NewToolResultError("max_results must be between 1 and 100"), nil
	}

	ranked, err := s.svc.SemanticSearch(ctx, deck, query, threshold, maxResults)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	notes := make([]map[string]any, 0, len(ranked))
	for _, r := range ranked {
		notes = append(notes, map[string]any{
			"note_id":    r.Note.ID,
			"model_name": r.Note.Model,
			"tags":       r.Note.Tags,
			"score":      r.Score,
			"fields":     flattenFields(r.Note),
		})
	}
	return jsonResult(map[string]any{
		"success":     true,
		"query":       query,
		"deck_name":   deck,
		"threshold":   threshold,
		"found_count": len(ranked),
		"notes":       notes,
	})
}

// writeNoteBlock renders one note in the inspection format, truncating
// long field values for readability.
func writeNoteBlock(b *strings.Builder, label string, note anki.Note, truncateAt int) {
	fmt.Fprintf(b, "%s (ID: %d):\n", label, note.ID)
	fmt.Fprintf(b, "  Model: %s\n", note.Model)
	if len(note.Tags) > 0 {
		fmt.Fprintf(b, "  Tags: %s\n", strings.Join(note.Tags, ", "))
	} else {
		fmt.Fprintf(b, "  Tags: None\n")
	}
	fmt.Fprintf(b, "  Fields:\n")
	for _, name := range note.FieldNames() {
		fmt.Fprintf(b, "    %s: %s\n", name, truncate(note.Fields[name].Value, truncateAt))
	}
	b.WriteString("\n")
}

// truncate caps a field value at n characters, not bytes, so multi-byte
// text (CJK fields especially) is never cut mid-rune.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func flattenFields(note anki.Note) map[string]string {
	fields := make(map[string]string, len(note.Fields))
	for name, field := range note.Fields {
		fields[name] = field.Value
	}
	return fields
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
