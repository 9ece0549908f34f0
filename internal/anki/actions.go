package anki

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Field is one field of a stored note. Order is the position the note
// type assigns to the field.
type Field struct {
	Value string `json:"value"`
	Order int    `json:"order"`
}

// Note is the notesInfo representation of a stored note.
type Note struct {
	ID     int64            `json:"noteId"`
	Model  string           `json:"modelName"`
	Tags   []string         `json:"tags"`
	Fields map[string]Field `json:"fields"`
}

// FieldNames returns the note's field names in note-type order.
func (n Note) FieldNames() []string {
	names := make([]string, 0, len(n.Fields))
	for name := range n.Fields {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return n.Fields[names[i]].Order < n.Fields[names[j]].Order
	})
	return names
}

// JoinedFieldText concatenates all field values in note-type order,
// separated by spaces. Used as the embedding input for a note.
func (n Note) JoinedFieldText() string {
	var out string
	for i, name := range n.FieldNames() {
		if i > 0 {
			out += " "
		}
		out += n.Fields[name].Value
	}
	return out
}

// NoteInput is the addNotes/canAddNotes representation of a new note.
type NoteInput struct {
	DeckName  string            `json:"deckName"`
	ModelName string            `json:"modelName"`
	Fields    map[string]string `json:"fields"`
	Tags      []string          `json:"tags"`
}

// NoteUpdate is the updateNoteFields representation.
type NoteUpdate struct {
	ID     int64             `json:"id"`
	Fields map[string]string `json:"fields"`
	Tags   []string          `json:"tags"`
}

// CanAddResult is one entry of a canAddNotesWithErrorDetail response.
type CanAddResult struct {
	CanAdd bool   `json:"canAdd"`
	Error  string `json:"error,omitempty"`
}

// CardTemplate describes one card rendered from a note type. AnkiConnect
// uses capitalised keys here.
type CardTemplate struct {
	Name  string `json:"Name"`
	Front string `json:"Front"`
	Back  string `json:"Back"`
}

// DeckNames lists all deck names.
func (c *Client) DeckNames(ctx context.Context) ([]string, error) {
	var names []string
	err := c.invokeInto(ctx, "deckNames", nil, &names)
	return names, err
}

// CreateDeck creates a deck and returns its id. Creating an existing
// deck is a no-op on the Anki side.
func (c *Client) CreateDeck(ctx context.Context, name string) (int64, error) {
	var id int64
	err := c.invokeInto(ctx, "createDeck", map[string]any{"deck": name}, &id)
	return id, err
}

// FindNotes returns the ids of notes matching an Anki search query.
func (c *Client) FindNotes(ctx context.Context, query string) ([]int64, error) {
	var ids []int64
	err := c.invokeInto(ctx, "findNotes", map[string]any{"query": query}, &ids)
	return ids, err
}

// FindNotesInDeck returns the ids of all notes in the named deck.
func (c *Client) FindNotesInDeck(ctx context.Context, deck string) ([]int64, error) {
	return c.FindNotes(ctx, fmt.Sprintf("deck:%q", deck))
}

// NotesInfo fetches full note records for the given ids.
func (c *Client) NotesInfo(ctx context.Context, ids []int64) ([]Note, error) {
	var notes []Note
	err := c.invokeInto(ctx, "notesInfo", map[string]any{"notes": ids}, &notes)
	return notes, err
}

// AddNote creates a single note and returns its assigned id.
func (c *Client) AddNote(ctx context.Context, note NoteInput) (int64, error) {
	var id int64
	err := c.invokeInto(ctx, "addNote", map[string]any{"note": note}, &id)
	return id, err
}

// AddNotes creates a batch of notes in one call. The result holds one
// entry per input; a nil entry means that note was not created.
func (c *Client) AddNotes(ctx context.Context, notes []NoteInput) ([]*int64, error) {
	var ids []*int64
	err := c.invokeInto(ctx, "addNotes", map[string]any{"notes": notes}, &ids)
	return ids, err
}

// CanAddNotes asks the store, without mutating it, which of the given
// notes could be added and why the rest could not.
func (c *Client) CanAddNotes(ctx context.Context, notes []NoteInput) ([]CanAddResult, error) {
	var results []CanAddResult
	err := c.invokeInto(ctx, "canAddNotesWithErrorDetail", map[string]any{"notes": notes}, &results)
	return results, err
}

// UpdateNoteFields replaces field values (and tags) of an existing note.
func (c *Client) UpdateNoteFields(ctx context.Context, update NoteUpdate) error {
	return c.invokeInto(ctx, "updateNoteFields", map[string]any{"note": update}, nil)
}

// ModelNames lists all note-type names.
func (c *Client) ModelNames(ctx context.Context) ([]string, error) {
	var names []string
	err := c.invokeInto(ctx, "modelNames", nil, &names)
	return names, err
}

// ModelFieldNames returns the ordered field names of a note type.
func (c *Client) ModelFieldNames(ctx context.Context, model string) ([]string, error) {
	var fields []string
	err := c.invokeInto(ctx, "modelFieldNames", map[string]any{"modelName": model}, &fields)
	return fields, err
}

// ModelTemplates returns template name -> {Front, Back} for a note type.
func (c *Client) ModelTemplates(ctx context.Context, model string) (map[string]map[string]string, error) {
	var templates map[string]map[string]string
	err := c.invokeInto(ctx, "modelTemplates", map[string]any{"modelName": model}, &templates)
	return templates, err
}

// ModelStyling returns the CSS of a note type.
func (c *Client) ModelStyling(ctx context.Context, model string) (string, error) {
	var styling struct {
		CSS string `json:"css"`
	}
	err := c.invokeInto(ctx, "modelStyling", map[string]any{"modelName": model}, &styling)
	return styling.CSS, err
}

// CreateModel creates a note type with the given fields and templates.
func (c *Client) CreateModel(ctx context.Context, name string, fields []string, templates []CardTemplate, css string) error {
	params := map[string]any{
		"modelName":     name,
		"inOrderFields": fields,
		"cardTemplates": templates,
		"css":           css,
	}
	return c.invokeInto(ctx, "createModel", params, nil)
}

// StoreMediaFile saves base64-encoded data into the media collection and
// returns the filename Anki actually used (it may rename on conflict).
func (c *Client) StoreMediaFile(ctx context.Context, filename, base64Data string) (string, error) {
	var saved string
	params := map[string]any{"filename": filename, "data": base64Data}
	err := c.invokeInto(ctx, "storeMediaFile", params, &saved)
	return saved, err
}

// MediaFileNames lists media files matching a glob pattern.
func (c *Client) MediaFileNames(ctx context.Context, pattern string) ([]string, error) {
	var names []string
	err := c.invokeInto(ctx, "getMediaFilesNames", map[string]any{"pattern": pattern}, &names)
	return names, err
}

// RetrieveMediaFile returns the base64 contents of a media file. Anki
// reports a missing file as a literal false result, which is surfaced
// here as ok == false.
func (c *Client) RetrieveMediaFile(ctx context.Context, filename string) (data string, ok bool, err error) {
	raw, err := c.Invoke(ctx, "retrieveMediaFile", map[string]any{"filename": filename})
	if err != nil {
		return "", false, err
	}
	if string(raw) == "false" {
		return "", false, nil
	}
	var contents string
	if err := json.Unmarshal(raw, &contents); err != nil {
		return "", false, fmt.Errorf("decode retrieveMediaFile result: %w", err)
	}
	return contents, true, nil
}

// MediaDirPath returns the absolute path of the media collection.
func (c *Client) MediaDirPath(ctx context.Context) (string, error) {
	var path string
	err := c.invokeInto(ctx, "getMediaDirPath", nil, &path)
	return path, err
}
