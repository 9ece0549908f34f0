// Package testutil provides an in-memory fake of the AnkiConnect
// endpoint for exercising the bridge end to end without a running Anki.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sync"
	"testing"
)

// FakeNote is a stored note inside the fake collection.
type FakeNote struct {
	ID         int64
	Deck       string
	Model      string
	Fields     map[string]string
	FieldOrder []string
	Tags       []string
}

// FakeAnki emulates the AnkiConnect action protocol over httptest. The
// duplicate rule matches Anki's: same note type and same first-field
// value within the collection.
type FakeAnki struct {
	t   *testing.T
	srv *httptest.Server

	mu         sync.Mutex
	decks      map[string]int64
	models     map[string][]string
	templates  map[string]map[string]map[string]string
	css        map[string]string
	notes      []*FakeNote
	mediaFiles map[string]string

	nextDeckID int64
	nextNoteID int64

	calls       map[string]int
	forcedError map[string]string
	failStatus  int
}

// NewFakeAnki starts the fake endpoint; it is torn down with the test.
func NewFakeAnki(t *testing.T) *FakeAnki {
	t.Helper()
	f := &FakeAnki{
		t:           t,
		decks:       map[string]int64{"Default": 1},
		models:      map[string][]string{},
		templates:   map[string]map[string]map[string]string{},
		css:         map[string]string{},
		mediaFiles:  map[string]string{},
		nextDeckID:  1,
		nextNoteID:  1700000000000,
		calls:       map[string]int{},
		forcedError: map[string]string{},
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

// URL returns the endpoint address for anki.NewClient.
func (f *FakeAnki) URL() string { return f.srv.URL }

// Calls reports how many times an action was invoked.
func (f *FakeAnki) Calls(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[action]
}

// ForceError makes the named action return a store error.
func (f *FakeAnki) ForceError(action, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forcedError[action] = message
}

// FailWithStatus makes every request fail at the transport level.
func (f *FakeAnki) FailWithStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failStatus = status
}

// AddModel registers a note type with ordered fields and a basic template.
func (f *FakeAnki) AddModel(name string, fields []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models[name] = fields
	f.templates[name] = map[string]map[string]string{
		"Card 1": {"Front": "{{" + fields[0] + "}}", "Back": "{{FrontSide}}"},
	}
	f.css[name] = ".card {}"
}

// SeedNote inserts a note directly, bypassing duplicate checks.
func (f *FakeAnki) SeedNote(deck, model string, fields map[string]string, tags []string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertNote(deck, model, fields, tags)
}

// NoteByID returns a stored note, or nil.
func (f *FakeAnki) NoteByID(id int64) *FakeNote {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Media returns the stored base64 payload for a filename.
func (f *FakeAnki) Media(filename string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.mediaFiles[filename]
	return data, ok
}

func (f *FakeAnki) insertNote(deck, model string, fields map[string]string, tags []string) int64 {
	if _, ok := f.decks[deck]; !ok {
		f.nextDeckID++
		f.decks[deck] = f.nextDeckID
	}
	order := f.models[model]
	if order == nil {
		for name := range fields {
			order = append(order, name)
		}
	}
	if tags == nil {
		tags = []string{}
	}
	f.nextNoteID++
	f.notes = append(f.notes, &FakeNote{
		ID:         f.nextNoteID,
		Deck:       deck,
		Model:      model,
		Fields:     fields,
		FieldOrder: order,
		Tags:       tags,
	})
	return f.nextNoteID
}

type wireNote struct {
	DeckName  string            `json:"deckName"`
	ModelName string            `json:"modelName"`
	Fields    map[string]string `json:"fields"`
	Tags      []string          `json:"tags"`
}

// canAddReason classifies a candidate like Anki does, empty means addable.
func (f *FakeAnki) canAddReason(n wireNote) string {
	fields, ok := f.models[n.ModelName]
	if !ok {
		return fmt.Sprintf("model was not found: %s", n.ModelName)
	}
	first := fields[0]
	if n.Fields[first] == "" {
		return "cannot create note because it is empty"
	}
	for _, existing := range f.notes {
		if existing.Model == n.ModelName && len(existing.FieldOrder) > 0 &&
			existing.Fields[existing.FieldOrder[0]] == n.Fields[first] {
			return "cannot create note because it is a duplicate"
		}
	}
	return ""
}

func (f *FakeAnki) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action  string          `json:"action"`
		Version int             `json:"version"`
		Params  json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failStatus != 0 {
		w.WriteHeader(f.failStatus)
		return
	}
	f.calls[req.Action]++
	if msg, ok := f.forcedError[req.Action]; ok {
		writeEnvelope(w, nil, msg)
		return
	}

	result, errMsg := f.dispatch(req.Action, req.Params)
	writeEnvelope(w, result, errMsg)
}

func writeEnvelope(w http.ResponseWriter, result any, errMsg string) {
	w.Header().Set("Content-Type", "application/json")
	env := map[string]any{"result": result, "error": nil}
	if errMsg != "" {
		env["error"] = errMsg
	}
	_ = json.NewEncoder(w).Encode(env)
}

func (f *FakeAnki) dispatch(action string, params json.RawMessage) (any, string) {
	switch action {
	case "deckNames":
		names := make([]string, 0, len(f.decks))
		for name := range f.decks {
			names = append(names, name)
		}
		return names, ""

	case "createDeck":
		var p struct {
			Deck string `json:"deck"`
		}
		_ = json.Unmarshal(params, &p)
		if id, ok := f.decks[p.Deck]; ok {
			return id, ""
		}
		f.nextDeckID++
		f.decks[p.Deck] = f.nextDeckID
		return f.nextDeckID, ""

	case "findNotes":
		var p struct {
			Query string `json:"query"`
		}
		_ = json.Unmarshal(params, &p)
		deck := ""
		if _, err := fmt.Sscanf(p.Query, "deck:%q", &deck); err != nil {
			return []int64{}, ""
		}
		var ids []int64
		for _, n := range f.notes {
			if n.Deck == deck {
				ids = append(ids, n.ID)
			}
		}
		if ids == nil {
			ids = []int64{}
		}
		return ids, ""

	case "notesInfo":
		var p struct {
			Notes []int64 `json:"notes"`
		}
		_ = json.Unmarshal(params, &p)
		out := make([]map[string]any, 0, len(p.Notes))
		for _, id := range p.Notes {
			var found *FakeNote
			for _, n := range f.notes {
				if n.ID == id {
					found = n
					break
				}
			}
			if found == nil {
				// AnkiConnect reports a missing id as an empty record.
				out = append(out, map[string]any{})
				continue
			}
			fields := map[string]any{}
			for i, name := range found.FieldOrder {
				fields[name] = map[string]any{"value": found.Fields[name], "order": i}
			}
			out = append(out, map[string]any{
				"noteId":    found.ID,
				"modelName": found.Model,
				"tags":      found.Tags,
				"fields":    fields,
			})
		}
		return out, ""

	case "addNote":
		var p struct {
			Note wireNote `json:"note"`
		}
		_ = json.Unmarshal(params, &p)
		if reason := f.canAddReason(p.Note); reason != "" {
			return nil, reason
		}
		return f.insertNote(p.Note.DeckName, p.Note.ModelName, p.Note.Fields, p.Note.Tags), ""

	case "canAddNotesWithErrorDetail":
		var p struct {
			Notes []wireNote `json:"notes"`
		}
		_ = json.Unmarshal(params, &p)
		out := make([]map[string]any, 0, len(p.Notes))
		for _, n := range p.Notes {
			if reason := f.canAddReason(n); reason != "" {
				out = append(out, map[string]any{"canAdd": false, "error": reason})
			} else {
				out = append(out, map[string]any{"canAdd": true})
			}
		}
		return out, ""

	case "addNotes":
		var p struct {
			Notes []wireNote `json:"notes"`
		}
		_ = json.Unmarshal(params, &p)
		out := make([]*int64, 0, len(p.Notes))
		for _, n := range p.Notes {
			if reason := f.canAddReason(n); reason != "" {
				out = append(out, nil)
				continue
			}
			id := f.insertNote(n.DeckName, n.ModelName, n.Fields, n.Tags)
			out = append(out, &id)
		}
		return out, ""

	case "updateNoteFields":
		var p struct {
			Note struct {
				ID     int64             `json:"id"`
				Fields map[string]string `json:"fields"`
				Tags   []string          `json:"tags"`
			} `json:"note"`
		}
		_ = json.Unmarshal(params, &p)
		for _, n := range f.notes {
			if n.ID == p.Note.ID {
				for name, value := range p.Note.Fields {
					n.Fields[name] = value
				}
				if p.Note.Tags != nil {
					n.Tags = p.Note.Tags
				}
				return nil, ""
			}
		}
		return nil, fmt.Sprintf("note was not found: %d", p.Note.ID)

	case "modelNames":
		names := make([]string, 0, len(f.models))
		for name := range f.models {
			names = append(names, name)
		}
		return names, ""

	case "modelFieldNames":
		var p struct {
			ModelName string `json:"modelName"`
		}
		_ = json.Unmarshal(params, &p)
		fields, ok := f.models[p.ModelName]
		if !ok {
			return nil, fmt.Sprintf("model was not found: %s", p.ModelName)
		}
		return fields, ""

	case "modelTemplates":
		var p struct {
			ModelName string `json:"modelName"`
		}
		_ = json.Unmarshal(params, &p)
		templates, ok := f.templates[p.ModelName]
		if !ok {
			return nil, fmt.Sprintf("model was not found: %s", p.ModelName)
		}
		return templates, ""

	case "modelStyling":
		var p struct {
			ModelName string `json:"modelName"`
		}
		_ = json.Unmarshal(params, &p)
		css, ok := f.css[p.ModelName]
		if !ok {
			return nil, fmt.Sprintf("model was not found: %s", p.ModelName)
		}
		return map[string]string{"css": css}, ""

	case "createModel":
		var p struct {
			ModelName     string   `json:"modelName"`
			InOrderFields []string `json:"inOrderFields"`
			CardTemplates []struct {
				Name  string `json:"Name"`
				Front string `json:"Front"`
				Back  string `json:"Back"`
			} `json:"cardTemplates"`
			CSS string `json:"css"`
		}
		_ = json.Unmarshal(params, &p)
		if _, ok := f.models[p.ModelName]; ok {
			return nil, fmt.Sprintf("model already exists: %s", p.ModelName)
		}
		f.models[p.ModelName] = p.InOrderFields
		f.templates[p.ModelName] = map[string]map[string]string{}
		for _, tpl := range p.CardTemplates {
			f.templates[p.ModelName][tpl.Name] = map[string]string{"Front": tpl.Front, "Back": tpl.Back}
		}
		f.css[p.ModelName] = p.CSS
		return map[string]any{"id": len(f.models)}, ""

	case "storeMediaFile":
		var p struct {
			Filename string `json:"filename"`
			Data     string `json:"data"`
		}
		_ = json.Unmarshal(params, &p)
		f.mediaFiles[p.Filename] = p.Data
		return p.Filename, ""

	case "getMediaFilesNames":
		var p struct {
			Pattern string `json:"pattern"`
		}
		_ = json.Unmarshal(params, &p)
		names := []string{}
		for name := range f.mediaFiles {
			if ok, _ := path.Match(p.Pattern, name); ok {
				names = append(names, name)
			}
		}
		return names, ""

	case "retrieveMediaFile":
		var p struct {
			Filename string `json:"filename"`
		}
		_ = json.Unmarshal(params, &p)
		data, ok := f.mediaFiles[p.Filename]
		if !ok {
			return false, ""
		}
		return data, ""

	case "getMediaDirPath":
		return "/fake/collection.media", ""

	default:
		return nil, fmt.Sprintf("unsupported action: %s", action)
	}
}
