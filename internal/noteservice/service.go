// Package noteservice coordinates deck, note, and audio operations on
// top of the AnkiConnect client.
package noteservice

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/starford/ansuz/internal/anki"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/embeddings"
	"github.com/starford/ansuz/internal/media"
	"github.com/starford/ansuz/internal/similarity"
	"github.com/starford/ansuz/internal/tts"
)

// defaultCSS is applied to note types created without explicit styling.
const defaultCSS = ".card {\n font-family: arial;\n font-size: 20px;\n text-align: center;\n color: black;\n background-color: white;\n}\n"

// noteTypeSampleSize caps how many notes are inspected to discover the
// note types used in a deck.
const noteTypeSampleSize = 50

// Service exposes the bridge's domain operations. The embedder is nil
// when no embeddings credential was configured.
type Service struct {
	client   *anki.Client
	media    *media.Helper
	speech   *tts.Service
	embedder *embeddings.Client
}

// NewService wires the service. speech and embedder may be nil; the
// corresponding operations then fail with a configuration error.
func NewService(client *anki.Client, mediaHelper *media.Helper, speech *tts.Service, embedder *embeddings.Client) *Service {
	return &Service{client: client, media: mediaHelper, speech: speech, embedder: embedder}
}

// Client returns the underlying AnkiConnect client.
func (s *Service) Client() *anki.Client { return s.client }

// Media returns the media helper.
func (s *Service) Media() *media.Helper { return s.media }

// ListDecks returns all deck names.
func (s *Service) ListDecks(ctx context.Context) ([]string, error) {
	return s.client.DeckNames(ctx)
}

// DeckNotes returns every note in the deck, in store order.
func (s *Service) DeckNotes(ctx context.Context, deck string) ([]anki.Note, error) {
	ids, err := s.client.FindNotesInDeck(ctx, deck)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.client.NotesInfo(ctx, ids)
}

// SampleDeckNotes returns up to sampleSize randomly chosen notes from
// the deck along with the deck's total note count.
func (s *Service) SampleDeckNotes(ctx context.Context, deck string, sampleSize int) ([]anki.Note, int, error) {
	ids, err := s.client.FindNotesInDeck(ctx, deck)
	if err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return nil, 0, nil
	}
	sampled := sampleIDs(ids, sampleSize)
	notes, err := s.client.NotesInfo(ctx, sampled)
	if err != nil {
		return nil, 0, err
	}
	return notes, len(ids), nil
}

func sampleIDs(ids []int64, n int) []int64 {
	if n >= len(ids) {
		return ids
	}
	sampled := make([]int64, 0, n)
	for _, i := range rand.Perm(len(ids))[:n] {
		sampled = append(sampled, ids[i])
	}
	return sampled
}

// ModelFields pairs a note-type name with its ordered field names.
type ModelFields struct {
	Model  string   `json:"model"`
	Fields []string `json:"fields"`
}

// DeckNoteTypes samples the deck and returns the note types in use with
// their field definitions. A note type whose field lookup fails is
// skipped rather than failing the whole call.
func (s *Service) DeckNoteTypes(ctx context.Context, deck string) ([]ModelFields, error) {
	ids, err := s.client.FindNotesInDeck(ctx, deck)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	notes, err := s.client.NotesInfo(ctx, sampleIDs(ids, noteTypeSampleSize))
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var models []string
	for _, note := range notes {
		if !seen[note.Model] {
			seen[note.Model] = true
			models = append(models, note.Model)
		}
	}
	sort.Strings(models)

	var out []ModelFields
	for _, model := range models {
		fields, err := s.client.ModelFieldNames(ctx, model)
		if err != nil {
			continue
		}
		out = append(out, ModelFields{Model: model, Fields: fields})
	}
	return out, nil
}

// ModelInfo is the list_note_types description of one note type.
type ModelInfo struct {
	Name          string   `json:"name"`
	Fields        []string `json:"fields"`
	TemplateNames []string `json:"template_names"`
	CSSLength     int      `json:"css_length"`
}

// ListNoteTypes describes every note type in the collection. Per-model
// detail lookups that fail leave the corresponding slot empty, matching
// the forgiving behavior of the deck inspection tools.
func (s *Service) ListNoteTypes(ctx context.Context) ([]ModelInfo, error) {
	models, err := s.client.ModelNames(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(models)

	out := make([]ModelInfo, 0, len(models))
	for _, model := range models {
		info := ModelInfo{Name: model}
		if fields, err := s.client.ModelFieldNames(ctx, model); err == nil {
			info.Fields = fields
		}
		if templates, err := s.client.ModelTemplates(ctx, model); err == nil {
			for name := range templates {
				info.TemplateNames = append(info.TemplateNames, name)
			}
			sort.Strings(info.TemplateNames)
		}
		if css, err := s.client.ModelStyling(ctx, model); err == nil {
			info.CSSLength = len(css)
		}
		out = append(out, info)
	}
	return out, nil
}

// CreateNote adds one note and returns its assigned id.
func (s *Service) CreateNote(ctx context.Context, deck, model string, fields map[string]string, tags []string) (int64, error) {
	if tags == nil {
		tags = []string{}
	}
	return s.client.AddNote(ctx, anki.NoteInput{
		DeckName:  deck,
		ModelName: model,
		Fields:    fields,
		Tags:      tags,
	})
}

// UpdateNote merges the given fields into an existing note: fields not
// named keep their current values, and tags are replaced only when a
// non-nil slice is passed. Returns the names of the fields written.
func (s *Service) UpdateNote(ctx context.Context, noteID int64, fields map[string]string, tags []string) ([]string, error) {
	current, err := s.lookupNote(ctx, noteID)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]string, len(current.Fields))
	for name, field := range current.Fields {
		merged[name] = field.Value
	}
	updated := make([]string, 0, len(fields))
	for name, value := range fields {
		merged[name] = value
		updated = append(updated, name)
	}
	sort.Strings(updated)

	if tags == nil {
		tags = current.Tags
	}
	err = s.client.UpdateNoteFields(ctx, anki.NoteUpdate{ID: noteID, Fields: merged, Tags: tags})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) lookupNote(ctx context.Context, noteID int64) (*anki.Note, error) {
	notes, err := s.client.NotesInfo(ctx, []int64{noteID})
	if err != nil {
		return nil, err
	}
	// notesInfo reports a missing id as an empty record, not an error.
	if len(notes) == 0 || notes[0].ID == 0 {
		return nil, fmt.Errorf("note %d: %w", noteID, apperr.ErrNotFound)
	}
	return &notes[0], nil
}

// DeckSetup reports what create_deck_with_note_type did.
type DeckSetup struct {
	DeckID       int64  `json:"deck_id"`
	DeckName     string `json:"deck_name"`
	ModelName    string `json:"model_name"`
	ModelCreated bool   `json:"model_created"`
}

// CreateDeckWithNoteType creates a deck and, unless it already exists,
// a note type with the given fields. When no templates are supplied a
// basic front/back card is generated from the first one or two fields.
func (s *Service) CreateDeckWithNoteType(ctx context.Context, deck, model string, fields []string, templates []anki.CardTemplate) (*DeckSetup, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: at least one field is required", apperr.ErrInvalidInput)
	}

	deckID, err := s.client.CreateDeck(ctx, deck)
	if err != nil {
		return nil, err
	}

	existing, err := s.client.ModelNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range existing {
		if name == model {
			return &DeckSetup{DeckID: deckID, DeckName: deck, ModelName: model, ModelCreated: false}, nil
		}
	}

	if len(templates) == 0 {
		templates = []anki.CardTemplate{defaultTemplate(fields)}
	}
	if err := s.client.CreateModel(ctx, model, fields, templates, defaultCSS); err != nil {
		return nil, err
	}
	return &DeckSetup{DeckID: deckID, DeckName: deck, ModelName: model, ModelCreated: true}, nil
}

func defaultTemplate(fields []string) anki.CardTemplate {
	tpl := anki.CardTemplate{
		Name:  "Card 1",
		Front: "{{" + fields[0] + "}}",
		Back:  "{{" + fields[0] + "}}",
	}
	if len(fields) > 1 {
		tpl.Back = `{{FrontSide}}<hr id="answer">{{` + fields[1] + "}}"
	}
	return tpl
}

// GenerateAudio synthesizes speech for the given request.
func (s *Service) GenerateAudio(ctx context.Context, req tts.Request) (*tts.Clip, error) {
	if s.speech == nil {
		return nil, fmt.Errorf("tts: %w", apperr.ErrNoCredential)
	}
	return s.speech.Synthesize(ctx, req)
}

// SavedAudio reports where a synthesized clip ended up.
type SavedAudio struct {
	Filename string `json:"filename"`
	SoundTag string `json:"sound_tag"`
	Provider string `json:"provider"`
	Voice    string `json:"voice"`
}

// GenerateAndSaveAudio synthesizes speech and stores the clip in the
// media collection. An empty filename derives a stable name from the
// text and voice so repeated calls reuse the same file.
func (s *Service) GenerateAndSaveAudio(ctx context.Context, req tts.Request, filename string) (*SavedAudio, error) {
	clip, err := s.GenerateAudio(ctx, req)
	if err != nil {
		return nil, err
	}
	if filename == "" {
		filename = "tts-" + checksum.Short([]byte(req.Text+"|"+clip.Voice)) + ".mp3"
	}
	saved, err := s.media.SaveBytes(ctx, filename, clip.Audio)
	if err != nil {
		return nil, err
	}
	return &SavedAudio{
		Filename: saved,
		SoundTag: media.SoundTag(saved),
		Provider: clip.Provider,
		Voice:    clip.Voice,
	}, nil
}

// FindSimilar runs the substring strategy over a deck.
func (s *Service) FindSimilar(ctx context.Context, deck, text string, caseSensitive bool, maxResults int) ([]similarity.Result, error) {
	notes, err := s.DeckNotes(ctx, deck)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, fmt.Errorf("deck %q has no notes: %w", deck, apperr.ErrNotFound)
	}
	return similarity.MatchSubstring(text, notes, caseSensitive, maxResults), nil
}

// SemanticSearch runs the embedding strategy over a deck. The query and
// every note text are embedded in a single batched call.
func (s *Service) SemanticSearch(ctx context.Context, deck, query string, threshold float64, maxResults int) ([]similarity.Result, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("semantic search: %w (set OPENAI_API_KEY)", apperr.ErrNoCredential)
	}
	notes, err := s.DeckNotes(ctx, deck)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, fmt.Errorf("deck %q has no notes: %w", deck, apperr.ErrNotFound)
	}

	texts := make([]string, 0, len(notes)+1)
	texts = append(texts, query)
	for _, note := range notes {
		texts = append(texts, note.JoinedFieldText())
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	return similarity.RankByEmbedding(vectors[0], notes, vectors[1:], threshold, maxResults), nil
}
