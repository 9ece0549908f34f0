package mcpserver

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ansuz/internal/anki"
	"github.com/starford/ansuz/internal/media"
	"github.com/starford/ansuz/internal/noteservice"
	"github.com/starford/ansuz/internal/testutil"
	"github.com/starford/ansuz/internal/tts"
)

func testServer(t *testing.T) (*Server, *testutil.FakeAnki) {
	t.Helper()
	fake := testutil.NewFakeAnki(t)
	client := anki.NewClient(fake.URL())
	svc := noteservice.NewService(client, media.NewHelper(client), nil, nil)
	return New(svc), fake
}

// testServerWithTTS wires an ElevenLabs synthesizer against a local fake
// that always returns the same MP3 bytes.
func testServerWithTTS(t *testing.T) (*Server, *testutil.FakeAnki, []byte) {
	t.Helper()
	audio := []byte("fake mp3 audio")
	ttsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(audio)
	}))
	t.Cleanup(ttsSrv.Close)

	el := tts.NewElevenLabs("test-key", "", "")
	el.BaseURL = ttsSrv.URL
	speech := tts.NewService(el, nil, tts.ProviderElevenLabs)

	fake := testutil.NewFakeAnki(t)
	client := anki.NewClient(fake.URL())
	svc := noteservice.NewService(client, media.NewHelper(client), speech, nil)
	return New(svc), fake, audio
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so tests dispatch to
	// the handler functions themselves.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_decks":
		result, err = srv.listDecks(ctx, req)
	case "get_deck_notes":
		result, err = srv.getDeckNotes(ctx, req)
	case "get_deck_sample":
		result, err = srv.getDeckSample(ctx, req)
	case "get_deck_note_types":
		result, err = srv.getDeckNoteTypes(ctx, req)
	case "list_note_types":
		result, err = srv.listNoteTypes(ctx, req)
	case "create_note":
		result, err = srv.createNote(ctx, req)
	case "update_note":
		result, err = srv.updateNote(ctx, req)
	case "create_deck_with_note_type":
		result, err = srv.createDeckWithNoteType(ctx, req)
	case "create_notes_bulk":
		result, err = srv.createNotesBulk(ctx, req)
	case "update_notes_bulk":
		result, err = srv.updateNotesBulk(ctx, req)
	case "find_similar_notes":
		result, err = srv.findSimilarNotes(ctx, req)
	case "find_semantic_notes":
		result, err = srv.findSemanticNotes(ctx, req)
	case "generate_audio":
		result, err = srv.generateAudio(ctx, req)
	case "save_media_file":
		result, err = srv.saveMediaFile(ctx, req)
	case "generate_and_save_audio":
		result, err = srv.generateAndSaveAudio(ctx, req)
	case "list_media_files":
		result, err = srv.listMediaFiles(ctx, req)
	case "media_file_exists":
		result, err = srv.mediaFileExists(ctx, req)
	case "retrieve_media_file":
		result, err = srv.retrieveMediaFile(ctx, req)
	case "get_media_directory":
		result, err = srv.getMediaDirectory(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListDecks(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_decks", map[string]interface{}{})
	text := resultText(r)
	if !strings.HasPrefix(text, "Available decks (1):") {
		t.Errorf("result = %q", text)
	}
	if !strings.Contains(text, "- Default") {
		t.Errorf("result = %q", text)
	}
}

func TestCreateThenReadNote(t *testing.T) {
	srv, fake := testServer(t)
	fake.AddModel("Basic", []string{"Front", "Back"})

	callTool(t, srv, "create_deck_with_note_type", map[string]interface{}{
		"deck_name":  "Test",
		"model_name": "Basic",
		"fields":     []interface{}{"Front", "Back"},
	})

	r := callTool(t, srv, "create_note", map[string]interface{}{
		"deck_name":  "Test",
		"model_name": "Basic",
		"fields":     map[string]interface{}{"Front": "1+1", "Back": "2"},
		"tags":       []interface{}{"math"},
	})
	if r.IsError {
		t.Fatalf("create_note error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"success": true`) {
		t.Errorf("create result = %q", resultText(r))
	}

	r = callTool(t, srv, "get_deck_notes", map[string]interface{}{"deck_name": "Test"})
	text := resultText(r)
	if !strings.Contains(text, "Notes in deck 'Test' (1 total):") {
		t.Errorf("result = %q", text)
	}
	if !strings.Contains(text, "Front: 1+1") || !strings.Contains(text, "Back: 2") {
		t.Errorf("result = %q", text)
	}
	if !strings.Contains(text, "Tags: math") {
		t.Errorf("result = %q", text)
	}
}

func TestGetDeckNotesEmpty(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_deck_notes", map[string]interface{}{"deck_name": "Default"})
	if got := resultText(r); got != "No notes found in deck 'Default'" {
		t.Errorf("result = %q", got)
	}
}

func TestGetDeckNotesMissingArg(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_deck_notes", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing deck_name")
	}
}

func TestGetDeckNotesTruncatesLongFields(t *testing.T) {
	srv, fake := testServer(t)
	fake.AddModel("Basic", []string{"Front"})
	long := strings.Repeat("x", 150)
	fake.SeedNote("Default", "Basic", map[string]string{"Front": long}, nil)

	r := callTool(t, srv, "get_deck_notes", map[string]interface{}{"deck_name": "Default"})
	text := resultText(r)
	if strings.Contains(text, long) {
		t.Error("long field was not truncated")
	}
	if !strings.Contains(text, strings.Repeat("x", 100)+"...") {
		t.Errorf("result = %q", text)
	}
}

func TestGetDeckNotesTruncatesByRuneNotByte(t *testing.T) {
	srv, fake := testServer(t)
	fake.AddModel("Basic", []string{"Front"})
	long := strings.Repeat("你好吗", 50) // 150 runes, 450 bytes
	fake.SeedNote("Default", "Basic", map[string]string{"Front": long}, nil)

	r := callTool(t, srv, "get_deck_notes", map[string]interface{}{"deck_name": "Default"})
	text := resultText(r)
	if !utf8.ValidString(text) {
		t.Fatal("truncated output is not valid UTF-8")
	}
	want := strings.Repeat("你好吗", 33) + "你" + "..."
	if !strings.Contains(text, want) {
		t.Errorf("result = %q, want 100-character prefix ending in ...", text)
	}
	if strings.Contains(text, long) {
		t.Error("long field was not truncated")
	}
}

func TestGetDeckSample(t *testing.T) {
	srv, fake := testServer(t)
	fake.AddModel("Basic", []string{"Front"})
	for i := 0; i < 10; i++ {
		fake.SeedNote("Default", "Basic", map[string]string{"Front": string(rune('a' + i))}, nil)
	}

	r := callTool(t, srv, "get_deck_sample", map[string]interface{}{
		"deck_name":   "Default",
		"sample_size": float64(3),
	})
	text := resultText(r)
	if !strings.HasPrefix(text, "Sample of 3 notes from deck 'Default' (total: 10):") {
		t.Errorf("result = %q", text)
	}

	r = callTool(t, srv, "get_deck_sample", map[string]interface{}{
		"deck_name":   "Default",
		"sample_size": float64(99),
	})
	if !r.IsError {
		t.Error("expected error for out-of-range sample_size")
	}
}

func TestGetDeckNoteTypes(t *testing.T) {
	srv, fake := testServer(t)
	fake.AddModel("Basic", []string{"Front", "Back"})
	fake.SeedNote("Default", "Basic", map[string]string{"Front": "a"}, nil)

	r := callTool(t, srv, "get_deck_note_types", map[string]interface{}{"deck_name": "Default"})
	text := resultText(r)
	if !strings.Contains(text, "Model: Basic") || !strings.Contains(text, "Fields: Front, Back") {
		t.Errorf("result = %q", text)
	}
}

func TestListNoteTypes(t *testing.T) {
	srv, fake := testServer(t)
	fake.AddModel("Basic", []string{"Front", "Back"})

	r := callTool(t, srv, "list_note_types", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, "Model: Basic") || !strings.Contains(text, "Templates: 1 card type(s)") {
		t.Errorf("result = %q", text)
	}
}

func TestUpdateNote(t *testing.T) {
	srv, fake := testServer(t)
	fake.AddModel("Basic", []string{"Front", "Back"})
	id := fake.SeedNote("Default", "Basic", map[string]string{"Front": "q", "Back": "a"}, nil)

	r := callTool(t, srv, "update_note", map[string]interface{}{
		"note_id": float64(id),
		"fields":  map[string]interface{}{"Back": "better"},
	})
	if r.IsError {
		t.Fatalf("update_note error: %s", resultText(r))
	}
	if got := fake.NoteByID(id).Fields["Back"]; got != "better" {
		t.Errorf("Back = %q", got)
	}
	if got := fake.NoteByID(id).Fields["Front"]; got != "q" {
		t.Errorf("Front = %q, want unchanged", got)
	}
}

func TestUpdateNoteMissing(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "update_note", map[string]interface{}{
		"note_id": float64(12345),
		"fields":  map[string]interface{}{"Front": "x"},
	})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestCreateNoteStoreErrorIsToolError(t *testing.T) {
	srv, fake := testServer(t)
	fake.AddModel("Basic", []string{"Front"})
	fake.ForceError("addNote", "deck was not found: Ghost")

	r := callTool(t, srv, "create_note", map[string]interface{}{
		"deck_name":  "Ghost",
		"model_name": "Basic",
		"fields":     map[string]interface{}{"Front": "x"},
	})
	if !r.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(resultText(r), "deck was not found") {
		t.Errorf("error text = %q", resultText(r))
	}
}

func TestCreateNotesBulk(t *testing.T) {
	srv, fake := testServer(t)
	fake.AddModel("Basic", []string{"Front", "Back"})
	fake.SeedNote("Default", "Basic", map[string]string{"Front": "dup"}, nil)

	r := callTool(t, srv, "create_notes_bulk", map[string]interface{}{
		"deck_name": "Default",
		"notes_list": []interface{}{
			map[string]interface{}{
				"model_name": "Basic",
				"fields":     map[string]interface{}{"Front": "new", "Back": "n"},
			},
			map[string]interface{}{
				"model_name": "Basic",
				"fields":     map[string]interface{}{"Front": "dup"},
			},
		},
	})
	if r.IsError {
		t.Fatalf("create_notes_bulk error: %s", resultText(r))
	}
	text := resultText(r)
	if !strings.Contains(text, `"successful_count": 1`) || !strings.Contains(text, `"failed_count": 1`) {
		t.Errorf("result = %q", text)
	}
	if !strings.Contains(text, "duplicate") {
		t.Errorf("result = %q", text)
	}
	if fake.Calls("addNotes") != 1 {
		t.Errorf("addNotes calls = %d, want 1", fake.Calls("addNotes"))
	}
}

func TestUpdateNotesBulk(t *testing.T) {
	srv, fake := testServer(t)
	fake.AddModel("Basic", []string{"Front", "Back"})
	id := fake.SeedNote("Default", "Basic", map[string]string{"Front": "a", "Back": "1"}, nil)

	r := callTool(t, srv, "update_notes_bulk", map[string]interface{}{
		"updates": []interface{}{
			map[string]interface{}{
				"note_id": float64(id),
				"fields":  map[string]interface{}{"Back": "one"},
			},
			map[string]interface{}{
				"note_id": float64(999),
				"fields":  map[string]interface{}{"Back": "ghost"},
			},
		},
	})
	if r.IsError {
		t.Fatalf("update_notes_bulk error: %s", resultText(r))
	}
	text := resultText(r)
	if !strings.Contains(text, "Successfully updated 1 out of 2 notes") {
		t.Errorf("result = %q", text)
	}
}

func TestFindSimilarNotes(t *testing.T) {
	srv, fake := testServer(t)
	fake.AddModel("Basic", []string{"Front", "Back"})
	fake.SeedNote("Default", "Basic", map[string]string{"Front": "Hello world", "Back": "greeting"}, nil)
	fake.SeedNote("Default", "Basic", map[string]string{"Front": "bye"}, nil)

	r := callTool(t, srv, "find_similar_notes", map[string]interface{}{
		"deck_name":   "Default",
		"search_text": "hello",
	})
	if r.IsError {
		t.Fatalf("find_similar_notes error: %s", resultText(r))
	}
	text := resultText(r)
	if !strings.Contains(text, `"found_count": 1`) {
		t.Errorf("result = %q", text)
	}

	// Case sensitive search for the lowercase query matches nothing.
	r = callTool(t, srv, "find_similar_notes", map[string]interface{}{
		"deck_name":      "Default",
		"search_text":    "hello",
		"case_sensitive": true,
	})
	if !strings.Contains(resultText(r), `"found_count": 0`) {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestFindSemanticNotesWithoutKey(t *testing.T) {
	srv, fake := testServer(t)
	fake.AddModel("Basic", []string{"Front"})
	fake.SeedNote("Default", "Basic", map[string]string{"Front": "x"}, nil)

	r := callTool(t, srv, "find_semantic_notes", map[string]interface{}{
		"deck_name": "Default",
		"query":     "anything",
	})
	if !r.IsError {
		t.Fatal("expected error without embeddings credential")
	}
	if !strings.Contains(resultText(r), "OPENAI_API_KEY") {
		t.Errorf("error text = %q", resultText(r))
	}
}

func TestGenerateAudio(t *testing.T) {
	srv, _, audio := testServerWithTTS(t)

	r := callTool(t, srv, "generate_audio", map[string]interface{}{"text": "hello"})
	if r.IsError {
		t.Fatalf("generate_audio error: %s", resultText(r))
	}
	text := resultText(r)
	if !strings.Contains(text, base64.StdEncoding.EncodeToString(audio)) {
		t.Errorf("result missing audio payload: %q", text)
	}
	if !strings.Contains(text, `"provider": "elevenlabs"`) {
		t.Errorf("result = %q", text)
	}
}

func TestGenerateAudioWithoutCredential(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "generate_audio", map[string]interface{}{"text": "hello"})
	if !r.IsError {
		t.Fatal("expected error without tts credential")
	}
}

func TestGenerateAndSaveAudio(t *testing.T) {
	srv, _, _ := testServerWithTTS(t)

	r := callTool(t, srv, "generate_and_save_audio", map[string]interface{}{"text": "ni hao"})
	if r.IsError {
		t.Fatalf("generate_and_save_audio error: %s", resultText(r))
	}
	text := resultText(r)
	if !strings.Contains(text, `"sound_tag": "[sound:tts-`) {
		t.Errorf("result = %q", text)
	}

	// Same text and voice derive the same filename; only one file exists.
	callTool(t, srv, "generate_and_save_audio", map[string]interface{}{"text": "ni hao"})
	list := callTool(t, srv, "list_media_files", map[string]interface{}{"pattern": "tts-*.mp3"})
	if !strings.Contains(resultText(list), `"count": 1`) {
		t.Errorf("list = %q", resultText(list))
	}
}

func TestSaveMediaFile(t *testing.T) {
	srv, fake := testServer(t)
	payload := base64.StdEncoding.EncodeToString([]byte("img"))

	r := callTool(t, srv, "save_media_file", map[string]interface{}{
		"filename":    "pic.jpg",
		"base64_data": payload,
		"media_type":  "image",
	})
	if r.IsError {
		t.Fatalf("save_media_file error: %s", resultText(r))
	}
	if _, ok := fake.Media("pic.jpg"); !ok {
		t.Error("file was not stored")
	}

	// Both sources at once is rejected.
	r = callTool(t, srv, "save_media_file", map[string]interface{}{
		"filename":    "pic.jpg",
		"base64_data": payload,
		"file_path":   "/tmp/x",
	})
	if !r.IsError {
		t.Error("expected error for ambiguous source")
	}

	// Neither source is rejected too.
	r = callTool(t, srv, "save_media_file", map[string]interface{}{"filename": "pic.jpg"})
	if !r.IsError {
		t.Error("expected error for missing source")
	}
}

func TestMediaFileExistsAndRetrieve(t *testing.T) {
	srv, _ := testServer(t)
	payload := base64.StdEncoding.EncodeToString([]byte("audio"))
	callTool(t, srv, "save_media_file", map[string]interface{}{
		"filename":    "clip.mp3",
		"base64_data": payload,
	})

	r := callTool(t, srv, "media_file_exists", map[string]interface{}{"filename": "clip.mp3"})
	if !strings.Contains(resultText(r), `"exists": true`) {
		t.Errorf("result = %q", resultText(r))
	}

	r = callTool(t, srv, "retrieve_media_file", map[string]interface{}{"filename": "clip.mp3"})
	if !strings.Contains(resultText(r), payload) {
		t.Errorf("result = %q", resultText(r))
	}
	// Exact decoded size, not the padded decode-buffer bound.
	if !strings.Contains(resultText(r), `"size_bytes": 5`) {
		t.Errorf("result = %q", resultText(r))
	}

	r = callTool(t, srv, "retrieve_media_file", map[string]interface{}{
		"filename":      "clip.mp3",
		"return_base64": false,
	})
	text := resultText(r)
	if strings.Contains(text, payload) {
		t.Error("base64 payload included despite return_base64=false")
	}
	if !strings.Contains(text, `"size_bytes"`) {
		t.Errorf("result = %q", text)
	}

	r = callTool(t, srv, "retrieve_media_file", map[string]interface{}{"filename": "missing.mp3"})
	if !r.IsError {
		t.Error("expected error for missing file")
	}
}

func TestGetMediaDirectory(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_media_directory", map[string]interface{}{})
	if !strings.Contains(resultText(r), "/fake/collection.media") {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestCardFormatResource(t *testing.T) {
	srv, _ := testServer(t)

	contents, err := srv.readCardFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("read resource: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("contents type = %T", contents[0])
	}
	if !strings.Contains(tc.Text, "duplicate key") {
		t.Errorf("resource text = %q", tc.Text)
	}
}
