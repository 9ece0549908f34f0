package mcpserver

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ansuz/internal/tts"
)

func (s *Server) registerAudioTools() {
	s.mcp.AddTool(mcp.NewTool("generate_audio",
		mcp.WithDescription("Generate speech audio from text and return it as base64-encoded MP3 data."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to convert to speech")),
		mcp.WithString("provider", mcp.Description("TTS provider: elevenlabs or google"), mcp.DefaultString(tts.ProviderElevenLabs)),
		mcp.WithString("voice", mcp.Description("Voice ID (elevenlabs) or voice name (google); provider default when omitted")),
		mcp.WithString("language", mcp.Description("Language code for google voices (e.g. 'cmn-cn', 'en-US')")),
	), s.generateAudio)

	s.mcp.AddTool(mcp.NewTool("save_media_file",
		mcp.WithDescription("Save a media payload into Anki's media collection. Provide either base64_data "+
			"or file_path, not both."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Name for the file (e.g. 'audio.mp3', 'image.jpg')")),
		mcp.WithString("base64_data", mcp.Description("Base64 encoded file data")),
		mcp.WithString("file_path", mcp.Description("Local path of a file to read and store")),
		mcp.WithString("media_type", mcp.Description("Type of media file (audio, image, etc.)"), mcp.DefaultString("audio")),
	), s.saveMediaFile)

	s.mcp.AddTool(mcp.NewTool("generate_and_save_audio",
		mcp.WithDescription("Generate speech audio and save it to Anki's media collection, returning a "+
			"[sound:...] tag ready to paste into a card field."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to convert to speech and save")),
		mcp.WithString("filename", mcp.Description("Name for the audio file; derived from the text when omitted")),
		mcp.WithString("provider", mcp.Description("TTS provider: elevenlabs or google"), mcp.DefaultString(tts.ProviderElevenLabs)),
		mcp.WithString("voice", mcp.Description("Voice ID or name; provider default when omitted")),
		mcp.WithString("language", mcp.Description("Language code for google voices")),
	), s.generateAndSaveAudio)

	s.mcp.AddTool(mcp.NewTool("list_media_files",
		mcp.WithDescription("List files in Anki's media collection, optionally filtered by a glob pattern."),
		mcp.WithString("pattern", mcp.Description("Glob pattern (e.g. '*.mp3')"), mcp.DefaultString("*")),
	), s.listMediaFiles)

	s.mcp.AddTool(mcp.NewTool("media_file_exists",
		mcp.WithDescription("Check whether a file with exactly this name exists in the media collection."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Exact filename to check")),
	), s.mediaFileExists)

	s.mcp.AddTool(mcp.NewTool("retrieve_media_file",
		mcp.WithDescription("Retrieve a file from the media collection."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Name of the file to retrieve")),
		mcp.WithBoolean("return_base64", mcp.Description("Include the base64 contents in the result"), mcp.DefaultBool(true)),
	), s.retrieveMediaFile)

	s.mcp.AddTool(mcp.NewTool("get_media_directory",
		mcp.WithDescription("Get the absolute path of Anki's media collection directory."),
	), s.getMediaDirectory)
}

func (s *Server) generateAudio(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	clip, err := s.svc.GenerateAudio(ctx, tts.Request{
		Text:     text,
		Provider: req.GetString("provider", ""),
		Voice:    req.GetString("voice", ""),
		Language: req.GetString("language", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"success":      true,
		"audio_base64": base64.StdEncoding.EncodeToString(clip.Audio),
		"format":       clip.Format,
		"provider":     clip.Provider,
		"voice":        clip.Voice,
		"language":     clip.Language,
		"model":        clip.Model,
		"text":         text,
	})
}

func (s *Server) saveMediaFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data := req.GetString("base64_data", "")
	path := req.GetString("file_path", "")
	if (data == "") == (path == "") {
		return mcp.NewToolResultError("provide exactly one of base64_data or file_path"), nil
	}

	var saved string
	if data != "" {
		saved, err = s.svc.Media().SaveBase64(ctx, filename, data)
	} else {
		saved, err = s.svc.Media().SaveFromFile(ctx, filename, path)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"success":    true,
		"filename":   saved,
		"media_type": req.GetString("media_type", "audio"),
		"message":    fmt.Sprintf("Media file saved as '%s' in Anki's media collection", saved),
	})
}

func (s *Server) generateAndSaveAudio(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	saved, err := s.svc.GenerateAndSaveAudio(ctx, tts.Request{
		Text:     text,
		Provider: req.GetString("provider", ""),
		Voice:    req.GetString("voice", ""),
		Language: req.GetString("language", ""),
	}, req.GetString("filename", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"success":   true,
		"filename":  saved.Filename,
		"sound_tag": saved.SoundTag,
		"provider":  saved.Provider,
		"voice":     saved.Voice,
		"text":      text,
		"message": fmt.Sprintf("Audio generated and saved as '%s'. Use %s in your card fields.",
			saved.Filename, saved.SoundTag),
	})
}

func (s *Server) listMediaFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pattern := req.GetString("pattern", "*")
	files, err := s.svc.Media().List(ctx, pattern)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if files == nil {
		files = []string{}
	}
	return jsonResult(map[string]any{
		"success": true,
		"pattern": pattern,
		"count":   len(files),
		"files":   files,
	})
}

func (s *Server) mediaFileExists(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	exists, err := s.svc.Media().Exists(ctx, filename)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"success":  true,
		"filename": filename,
		"exists":   exists,
	})
}

func (s *Server) retrieveMediaFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.svc.Media().Retrieve(ctx, filename)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := map[string]any{
		"success":    true,
		"filename":   filename,
		"size_bytes": len(raw),
	}
	if req.GetBool("return_base64", true) {
		out["base64_data"] = data
	}
	return jsonResult(out)
}

func (s *Server) getMediaDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := s.svc.Media().Dir(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"success":         true,
		"media_directory": dir,
	})
}
