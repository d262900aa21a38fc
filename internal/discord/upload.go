package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// CreateSticker uploads a new guild sticker.
//
// Sticker creation is a multipart endpoint, so it goes through the plain
// HTTP client rather than the JSON REST plumbing. Discord accepts PNG, APNG,
// GIF and Lottie files up to 512KiB.
func (s *Session) CreateSticker(ctx context.Context, guildID, name, description, tags, filename string, file io.Reader) (Sticker, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Sticker{}, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, value := range map[string]string{
		"name":        name,
		"description": description,
		"tags":        tags,
	} {
		if err := mw.WriteField(field, value); err != nil {
			return Sticker{}, fmt.Errorf("sticker form: %w", err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Sticker{}, fmt.Errorf("sticker form file: %w", err)
	}
	if _, err := io.Copy(fw, file); err != nil {
		return Sticker{}, fmt.Errorf("sticker payload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Sticker{}, fmt.Errorf("sticker form close: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBase+"/guilds/"+guildID+"/stickers", &buf)
	if err != nil {
		return Sticker{}, err
	}
	req.Header.Set("Authorization", "Bot "+s.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := httpClient.Do(req)
	if err != nil {
		return Sticker{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Sticker{}, fmt.Errorf("create sticker: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var st Sticker
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return Sticker{}, fmt.Errorf("decode sticker: %w", err)
	}
	return st, nil
}
