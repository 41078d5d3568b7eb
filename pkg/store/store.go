package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailrake/mailrake/pkg/mail"
	"github.com/mailrake/mailrake/pkg/reliability"
)

// processedStampLayout names processed artifacts by message time so the
// directory sorts chronologically.
const processedStampLayout = "2006-01-02-15-04-05"

// imagesDirName is the per-conversation subdirectory for inline image bytes.
const imagesDirName = "images"

// Store persists harvested messages and answers the skip predicate used
// to keep ingestion idempotent. RawRoot holds freshly extracted messages;
// ProcessedRoot holds the downstream artifacts that gate re-ingestion
// even after the raw copy is deleted.
type Store struct {
	rawRoot       string
	processedRoot string
	log           *zerolog.Logger
	filePolicy    reliability.Policy
}

// New creates a Store rooted at the two directories. Both may use a
// leading ~ for the user's home directory.
func New(rawRoot, processedRoot string, log *zerolog.Logger, registry *reliability.Registry) (*Store, error) {
	raw, err := ExpandHome(rawRoot)
	if err != nil {
		return nil, fmt.Errorf("raw root: %w", err)
	}
	processed, err := ExpandHome(processedRoot)
	if err != nil {
		return nil, fmt.Errorf("processed root: %w", err)
	}
	logger := log.With().Str("component", "store").Logger()
	return &Store{
		rawRoot:       raw,
		processedRoot: processed,
		log:           &logger,
		filePolicy:    registry.Get(reliability.PolicyFileIO),
	}, nil
}

// RawRoot returns the expanded raw storage root.
func (s *Store) RawRoot() string { return s.rawRoot }

// Save writes the message JSON to {rawRoot}/{conversationId}/{messageId}.json
// and any inline image bytes to the conversation's images directory.
// Failures after retries propagate: a silently lost message would never be
// skip-detected and never retried, so this is the one path where failure
// must be loud.
func (s *Store) Save(ctx context.Context, msg *mail.Message) error {
	folder := filepath.Join(s.rawRoot, msg.ConversationID)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return fmt.Errorf("create conversation dir: %w", err)
	}

	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal message %s: %w", msg.MessageID, err)
	}

	jsonPath := filepath.Join(folder, msg.MessageID+".json")
	if err := s.filePolicy.Execute(ctx, func() error {
		return os.WriteFile(jsonPath, data, 0o644)
	}); err != nil {
		s.log.Error().Err(err).
			Str("message_id", msg.MessageID).
			Str("conversation_id", msg.ConversationID).
			Msg("Failed to persist message")
		return fmt.Errorf("write %s: %w", jsonPath, err)
	}

	if err := s.saveImages(ctx, folder, msg); err != nil {
		return err
	}

	s.log.Info().
		Str("message_id", msg.MessageID).
		Str("path", jsonPath).
		Msg("Saved message")
	return nil
}

func (s *Store) saveImages(ctx context.Context, folder string, msg *mail.Message) error {
	withBytes := 0
	for i := range msg.Images {
		if len(msg.Images[i].Bytes) > 0 {
			withBytes++
		}
	}
	if withBytes == 0 {
		return nil
	}

	imageDir := filepath.Join(folder, imagesDirName)
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		return fmt.Errorf("create images dir: %w", err)
	}
	for i := range msg.Images {
		img := &msg.Images[i]
		if len(img.Bytes) == 0 {
			continue
		}
		path := filepath.Join(imageDir, img.FileName())
		if err := s.filePolicy.Execute(ctx, func() error {
			return os.WriteFile(path, img.Bytes, 0o644)
		}); err != nil {
			return fmt.Errorf("write image %s: %w", path, err)
		}
		s.log.Debug().Str("path", path).Msg("Saved inline image")
	}
	return nil
}

// ShouldSkip reports whether the message was already ingested: either its
// raw JSON still exists, or a processed artifact named by timestamp and
// message id exists. The second check keeps fully processed messages from
// being re-ingested after raw cleanup.
func (s *Store) ShouldSkip(conversationID, messageID string, ts time.Time) bool {
	rawPath := filepath.Join(s.rawRoot, conversationID, messageID+".json")
	if fileExists(rawPath) {
		s.log.Debug().
			Str("message_id", messageID).
			Str("conversation_id", conversationID).
			Msg("Skipping already saved message")
		return true
	}

	pattern := filepath.Join(s.processedRoot, conversationID,
		ts.Format(processedStampLayout)+"-"+messageID+".*")
	matches, err := filepath.Glob(pattern)
	if err == nil && len(matches) > 0 {
		s.log.Debug().
			Str("message_id", messageID).
			Str("conversation_id", conversationID).
			Msg("Skipping already processed message")
		return true
	}
	return false
}

// SaveProcessed writes the summary-enriched message into the processed
// root as {timestamp}-{messageId}.json. Its existence gates re-ingestion.
func (s *Store) SaveProcessed(ctx context.Context, msg *mail.Message) error {
	folder := filepath.Join(s.processedRoot, msg.ConversationID)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return fmt.Errorf("create processed dir: %w", err)
	}

	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal message %s: %w", msg.MessageID, err)
	}

	name := msg.Timestamp.Format(processedStampLayout) + "-" + msg.MessageID + ".json"
	path := filepath.Join(folder, name)
	if err := s.filePolicy.Execute(ctx, func() error {
		return os.WriteFile(path, data, 0o644)
	}); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	s.log.Info().Str("message_id", msg.MessageID).Str("path", path).Msg("Saved processed message")
	return nil
}

// DeleteRaw removes the raw JSON for a message, its stored images, and
// any directories left empty. Everything here is best-effort: cleanup
// failing must never fail the pipeline.
func (s *Store) DeleteRaw(msg *mail.Message) {
	convoDir := filepath.Join(s.rawRoot, msg.ConversationID)
	jsonPath := filepath.Join(convoDir, msg.MessageID+".json")

	if err := os.Remove(jsonPath); err != nil && !os.IsNotExist(err) {
		s.log.Warn().Err(err).Str("path", jsonPath).Msg("Failed to delete raw message file")
	}

	imagesDir := filepath.Join(convoDir, imagesDirName)
	for i := range msg.Images {
		path := filepath.Join(imagesDir, msg.Images[i].FileName())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", path).Msg("Failed to delete image file")
		}
	}

	// Directories only go away once nothing else references them.
	_ = os.Remove(imagesDir)
	_ = os.Remove(convoDir)
}

// ListRaw returns the raw message JSON paths, sorted for stable
// iteration. Image files are not included.
func (s *Store) ListRaw() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.rawRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".json") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.rawRoot, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadRaw decodes one raw message file.
func (s *Store) LoadRaw(path string) (*mail.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var msg mail.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &msg, nil
}

// SweepEmptyDirs removes conversation directories that no longer hold any
// files. Best-effort.
func (s *Store) SweepEmptyDirs() {
	entries, err := os.ReadDir(s.rawRoot)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(s.rawRoot, e.Name())
		_ = os.Remove(filepath.Join(dir, imagesDirName))
		if err := os.Remove(dir); err == nil {
			s.log.Debug().Str("dir", dir).Msg("Removed empty conversation directory")
		}
	}
}

// ExpandHome resolves a leading ~ to the current user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/")), nil
	}
	return path, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
