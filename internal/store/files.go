package store

import (
	"context"
	"database/sql"

	"github.com/shopmindai/chatcore/internal/apperr"
	"github.com/shopmindai/chatcore/internal/domain"
)

// File loads a file row by id.
func (s *Store) File(ctx context.Context, fileID int64) (domain.File, error) {
	var f domain.File
	var isProfile int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, path, mime, is_profile_img, created_at FROM files WHERE id = ?`, fileID).
		Scan(&f.ID, &f.Path, &f.Mime, &isProfile, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.File{}, apperr.New(apperr.NotFound, "file not found")
	}
	if err != nil {
		return domain.File{}, apperr.Wrap(apperr.Internal, "load file", err)
	}
	f.IsProfileImg = isProfile != 0
	return f, nil
}

// UserUploadedFile reports whether userID has an upload row for fileID.
func (s *Store) UserUploadedFile(ctx context.Context, userID, fileID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM user_file_uploads WHERE user_id = ? AND file_id = ?`, userID, fileID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "check file upload ownership", err)
	}
	return true, nil
}

// FileVisibleInConversation reports whether fileID is already attached
// to some message in a conversation userID is a member of — the second
// eligibility path of the attachment resolver (§4.6).
func (s *Store) FileVisibleInConversation(ctx context.Context, userID, fileID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM messages msg
		JOIN memberships m ON m.conversation_id = msg.conversation_id
		WHERE msg.file_id = ? AND m.user_id = ?
		LIMIT 1`, fileID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "check file visibility", err)
	}
	return true, nil
}

// UserSettings loads a user's settings row, returning sensible zero
// values (AI disabled, system theme) if none exists yet.
func (s *Store) UserSettings(ctx context.Context, userID int64) (domain.UserSettings, error) {
	var us domain.UserSettings
	var aiModelID sql.NullInt64
	var aiEnabled int
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, ai_model_id, ai_enabled, theme, modified_at FROM user_settings WHERE user_id = ?`, userID).
		Scan(&us.UserID, &aiModelID, &aiEnabled, &us.Theme, &us.ModifiedAt)
	if err == sql.ErrNoRows {
		return domain.UserSettings{UserID: userID, Theme: "system"}, nil
	}
	if err != nil {
		return domain.UserSettings{}, apperr.Wrap(apperr.Internal, "load user settings", err)
	}
	us.AIEnabled = aiEnabled != 0
	if aiModelID.Valid {
		us.AIModelID = &aiModelID.Int64
	}
	return us, nil
}

// AIModel loads an AI model by id, used to validate a SendMessage's
// aiModelId before invoking the orchestrator.
func (s *Store) AIModel(ctx context.Context, id int64) (domain.AIModel, error) {
	var m domain.AIModel
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM ai_models WHERE id = ?`, id).Scan(&m.ID, &m.Name)
	if err == sql.ErrNoRows {
		return domain.AIModel{}, apperr.New(apperr.NotFound, "ai model not found")
	}
	if err != nil {
		return domain.AIModel{}, apperr.Wrap(apperr.Internal, "load ai model", err)
	}
	return m, nil
}
