// Package imessage extracts raw records from a macOS Messages chat.db store.
package imessage

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/jo25425/dona-sub000/internal/core"
	"github.com/jo25425/dona-sub000/internal/donation"
)

// appleEpochMillis is 2001-01-01T00:00:00Z in Unix milliseconds.
const appleEpochMillis = 978307200000

const messagesQuery = `SELECT COALESCE(m.text, '') AS text,
       COALESCE(m.date, 0) AS date,
       COALESCE(m.handle_id, 0) AS handle_id,
       COALESCE(c.group_id, '') AS group_id,
       COALESCE(m.is_from_me, 0) AS is_from_me,
       COALESCE(m.is_audio_message, 0) AS is_audio_message,
       COALESCE((SELECT a.mime_type FROM message_attachment_join maj
                 JOIN attachment a ON a.ROWID = maj.attachment_id
                 WHERE maj.message_id = m.ROWID LIMIT 1), '') AS mime_type
FROM message m
JOIN chat_message_join cmj ON m.ROWID = cmj.message_id
JOIN chat c ON cmj.chat_id = c.ROWID
WHERE COALESCE(m.error, 0) = 0 AND c.group_id IS NOT NULL
ORDER BY m.date, m.ROWID;`

const groupsQuery = `SELECT DISTINCT group_id FROM chat
WHERE group_id IS NOT NULL AND room_name IS NOT NULL AND room_name != '';`

type Options struct {
	Logger *slog.Logger
	// NewDonorKey generates the donor's sender key. Defaults to uuid.NewString.
	NewDonorKey func() string
}

type row struct {
	text     string
	date     int64
	handleID int64
	groupID  string
	fromMe   bool
	audio    bool
	mimeType string
}

// Extract reads exactly one chat.db store.
func Extract(ctx context.Context, files []core.File, opts Options) (core.Extraction, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newKey := opts.NewDonorKey
	if newKey == nil {
		newKey = uuid.NewString
	}
	switch {
	case len(files) == 0:
		return core.Extraction{}, donation.New(donation.NoFiles, nil)
	case len(files) > 1:
		return core.Extraction{}, donation.New(donation.WrongFileCount, map[string]any{"count": len(files), "max": 1})
	}

	db, cleanup, err := openStore(ctx, files[0].Data)
	if err != nil {
		return core.Extraction{}, err
	}
	defer cleanup()

	groups, err := queryGroups(ctx, db)
	if err != nil {
		return core.Extraction{}, err
	}
	rows, err := queryMessages(ctx, db)
	if err != nil {
		return core.Extraction{}, err
	}

	out := core.Extraction{Source: core.IMessage}
	seen := make(map[string]struct{})
	attachments := 0
	for _, r := range rows {
		if _, ok := seen[r.groupID]; !ok {
			seen[r.groupID] = struct{}{}
			_, group := groups[r.groupID]
			out.Conversations = append(out.Conversations, core.ConversationMeta{Key: r.groupID, Group: group})
		}

		sender := strconv.FormatInt(r.handleID, 10)
		if r.fromMe {
			if out.DonorName == "" {
				out.DonorName = newKey()
			}
			sender = out.DonorName
		}
		if r.mimeType != "" {
			attachments++
		}

		var payload core.Payload
		if r.audio {
			payload = core.AudioPayload{LengthSeconds: core.DurationUnknown}
		} else {
			payload = core.TextPayload{WordCount: len(strings.Fields(r.text)), Text: r.text}
		}
		out.Records = append(out.Records, core.RawRecord{
			SenderName:      sender,
			TimestampMillis: ToUnixMillis(r.date),
			ConversationKey: r.groupID,
			Payload:         payload,
		})
	}

	logger.Info("imessage: extracted",
		"conversations", len(out.Conversations),
		"groups", len(groups),
		"records", len(out.Records),
		"attachments", attachments,
	)
	return out, nil
}

// ToUnixMillis converts a Messages date column to Unix milliseconds. Modern
// stores write nanoseconds since 2001-01-01; older ones wrote seconds.
func ToUnixMillis(date int64) int64 {
	if date < 1e12 && date > -1e12 {
		return date*1000 + appleEpochMillis
	}
	return date/1e6 + appleEpochMillis
}

// openStore copies the store to a private temp file and opens it read-only.
func openStore(ctx context.Context, data []byte) (*sql.DB, func(), error) {
	f, err := os.CreateTemp("", "dona-imessage-*.db")
	if err != nil {
		return nil, nil, errors.Wrap(err, "create temp store")
	}
	path := f.Name()
	remove := func() { _ = os.Remove(path) }
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		remove()
		return nil, nil, errors.Wrap(err, "write temp store")
	}
	if err := f.Close(); err != nil {
		remove()
		return nil, nil, errors.Wrap(err, "close temp store")
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		remove()
		return nil, nil, errors.Wrap(err, "open store")
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA query_only=1;"); err != nil {
		_ = db.Close()
		remove()
		return nil, nil, errors.Wrap(err, "store pragma")
	}
	return db, func() {
		_ = db.Close()
		remove()
	}, nil
}

func queryGroups(ctx context.Context, db *sql.DB) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx, groupsQuery)
	if err != nil {
		return nil, errors.Wrap(err, "query groups")
	}
	defer rows.Close()

	groups := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan group")
		}
		groups[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate groups")
	}
	return groups, nil
}

func queryMessages(ctx context.Context, db *sql.DB) ([]row, error) {
	rows, err := db.QueryContext(ctx, messagesQuery)
	if err != nil {
		return nil, errors.Wrap(err, "query messages")
	}
	defer rows.Close()

	var out []row
	for rows.Next() {
		var (
			r             row
			fromMe, audio int64
		)
		if err := rows.Scan(&r.text, &r.date, &r.handleID, &r.groupID, &fromMe, &audio, &r.mimeType); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		r.fromMe = fromMe != 0
		r.audio = audio != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate messages")
	}
	return out, nil
}
