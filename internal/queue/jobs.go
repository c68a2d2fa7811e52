package queue

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/iliyamo/happiness-journal/internal/logger"
	"github.com/iliyamo/happiness-journal/internal/mailer"
	"github.com/iliyamo/happiness-journal/internal/model"
)

// EntryLister returns every happiness entry of a user, oldest first.
type EntryLister interface {
	ListAll(ctx context.Context, userID uint64) ([]model.Happiness, error)
}

// ExportJob renders a user's entries as CSV and mails them.
type ExportJob struct {
	Entries EntryLister
	Mail    mailer.Sender
}

func (j *ExportJob) Handle(ctx context.Context, body []byte) error {
	var ev ExportRequested
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal export request: %w", err)
	}
	entries, err := j.Entries.ListAll(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, entries); err != nil {
		return err
	}
	logger.WithContext(ctx).Info("export rendered", zap.Uint64("user_id", ev.UserID), zap.Int("rows", len(entries)))

	return j.Mail.Send(ctx, mailer.Message{
		To:      ev.Email,
		Subject: "Your happiness export",
		Body:    fmt.Sprintf("Hi %s,\n\nYour happiness entries are attached.\n", ev.Username),
		Attachments: []mailer.Attachment{{
			Filename:    "happiness.csv",
			ContentType: "text/csv",
			Data:        buf.Bytes(),
		}},
	})
}

// WriteCSV writes the header value,comment,timestamp and one row per entry.
func WriteCSV(w io.Writer, entries []model.Happiness) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"value", "comment", "timestamp"}); err != nil {
		return err
	}
	for _, h := range entries {
		row := []string{strconv.FormatFloat(h.Value, 'f', -1, 64), h.Comment, h.Timestamp.String()}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// EmailJob sends queued messages.
type EmailJob struct {
	Mail mailer.Sender
}

func (j *EmailJob) Handle(ctx context.Context, body []byte) error {
	var ev EmailSend
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal email: %w", err)
	}
	return j.Mail.Send(ctx, ev.Message)
}
