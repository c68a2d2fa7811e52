package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iliyamo/happiness-journal/internal/database"
	"github.com/iliyamo/happiness-journal/internal/model"
	"github.com/iliyamo/happiness-journal/internal/repository"
)

// toolError is a failure the agent caused and can fix.  Its message is
// returned verbatim; other errors are reported as "internal error".
type toolError struct{ msg string }

func (e *toolError) Error() string { return e.msg }

func badArgs(format string, a ...any) error { return &toolError{msg: fmt.Sprintf(format, a...)} }

type tool struct {
	name        string
	description string
	inputSchema map[string]any
	run         func(ctx context.Context, userID uint64, args json.RawMessage) (any, error)
}

// Tools are the read-only queries exposed to agents.  Every call runs in
// its own read-only transaction on the shared pool.
type Tools struct {
	DB        *sql.DB
	Happiness *repository.HappinessRepo
	Groups    *repository.GroupRepo
}

func NewTools(db *sql.DB, happiness *repository.HappinessRepo, groups *repository.GroupRepo) *Tools {
	return &Tools{DB: db, Happiness: happiness, Groups: groups}
}

func dateProp(desc string) map[string]any {
	return map[string]any{"type": "string", "format": "date", "description": desc}
}

func object(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (t *Tools) catalog() []tool {
	return []tool{
		{
			name:        "list_happiness",
			description: "List the user's happiness entries between two dates (inclusive, YYYY-MM-DD).",
			inputSchema: object(map[string]any{
				"start_date": dateProp("first day"),
				"end_date":   dateProp("last day"),
			}, "start_date", "end_date"),
			run: t.listHappiness,
		},
		{
			name:        "search_happiness",
			description: "Search the user's happiness entries by comment text, date range and score range.",
			inputSchema: object(map[string]any{
				"query":      map[string]any{"type": "string", "description": "text contained in the comment"},
				"start_date": dateProp("earliest day"),
				"end_date":   dateProp("latest day"),
				"min_value":  map[string]any{"type": "number", "minimum": 0, "maximum": 10},
				"max_value":  map[string]any{"type": "number", "minimum": 0, "maximum": 10},
			}),
			run: t.searchHappiness,
		},
		{
			name:        "list_groups",
			description: "List the groups the user belongs to.",
			inputSchema: object(map[string]any{}),
			run:         t.listGroups,
		},
		{
			name:        "group_happiness",
			description: "List the happiness entries of every member of one of the user's groups between two dates.",
			inputSchema: object(map[string]any{
				"group_id":   map[string]any{"type": "integer"},
				"start_date": dateProp("first day"),
				"end_date":   dateProp("last day"),
			}, "group_id", "start_date", "end_date"),
			run: t.groupHappiness,
		},
	}
}

type rangeArgs struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (a rangeArgs) parse() (model.Date, model.Date, error) {
	start, err := model.ParseDate(a.StartDate)
	if err != nil {
		return model.Date{}, model.Date{}, badArgs("start_date must be YYYY-MM-DD")
	}
	end, err := model.ParseDate(a.EndDate)
	if err != nil {
		return model.Date{}, model.Date{}, badArgs("end_date must be YYYY-MM-DD")
	}
	if end.Before(start.Time) {
		return model.Date{}, model.Date{}, badArgs("end_date is before start_date")
	}
	return start, end, nil
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return badArgs("invalid arguments: %v", err)
	}
	return nil
}

func (t *Tools) listHappiness(ctx context.Context, uid uint64, raw json.RawMessage) (any, error) {
	var a rangeArgs
	if err := decode(raw, &a); err != nil {
		return nil, err
	}
	start, end, err := a.parse()
	if err != nil {
		return nil, err
	}
	var out []model.Happiness
	err = database.WithReadTx(ctx, t.DB, func(ctx context.Context) (err error) {
		out, err = t.Happiness.ListRange(ctx, uid, start, end)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"entries": orEmpty(out)}, nil
}

type searchArgs struct {
	Query     string   `json:"query"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	MinValue  *float64 `json:"min_value"`
	MaxValue  *float64 `json:"max_value"`
}

func (t *Tools) searchHappiness(ctx context.Context, uid uint64, raw json.RawMessage) (any, error) {
	var a searchArgs
	if err := decode(raw, &a); err != nil {
		return nil, err
	}
	f := model.HappinessFilter{Text: a.Query, Low: a.MinValue, High: a.MaxValue}
	if a.StartDate != "" {
		d, err := model.ParseDate(a.StartDate)
		if err != nil {
			return nil, badArgs("start_date must be YYYY-MM-DD")
		}
		f.Start = &d
	}
	if a.EndDate != "" {
		d, err := model.ParseDate(a.EndDate)
		if err != nil {
			return nil, badArgs("end_date must be YYYY-MM-DD")
		}
		f.End = &d
	}

	var out []model.Happiness
	err := database.WithReadTx(ctx, t.DB, func(ctx context.Context) (err error) {
		out, err = t.Happiness.Search(ctx, uid, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"entries": orEmpty(out)}, nil
}

func (t *Tools) listGroups(ctx context.Context, uid uint64, _ json.RawMessage) (any, error) {
	var out []model.Group
	err := database.WithReadTx(ctx, t.DB, func(ctx context.Context) (err error) {
		out, err = t.Groups.ListForUser(ctx, uid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"groups": orEmpty(out)}, nil
}

type groupArgs struct {
	GroupID uint64 `json:"group_id"`
	rangeArgs
}

var errNotMember = &toolError{msg: "not a member of this group"}

func (t *Tools) groupHappiness(ctx context.Context, uid uint64, raw json.RawMessage) (any, error) {
	var a groupArgs
	if err := decode(raw, &a); err != nil {
		return nil, err
	}
	if a.GroupID == 0 {
		return nil, badArgs("group_id is required")
	}
	start, end, err := a.parse()
	if err != nil {
		return nil, err
	}

	var out []model.Happiness
	err = database.WithReadTx(ctx, t.DB, func(ctx context.Context) error {
		ok, err := t.Groups.IsMember(ctx, a.GroupID, uid)
		if err != nil {
			return err
		}
		if !ok {
			return errNotMember
		}
		out, err = t.Happiness.ListForGroup(ctx, a.GroupID, start, end)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"entries": orEmpty(out)}, nil
}

// orEmpty keeps empty results encoding as [] rather than null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// isToolError reports whether err should be shown to the agent as is.
func isToolError(err error) bool {
	var te *toolError
	return errors.As(err, &te)
}
