package handler

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/happiness-journal/internal/model"
	"github.com/iliyamo/happiness-journal/internal/service"
)

// requestTimeout bounds the database work of one request.
const requestTimeout = 5 * time.Second

func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, &service.ValidationError{Msg: "invalid " + name}
	}
	return id, nil
}

// dateRange reads ?start=&end=.  A missing bound defaults to the widest
// range a DATE column holds; an inverted range is rejected.
func dateRange(c echo.Context) (model.Date, model.Date, error) {
	start := model.Date{Time: time.Date(1000, 1, 1, 0, 0, 0, 0, time.UTC)}
	end := model.Date{Time: time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)}
	var err error
	if s := c.QueryParam("start"); s != "" {
		if start, err = model.ParseDate(s); err != nil {
			return start, end, &service.ValidationError{Msg: "start must be YYYY-MM-DD"}
		}
	}
	if s := c.QueryParam("end"); s != "" {
		if end, err = model.ParseDate(s); err != nil {
			return start, end, &service.ValidationError{Msg: "end must be YYYY-MM-DD"}
		}
	}
	if end.Before(start.Time) {
		return start, end, &service.ValidationError{Msg: "end before start"}
	}
	return start, end, nil
}

// optDate parses an optional date query parameter.
func optDate(c echo.Context, name string) (*model.Date, error) {
	s := c.QueryParam(name)
	if s == "" {
		return nil, nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return nil, &service.ValidationError{Msg: name + " must be YYYY-MM-DD"}
	}
	return &d, nil
}

// optFloat parses an optional numeric query parameter.
func optFloat(c echo.Context, name string) (*float64, error) {
	s := c.QueryParam(name)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, &service.ValidationError{Msg: name + " must be a number"}
	}
	return &v, nil
}
