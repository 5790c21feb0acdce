package caddy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"irrigation-go-home/internal/jsobj"
)

// Controller endpoints.
const (
	PathStatus        = "/status.json"
	PathBootTime      = "/bootTime.json"
	PathDateTime      = "/dateTime.json"
	PathSetClock      = "/setClock.htm"
	PathSaveNTP       = "/saveNTP.htm"
	PathCalendar      = "/calendar.json"
	PathProgram       = "/js/indexVarsDyn.js"
	PathSaveZoneNames = "/saveZoneNames.htm"
)

// IsAlive reports whether /status.json answers 200. It never fails.
func (c *Client) IsAlive(ctx context.Context) bool {
	resp, _ := c.Get(ctx, PathStatus, nil, nil)
	return resp.OK()
}

// Status returns the decoded /status.json object.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	body, err := c.getJSON(ctx, PathStatus, nil)
	if err != nil {
		return nil, err
	}
	m, ok := body.(map[string]any)
	if !ok {
		return nil, unexpectedShape(PathStatus, "object", body)
	}
	return m, nil
}

// BootTime returns when the controller last booted.
func (c *Client) BootTime(ctx context.Context) (time.Time, error) {
	return c.getTime(ctx, PathBootTime)
}

// SystemTime returns the controller's clock.
func (c *Client) SystemTime(ctx context.Context) (time.Time, error) {
	return c.getTime(ctx, PathDateTime)
}

// SetSystemTime sets the controller's clock to t.
func (c *Client) SetSystemTime(ctx context.Context, t time.Time) bool {
	return c.postOK(ctx, PathSetClock, EncodeTime(t).Values())
}

// SyncClock sets the controller's clock to the local time.
func (c *Client) SyncClock(ctx context.Context) bool {
	return c.SetSystemTime(ctx, c.now())
}

// SetNTP configures network time on the controller.
func (c *Client) SetNTP(ctx context.Context, s NTPSettings) bool {
	form := url.Values{
		"isNTP":     {boolParam(s.Enabled)},
		"ntpServer": {s.Server},
		"isDST":     {boolParam(s.DST)},
		"timezone":  {s.Timezone},
	}
	return c.postOK(ctx, PathSaveNTP, form)
}

// Calendar returns the scheduled runs between start and end.
func (c *Client) Calendar(ctx context.Context, start, end time.Time) ([]any, error) {
	query := url.Values{
		"start": {strconv.FormatInt(start.Unix(), 10)},
		"end":   {strconv.FormatInt(end.Unix(), 10)},
	}
	body, err := c.getJSON(ctx, PathCalendar, query)
	if err != nil {
		return nil, err
	}
	list, ok := body.([]any)
	if !ok {
		return nil, unexpectedShape(PathCalendar, "array", body)
	}
	return list, nil
}

// CalendarDay returns the scheduled runs for the next 24 hours.
func (c *Client) CalendarDay(ctx context.Context) ([]any, error) {
	now := c.now()
	return c.Calendar(ctx, now, now.Add(24*time.Hour))
}

// Program fetches watering program n. The endpoint never sends a JSON
// content type, so the body is always decoded as an object literal.
func (c *Client) Program(ctx context.Context, n int) (*Program, error) {
	query := url.Values{"program": {strconv.Itoa(n)}}
	resp, err := c.Get(ctx, PathProgram, query, nil)
	if err != nil && resp == nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, statusError(http.MethodGet, PathProgram, resp)
	}
	resp.Kind = KindJSObject
	p, err := ParseProgram(resp.Raw)
	if err != nil {
		return nil, fmt.Errorf("program %d: %w", n, err)
	}
	return p, nil
}

// ZoneNames returns the zone names, which the controller shares across
// programs; they are read from program 1.
func (c *Client) ZoneNames(ctx context.Context) ([]string, error) {
	p, err := c.Program(ctx, 1)
	if err != nil {
		return nil, err
	}
	return p.ZoneNames, nil
}

// SetZoneNames saves zone names; names[i] is submitted as form field "i".
func (c *Client) SetZoneNames(ctx context.Context, names []string) bool {
	form := make(url.Values, len(names))
	for i, name := range names {
		form.Set(strconv.Itoa(i), name)
	}
	return c.postOK(ctx, PathSaveZoneNames, form)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values) (any, error) {
	resp, err := c.Get(ctx, path, query, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, statusError(http.MethodGet, path, resp)
	}
	if resp.Kind == KindJSON {
		return resp.Body, nil
	}
	// Some firmware revisions label JSON as text/html.
	v, err := jsobj.DecodeJSON(resp.Raw)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	return v, nil
}

func (c *Client) getTime(ctx context.Context, path string) (time.Time, error) {
	body, err := c.getJSON(ctx, path, nil)
	if err != nil {
		return time.Time{}, err
	}
	return DecodeTime(timeFieldsFrom(body)), nil
}

func (c *Client) postOK(ctx context.Context, path string, form url.Values) bool {
	resp, err := c.Post(ctx, path, form)
	if err != nil {
		c.logger.Debug("post reply not decodable", "path", path, "err", err)
	}
	if !resp.OK() {
		if resp != nil {
			c.logger.Warn("controller rejected update", "path", path, "status", resp.StatusCode, "err", resp.Failure)
		}
		return false
	}
	return true
}

func statusError(method, path string, resp *Response) *StatusError {
	return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Failure: resp.Failure}
}

func unexpectedShape(path, want string, got any) error {
	return fmt.Errorf("GET %s: %w", path, &jsobj.DecodeError{
		Offset: -1,
		Err:    fmt.Errorf("want JSON %s, got %T", want, got),
	})
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
