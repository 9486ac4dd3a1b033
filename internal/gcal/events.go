package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// maxListPages bounds pagination so a misbehaving server cannot loop forever.
const maxListPages = 100

// ListEvents fetches every page of the list target. A failure on any page
// fails the whole listing. The result is never nil on success.
func (c *Client) ListEvents(ctx context.Context, t Target, bearer string) ([]*Event, error) {
	c.logger.Info("listing events", slog.String("credential", t.Credential.String()))

	items := make([]*Event, 0)
	page := t

	for n := 1; ; n++ {
		var list eventList
		if err := c.doJSON(ctx, page, bearer, nil, &list); err != nil {
			return nil, err
		}

		items = append(items, list.Items...)

		c.logger.Debug("fetched events page",
			slog.Int("page", n),
			slog.Int("count", len(list.Items)),
		)

		if list.NextPageToken == "" {
			break
		}

		if n >= maxListPages {
			c.logger.Warn("stopping pagination at page limit", slog.Int("pages", n))
			break
		}

		page = t.WithPageToken(list.NextPageToken)
	}

	c.logger.Info("listed events", slog.Int("total", len(items)))

	return items, nil
}

// InsertEvent posts body (an encoded event) to the create target.
func (c *Client) InsertEvent(ctx context.Context, t Target, bearer string, body []byte) (*Event, error) {
	var created Event
	if err := c.doJSON(ctx, t, bearer, body, &created); err != nil {
		return nil, err
	}

	return &created, nil
}

// QuickAddEvent posts free text to the quick-add target.
func (c *Client) QuickAddEvent(ctx context.Context, t Target, bearer, text string) (*Event, error) {
	var created Event
	if err := c.doJSON(ctx, t.WithText(text), bearer, nil, &created); err != nil {
		return nil, err
	}

	return &created, nil
}

// PatchEvent sends a partial update for eventID.
func (c *Client) PatchEvent(ctx context.Context, t Target, bearer, eventID string, body []byte) (*Event, error) {
	var updated Event
	if err := c.doJSON(ctx, t.WithEventID(eventID), bearer, body, &updated); err != nil {
		return nil, err
	}

	return &updated, nil
}

// DeleteEvent deletes eventID. Returns nil on success (HTTP 204).
func (c *Client) DeleteEvent(ctx context.Context, t Target, bearer, eventID string) error {
	resp, err := c.Do(ctx, t.Method, t.WithEventID(eventID).URL(), bearer, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, copyErr := io.Copy(io.Discard, resp.Body); copyErr != nil {
		return fmt.Errorf("gcal: draining delete response body: %w", copyErr)
	}

	return nil
}

// doJSON executes t and decodes a JSON response into out. Empty bodies
// (204) leave out untouched.
func (c *Client) doJSON(ctx context.Context, t Target, bearer string, body []byte, out any) error {
	resp, err := c.Do(ctx, t.Method, t.URL(), bearer, body)
	if err != nil {
		return err
	}

	if err := decodeJSON(resp, out); err != nil {
		return fmt.Errorf("gcal: decoding %s response: %w", t.Action, err)
	}

	return nil
}

// decodeJSON decodes resp into out and closes the body. Empty bodies (204)
// leave out untouched.
func decodeJSON(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}
