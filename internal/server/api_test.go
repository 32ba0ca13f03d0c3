package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/go-ketchup/internal/app"
	"github.com/tartampluch/go-ketchup/internal/config"
	"github.com/tartampluch/go-ketchup/internal/engine"
	"github.com/tartampluch/go-ketchup/internal/store"
)

var apiNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) *app.Service {
	t.Helper()
	repo, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	svc := app.New(app.Options{Repo: repo, Clock: engine.FixedClock(apiNow)})
	require.NoError(t, svc.Seed(context.Background()))
	return svc
}

// sessionBody mirrors app.SessionView with the state as sent on the wire.
type sessionBody struct {
	State     string           `json:"state"`
	Head      *engine.Contact  `json:"head"`
	Picked    *engine.Contact  `json:"picked"`
	Remaining int              `json:"remaining"`
	UpNext    []engine.Contact `json:"upNext"`
	Links     *app.Links       `json:"links"`
}

type apiClient struct {
	t   *testing.T
	api *API
}

func newClient(t *testing.T) *apiClient {
	return &apiClient{t: t, api: NewAPI(newTestService(t), NewCalendarServer(engine.FixedClock(apiNow)))}
}

func (c *apiClient) do(method, path, body string, out any) int {
	c.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, config.RouteAPI+path, r)
	w := httptest.NewRecorder()
	c.api.ServeHTTP(w, req)

	if out != nil {
		require.NoError(c.t, json.NewDecoder(w.Body).Decode(out), w.Body.String())
	}
	return w.Code
}

func TestAPI_Health(t *testing.T) {
	c := newClient(t)

	var got map[string]any
	code := c.do(http.MethodGet, config.RouteHealth, "", &got)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, config.HTTPStatusOK, got["status"])
	assert.Equal(t, config.Version, got["version"])
}

func TestAPI_Contacts(t *testing.T) {
	c := newClient(t)

	var contacts []engine.Contact
	code := c.do(http.MethodGet, config.RouteContacts, "", &contacts)

	assert.Equal(t, http.StatusOK, code)
	require.Len(t, contacts, 7)
	assert.Equal(t, "1", contacts[0].ID)

	var mom engine.Contact
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/contacts/1", "", &mom))
	assert.Equal(t, "Mom", mom.Name)
	assert.Equal(t, engine.FrequencyWeekly, mom.Frequency)

	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/contacts/42", "", &errBody))
}

func TestAPI_Queue(t *testing.T) {
	c := newClient(t)

	var ranked []engine.Ranked
	code := c.do(http.MethodGet, config.RouteQueue, "", &ranked)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, ranked, 7)
	assert.Equal(t, "Riya Singh", ranked[0].Contact.Name)
	assert.InDelta(t, 70.5, ranked[0].Score, 0.001)

	code = c.do(http.MethodGet, config.RouteQueue+"?"+config.ParamQuery+"=ya", "", &ranked)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, ranked, 2)
	assert.Equal(t, "Priya Patel", ranked[1].Contact.Name)
}

func TestAPI_UpdateContact(t *testing.T) {
	c := newClient(t)

	var updated engine.Contact
	code := c.do(http.MethodPatch, "/contacts/7", `{"affinity": 42, "included": false}`, &updated)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(config.MaxAffinity), updated.Affinity)
	require.NotNil(t, updated.Included)
	assert.False(t, *updated.Included)

	var ranked []engine.Ranked
	c.do(http.MethodGet, config.RouteQueue, "", &ranked)
	for _, r := range ranked {
		assert.NotEqual(t, "7", r.Contact.ID, "excluded contact must leave the queue")
	}

	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodPatch, "/contacts/nobody", `{}`, &errBody))
	assert.NotEmpty(t, errBody["error"])

	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPatch, "/contacts/7", `{not json`, &errBody))
	assert.Equal(t, config.ErrInvalidJSON, errBody["error"])
}

func TestAPI_SessionFlow(t *testing.T) {
	c := newClient(t)

	var s sessionBody
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, config.RouteSession, "", &s))
	assert.Equal(t, "idle", s.State)

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, config.RouteSessionStart, "", &s))
	assert.Equal(t, "active", s.State)
	require.NotNil(t, s.Head)
	assert.Equal(t, "Riya Singh", s.Head.Name)
	assert.Equal(t, 7, s.Remaining)
	assert.Len(t, s.UpNext, 6)

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, config.RouteSessionDefer, "", &s))
	assert.Equal(t, "Jordan Lee", s.Head.Name)

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, config.RouteSessionPick, "", &s))
	assert.Equal(t, "awaiting_action", s.State)
	require.NotNil(t, s.Picked)
	assert.Equal(t, "Jordan Lee", s.Picked.Name)
	require.NotNil(t, s.Links)
	assert.True(t, strings.HasPrefix(s.Links.Tel, "tel:"))

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, config.RouteSessionCancel, "", &s))
	assert.Equal(t, "active", s.State)
	assert.Equal(t, "Jordan Lee", s.Head.Name)

	c.do(http.MethodPost, config.RouteSessionPick, "", &s)
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, config.RouteSessionResolve, `{"action":"call"}`, &s))
	assert.Equal(t, "active", s.State)
	assert.Equal(t, "Taylor Jones", s.Head.Name)
	assert.Equal(t, 5, s.Remaining)
}

func TestAPI_SessionStartWithQuery(t *testing.T) {
	c := newClient(t)

	var s sessionBody
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, config.RouteSessionStart, `{"query":"mom"}`, &s))
	assert.Equal(t, "Mom", s.Head.Name)
	assert.Equal(t, 1, s.Remaining)

	c.do(http.MethodPost, config.RouteSessionDefer, "", &s)
	assert.Equal(t, "empty", s.State)

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, config.RouteSessionStart, `{"query":"zzz"}`, &s))
	assert.Equal(t, "empty", s.State)
	assert.Nil(t, s.Head)
}

func TestAPI_SessionErrors(t *testing.T) {
	c := newClient(t)

	var body struct {
		Error   string      `json:"error"`
		Session sessionBody `json:"session"`
	}

	assert.Equal(t, http.StatusConflict, c.do(http.MethodPost, config.RouteSessionPick, "", &body))
	assert.Equal(t, "idle", body.Session.State)
	assert.NotEmpty(t, body.Error)

	c.do(http.MethodPost, config.RouteSessionStart, "", nil)
	assert.Equal(t, http.StatusConflict, c.do(http.MethodPost, config.RouteSessionResolve, `{"action":"call"}`, &body))
	assert.Equal(t, "active", body.Session.State)

	c.do(http.MethodPost, config.RouteSessionPick, "", nil)
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, config.RouteSessionResolve, `{"action":"email"}`, &body))
	assert.Equal(t, "awaiting_action", body.Session.State)

	var errBody map[string]string
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, config.RouteSessionResolve, `nope`, &errBody))
	assert.Equal(t, config.ErrInvalidJSON, errBody["error"])
}

func TestAPI_CalendarRoute(t *testing.T) {
	calendar := NewCalendarServer(engine.FixedClock(apiNow))
	api := NewAPI(newTestService(t), calendar)
	calendar.Update([]byte(sampleFeed), 0)

	req := httptest.NewRequest(http.MethodGet, config.RouteCalendar, nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, sampleFeed, w.Body.String())
}
