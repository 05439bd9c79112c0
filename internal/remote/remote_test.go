package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bohemiyan/ugibdd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const anonKey = "anon-key"

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Options{URL: srv.URL, AnonKey: anonKey, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{URL: "not a url", AnonKey: anonKey})
	assert.Error(t, err)

	_, err = New(Options{URL: "http://backend"})
	assert.Error(t, err)
}

func TestSignInWithPassword(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, anonKey, r.Header.Get("apikey"))
		assert.NotEmpty(t, r.Header.Get(requestIDHeader))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"at-1","token_type":"bearer","expires_in":3600,"refresh_token":"rt-1","user":{"id":"subject-1","email":"ivanov@app.local"}}`)
	})

	tok, subject, err := c.SignInWithPassword(context.Background(), "ivanov@app.local", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok.AccessToken)
	assert.Equal(t, "rt-1", tok.RefreshToken)
	assert.Equal(t, "subject-1", subject.ID)
	assert.Equal(t, "at-1", c.Session(context.Background()).AccessToken)

	_, _, err = c.SignInWithPassword(context.Background(), "ivanov@app.local", "wrong")
	var re *ugibdd.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusBadRequest, re.Status)
	assert.Equal(t, "invalid_credentials", re.Code)
	assert.Equal(t, "Invalid login credentials", re.Message)
	assert.Equal(t, "Неверный логин или пароль", ugibdd.Localize(err, ""))
}

func TestTableCallsCarrySessionBearer(t *testing.T) {
	var auth []string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `[]`)
	})

	var rows []ugibdd.KuspRecord
	require.NoError(t, c.Select(context.Background(), ugibdd.TableKusps, ugibdd.Query{}, &rows))
	require.NoError(t, c.SetSession(context.Background(), &oauth2.Token{AccessToken: "user-token", TokenType: "bearer"}))
	require.NoError(t, c.Select(context.Background(), ugibdd.TableKusps, ugibdd.Query{}, &rows))

	assert.Equal(t, []string{"Bearer " + anonKey, "Bearer user-token"}, auth)
}

func TestSelectEncodesQuery(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/action_logs", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "id,action_type", q.Get("select"))
		assert.Equal(t, "created_at.desc", q.Get("order"))
		assert.Equal(t, "10", q.Get("limit"))
		assert.Equal(t, "eq.kusp_create", q.Get("action_type"))
		assert.Equal(t, []string{"gte.2025-03-01T00:00:00Z", "lt.2025-03-02T00:00:00Z"}, q["created_at"])
		assert.Equal(t, "in.(1,2,3)", q.Get("id"))
		assert.Equal(t, "is.null", q.Get("user_id"))
		_, _ = io.WriteString(w, `[{"id":1,"action_type":"kusp_create"}]`)
	})

	var rows []ugibdd.ActionLog
	err := c.Select(context.Background(), ugibdd.TableActionLogs, ugibdd.Query{
		Columns: []string{"id", "action_type"},
		Filters: []ugibdd.Filter{
			ugibdd.Eq("action_type", "kusp_create"),
			{Column: "created_at", Op: ugibdd.OpGte, Value: from},
			{Column: "created_at", Op: ugibdd.OpLt, Value: from.AddDate(0, 0, 1)},
			ugibdd.In("id", []int64{1, 2, 3}),
			{Column: "user_id", Op: ugibdd.OpIs},
		},
		OrderBy:    "created_at",
		Descending: true,
		Limit:      10,
	}, &rows)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].ID)
}

func TestInsertReturnsStoredRow(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		var row map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&row))
		_, hasID := row["id"]
		assert.False(t, hasID)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `[{"id":42,"nickname":"ivanov","auth_user_id":"subject-1","category":"РС","created_at":"2025-03-14T09:00:00Z"}]`)
	})

	row := ugibdd.Employee{Nickname: "ivanov", AuthUserID: "subject-1", Category: ugibdd.CategoryRS}
	require.NoError(t, c.Insert(context.Background(), ugibdd.TableEmployees, &row))
	assert.Equal(t, int64(42), row.ID)
	assert.False(t, row.CreatedAt.IsZero())
}

func TestUpdateAndDeleteNeedFilters(t *testing.T) {
	var methods []string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		assert.Equal(t, "eq.7", r.URL.Query().Get("id"))
		w.WriteHeader(http.StatusNoContent)
	})

	assert.ErrorIs(t, c.Update(context.Background(), ugibdd.TableKusps, map[string]any{"status": "closed"}), ugibdd.ErrInvalidInput)
	assert.ErrorIs(t, c.Delete(context.Background(), ugibdd.TableKusps), ugibdd.ErrInvalidInput)

	require.NoError(t, c.Update(context.Background(), ugibdd.TableKusps, map[string]any{"status": "closed"}, ugibdd.Eq("id", 7)))
	require.NoError(t, c.Delete(context.Background(), ugibdd.TableKusps, ugibdd.Eq("id", 7)))
	assert.Equal(t, []string{http.MethodPatch, http.MethodDelete}, methods)
}

func TestCountReadsContentRange(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		w.Header().Set("Content-Range", "*/17")
	})

	n, err := c.Count(context.Background(), ugibdd.TableKusps, ugibdd.Eq("assigned_to_id", "subject-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)
}

func TestParseContentRange(t *testing.T) {
	n, err := parseContentRange("0-9/120")
	require.NoError(t, err)
	assert.Equal(t, int64(120), n)

	_, err = parseContentRange("")
	assert.Error(t, err)
	_, err = parseContentRange("0-9/*")
	assert.Error(t, err)
}

func TestTableErrorsAreRemoteErrors(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"code":"PGRST301","message":"JWT expired","details":null,"hint":null}`)
	})

	var rows []ugibdd.KuspRecord
	err := c.Select(context.Background(), ugibdd.TableKusps, ugibdd.Query{}, &rows)
	var re *ugibdd.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "PGRST301", re.Code)
	assert.True(t, ugibdd.IsSessionExpired(err))
}

func TestRefresh(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "rt-1", body["refresh_token"])
		_, _ = io.WriteString(w, `{"access_token":"at-2","refresh_token":"rt-2","expires_in":3600}`)
	})

	_, err := c.Refresh(context.Background())
	var re *ugibdd.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusUnauthorized, re.Status)

	require.NoError(t, c.SetSession(context.Background(), &oauth2.Token{AccessToken: "at-1", RefreshToken: "rt-1"}))
	tok, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at-2", tok.AccessToken)
	assert.Equal(t, "at-2", c.Session(context.Background()).AccessToken)
}

func TestSignOutForgetsSessionEvenWhenRevoked(t *testing.T) {
	calls := 0
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/auth/v1/logout", r.URL.Path)
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	})

	require.NoError(t, c.SignOut(context.Background()))
	assert.Equal(t, 0, calls)

	require.NoError(t, c.SetSession(context.Background(), &oauth2.Token{AccessToken: "at-1"}))
	require.NoError(t, c.SignOut(context.Background()))
	assert.Equal(t, 1, calls)
	assert.Nil(t, c.Session(context.Background()))
}

func TestAdminCall(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/functions/v1/admin-users", r.URL.Path)
		assert.Equal(t, "Bearer caller-token", r.Header.Get("Authorization"))
		var req ugibdd.AdminRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Action == ugibdd.AdminDeleteUser {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"User not found"}`)
			return
		}
		assert.Equal(t, ugibdd.AdminCreateUser, req.Action)
		_, _ = io.WriteString(w, `{"data":{"user":{"id":"subject-9"}}}`)
	})
	bearer := &oauth2.Token{AccessToken: "caller-token"}

	data, err := c.Call(context.Background(), bearer, ugibdd.AdminRequest{Action: ugibdd.AdminCreateUser, Data: map[string]any{"email": "a@app.local"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"user":{"id":"subject-9"}}`, string(data))

	_, err = c.Call(context.Background(), bearer, ugibdd.AdminRequest{Action: ugibdd.AdminDeleteUser, UserID: "subject-9"})
	assert.True(t, ugibdd.IsRemoteNotFound(err))

	_, err = c.Call(context.Background(), nil, ugibdd.AdminRequest{Action: ugibdd.AdminCreateUser})
	assert.Equal(t, "Сессия администратора не найдена", ugibdd.Localize(err, ""))
}
