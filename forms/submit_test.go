package forms_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/formdeck/formdeck/forms"
	"github.com/formdeck/formdeck/internal/errors"
	"github.com/formdeck/formdeck/oauthflow"
)

type capturedRequest struct {
	method string
	query  map[string][]string
	body   []byte
	header http.Header
}

func newEchoServer(t *testing.T, status int, contentType, responseBody string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.method = r.Method
		captured.query = r.URL.Query()
		captured.header = r.Header.Clone()
		captured.body, _ = io.ReadAll(r.Body)
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		w.Write([]byte(responseBody))
	}))
	t.Cleanup(ts.Close)
	return ts, captured
}

func TestSubmit_FieldPartition(t *testing.T) {
	ts, captured := newEchoServer(t, http.StatusOK, "application/json", `{"ok":true}`)
	s := forms.NewSubmitter(nil)

	resp, err := s.Submit(context.Background(), forms.Request{
		URL:    ts.URL,
		Method: "POST",
		Fields: []forms.Field{
			{Name: "q", SendAs: forms.SendAsQuery},
			{Name: "name", SendAs: forms.SendAsBody},
			{Name: "untagged"},
		},
		Values: map[string]any{
			"q":        "hello",
			"name":     "Ada",
			"untagged": 42.0,
		},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Query-tagged fields land in the URL and nowhere else.
	require.Equal(t, []string{"hello"}, captured.query["q"])
	require.NotContains(t, string(captured.body), "hello")

	// Body-tagged and untagged fields land in the JSON body, not the URL.
	var body map[string]any
	require.NoError(t, json.Unmarshal(captured.body, &body))
	require.Equal(t, "Ada", body["name"])
	require.Equal(t, 42.0, body["untagged"])
	require.Empty(t, captured.query["name"])
	require.Empty(t, captured.query["untagged"])
}

func TestSubmit_GETOmitsBody(t *testing.T) {
	ts, captured := newEchoServer(t, http.StatusOK, "application/json", `{"ok":true}`)
	s := forms.NewSubmitter(nil)

	_, err := s.Submit(context.Background(), forms.Request{
		URL:    ts.URL,
		Method: "GET",
		Fields: []forms.Field{{Name: "q", SendAs: forms.SendAsQuery}},
		Values: map[string]any{"q": "hello"},
	})
	require.NoError(t, err)

	require.Equal(t, http.MethodGet, captured.method)
	require.Equal(t, []string{"hello"}, captured.query["q"])
	require.Empty(t, captured.body)
	require.Empty(t, captured.header.Get("Content-Type"))
}

func TestSubmit_MethodDefaultsToPost(t *testing.T) {
	ts, captured := newEchoServer(t, http.StatusOK, "application/json", `{}`)
	s := forms.NewSubmitter(nil)

	_, err := s.Submit(context.Background(), forms.Request{URL: ts.URL})
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, captured.method)
	require.Equal(t, "application/json", captured.header.Get("Content-Type"))
}

func TestSubmit_ResponseParsing(t *testing.T) {
	t.Run("json content type is parsed", func(t *testing.T) {
		ts, _ := newEchoServer(t, http.StatusOK, "application/json; charset=utf-8", `{"id":7}`)
		s := forms.NewSubmitter(nil)

		resp, err := s.Submit(context.Background(), forms.Request{URL: ts.URL})
		require.NoError(t, err)
		parsed, ok := resp.JSON.(map[string]any)
		require.True(t, ok)
		require.Equal(t, 7.0, parsed["id"])
		require.Empty(t, resp.Body)
	})

	t.Run("other content types come back as raw text", func(t *testing.T) {
		ts, _ := newEchoServer(t, http.StatusOK, "text/plain", "all good")
		s := forms.NewSubmitter(nil)

		resp, err := s.Submit(context.Background(), forms.Request{URL: ts.URL})
		require.NoError(t, err)
		require.Nil(t, resp.JSON)
		require.Equal(t, "all good", resp.Body)
	})
}

func TestSubmit_NonSuccessStatusIsAHardFailure(t *testing.T) {
	ts, _ := newEchoServer(t, http.StatusBadGateway, "text/plain", "upstream broke")
	s := forms.NewSubmitter(nil)

	_, err := s.Submit(context.Background(), forms.Request{URL: ts.URL})
	require.Error(t, err)

	var statusErr *forms.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	require.Equal(t, "upstream broke", statusErr.Body)
}

func TestSubmit_MissingURL(t *testing.T) {
	s := forms.NewSubmitter(nil)
	_, err := s.Submit(context.Background(), forms.Request{})
	require.ErrorIs(t, err, errors.ErrMissingURL)
}

type fakeRefresher struct {
	calls int
	out   oauthflow.TokenRecord
}

func (f *fakeRefresher) RefreshIfNeeded(_ context.Context, _ oauthflow.Params, rec oauthflow.TokenRecord) oauthflow.TokenRecord {
	f.calls++
	if f.out.AccessToken != "" {
		return f.out
	}
	return rec
}

func TestSubmit_BearerInjection(t *testing.T) {
	t.Run("resolved token is injected before custom headers", func(t *testing.T) {
		ts, captured := newEchoServer(t, http.StatusOK, "application/json", `{}`)
		refresher := &fakeRefresher{out: oauthflow.TokenRecord{AccessToken: "refreshed-token"}}
		s := forms.NewSubmitter(refresher)

		_, err := s.Submit(context.Background(), forms.Request{
			URL: ts.URL,
			Auth: &forms.Auth{
				Token: oauthflow.TokenRecord{
					AccessToken:  "stale-token",
					RefreshToken: "r1",
					ExpiresAt:    time.Now().Add(-time.Hour).Unix(),
				},
			},
		})
		require.NoError(t, err)
		require.Equal(t, 1, refresher.calls)
		require.Equal(t, "Bearer refreshed-token", captured.header.Get("Authorization"))
	})

	t.Run("custom headers win over the injected bearer", func(t *testing.T) {
		ts, captured := newEchoServer(t, http.StatusOK, "application/json", `{}`)
		s := forms.NewSubmitter(&fakeRefresher{})

		_, err := s.Submit(context.Background(), forms.Request{
			URL:     ts.URL,
			Headers: map[string]string{"Authorization": "Bearer explicit"},
			Auth: &forms.Auth{
				Token: oauthflow.TokenRecord{AccessToken: "resolved"},
			},
		})
		require.NoError(t, err)
		require.Equal(t, "Bearer explicit", captured.header.Get("Authorization"))
	})

	t.Run("no auth config means no authorization header", func(t *testing.T) {
		ts, captured := newEchoServer(t, http.StatusOK, "application/json", `{}`)
		s := forms.NewSubmitter(nil)

		_, err := s.Submit(context.Background(), forms.Request{URL: ts.URL})
		require.NoError(t, err)
		require.Empty(t, captured.header.Get("Authorization"))
	})
}
