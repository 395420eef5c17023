package resource

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/resourcebind/pkg/fetch"
	"github.com/getmockd/resourcebind/pkg/fetch/fetchtest"
)

const attachmentRoot = "/api/users/admin/user-file-attachments/"

func attachmentEnvelope(id int, caption string) map[string]any {
	return map[string]any{
		"stat": "ok",
		"user_file_attachment": map[string]any{
			"id":           id,
			"caption":      caption,
			"filename":     "x.png",
			"absolute_url": "http://h/x.png",
		},
	}
}

func TestNew_DefaultsThenInitial(t *testing.T) {
	m, err := New(branchSchema, nil)
	require.NoError(t, err)
	assert.Equal(t, false, m.Get("isDefault"))
	assert.True(t, m.IsNew())
	assert.Empty(t, m.Changed())
	assert.NotEmpty(t, m.CID())

	m, err = New(branchSchema, map[string]any{"name": "master", "isDefault": true})
	require.NoError(t, err)
	assert.Equal(t, true, m.Get("isDefault"))
	assert.False(t, m.IsNew())
}

func TestNew_WithParse(t *testing.T) {
	m, err := New(attachmentSchema, attachmentEnvelope(42, "foo"), WithParse())
	require.NoError(t, err)
	assert.Equal(t, 42, m.ID())
	assert.Equal(t, "http://h/x.png", m.Get("downloadURL"))

	_, err = New(attachmentSchema, map[string]any{"stat": "fail"}, WithParse())
	require.Error(t, err)
}

func TestModel_CIDsAreUnique(t *testing.T) {
	a, _ := New(branchSchema, nil)
	b, _ := New(branchSchema, nil)
	assert.NotEqual(t, a.CID(), b.CID())
}

func TestModel_SetTracksChanges(t *testing.T) {
	m, err := New(attachmentSchema, map[string]any{"id": 42, "caption": "foo"})
	require.NoError(t, err)
	assert.False(t, m.HasChanged("caption"))

	m.Set("caption", "bar")
	assert.True(t, m.HasChanged("caption"))
	assert.Equal(t, "bar", m.Get("caption"))

	m.SetAll(map[string]any{"file": "/tmp/a", "filename": "a"})
	assert.Equal(t, []string{"caption", "file", "filename"}, m.Changed())

	m.Unset("filename")
	_, ok := m.Lookup("filename")
	assert.False(t, ok)
	assert.True(t, m.HasChanged("filename"))
}

func TestModel_SetIDMarksPersisted(t *testing.T) {
	m, err := New(attachmentSchema, nil)
	require.NoError(t, err)
	assert.True(t, m.IsNew())

	m.Set("id", 9)
	assert.False(t, m.IsNew())

	// Clearing the id does not make the model new again.
	m.Set("id", nil)
	assert.False(t, m.IsNew())
}

func TestModel_ToJSON(t *testing.T) {
	tests := []struct {
		name    string
		initial map[string]any
		set     map[string]any
		want    map[string]any
	}{
		{
			name: "new model sends file",
			set:  map[string]any{"caption": "foo", "file": "/tmp/x.png"},
			want: map[string]any{"caption": "foo", "path": "/tmp/x.png"},
		},
		{
			name:    "existing model with unchanged file omits path",
			initial: map[string]any{"id": 42, "caption": "foo", "file": "/tmp/x.png"},
			want:    map[string]any{"caption": "foo"},
		},
		{
			name:    "existing model with changed file sends path",
			initial: map[string]any{"id": 42, "caption": "foo"},
			set:     map[string]any{"file": "/tmp/y.png"},
			want:    map[string]any{"caption": "foo", "path": "/tmp/y.png"},
		},
		{
			name: "new model without file omits path",
			set:  map[string]any{"caption": "foo"},
			want: map[string]any{"caption": "foo"},
		},
		{
			name: "unset caption is omitted",
			set:  map[string]any{"caption": nil, "file": "/tmp/x.png"},
			want: map[string]any{"path": "/tmp/x.png"},
		},
		{
			name: "empty",
			want: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(attachmentSchema, tt.initial)
			require.NoError(t, err)
			m.SetAll(tt.set)
			assert.Equal(t, tt.want, m.ToJSON())
		})
	}
}

func TestModel_ToJSON_SendAlways(t *testing.T) {
	s := MustSchema(Schema{
		Name: "Always",
		Out:  []OutField{{Attr: "caption", Policy: SendAlways}},
	})
	m, err := New(s, nil)
	require.NoError(t, err)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"caption": null}`, string(data))
}

func TestModel_URL(t *testing.T) {
	m, err := New(attachmentSchema, nil)
	require.NoError(t, err)
	url, err := m.URL()
	require.NoError(t, err)
	assert.Equal(t, attachmentRoot, url)

	m.Set("id", 42)
	url, err = m.URL()
	require.NoError(t, err)
	assert.Equal(t, attachmentRoot+"42/", url)

	m.SetURL("/pinned/")
	url, err = m.URL()
	require.NoError(t, err)
	assert.Equal(t, "/pinned/", url)
}

func TestModel_URL_FromCollection(t *testing.T) {
	c := newBranches(fetchtest.New())
	m := c.NewModel(map[string]any{"name": "master"})

	url, err := m.URL()
	require.NoError(t, err)
	assert.Equal(t, branchesURL+"master/", url)

	orphan, err := New(branchSchema, map[string]any{"name": "master"})
	require.NoError(t, err)
	_, err = orphan.URL()
	assert.ErrorIs(t, err, ErrNoURL)
}

func TestModel_Fetch(t *testing.T) {
	client := fetchtest.New().
		On(http.MethodGet, attachmentRoot+"42/", fetchtest.JSON(attachmentEnvelope(42, "from server")))
	metrics := NewMetricsObserver()

	m, err := New(attachmentSchema, map[string]any{"id": 42}, WithClient(client), WithObserver(metrics))
	require.NoError(t, err)
	m.Set("caption", "local edit")

	require.NoError(t, m.Fetch(context.Background()))
	assert.Equal(t, "from server", m.Get("caption"))
	assert.Equal(t, "x.png", m.Get("filename"))
	assert.Empty(t, m.Changed())
	assert.Equal(t, int64(1), metrics.Snapshot().FetchCount)
}

func TestModel_Fetch_ParseErrorKeepsAttributes(t *testing.T) {
	client := fetchtest.New().
		On(http.MethodGet, attachmentRoot+"42/", fetchtest.JSON(map[string]any{"stat": "ok"}))

	m, err := New(attachmentSchema, map[string]any{"id": 42, "caption": "keep"}, WithClient(client))
	require.NoError(t, err)

	err = m.Fetch(context.Background())
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "keep", m.Get("caption"))
}

func TestModel_Fetch_TransportError(t *testing.T) {
	client := fetchtest.New().
		On(http.MethodGet, attachmentRoot+"42/", fetchtest.Fail(http.StatusNotFound, 100, "Object does not exist"))
	metrics := NewMetricsObserver()

	m, err := New(attachmentSchema, map[string]any{"id": 42, "caption": "keep"}, WithClient(client), WithObserver(metrics))
	require.NoError(t, err)

	err = m.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, fetch.IsNotFound(err))

	var te *fetch.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 100, te.Code)
	assert.Equal(t, "Object does not exist", te.Message)
	assert.Equal(t, "keep", m.Get("caption"))
	assert.Equal(t, int64(1), metrics.Snapshot().ErrorCount)
}

func TestModel_NoClient(t *testing.T) {
	m, err := New(attachmentSchema, map[string]any{"id": 42})
	require.NoError(t, err)
	assert.ErrorIs(t, m.Fetch(context.Background()), ErrNoClient)
	assert.ErrorIs(t, m.Save(context.Background()), ErrNoClient)
	assert.ErrorIs(t, m.Destroy(context.Background()), ErrNoClient)
}

func TestModel_Save_Create(t *testing.T) {
	client := fetchtest.New().
		On(http.MethodPost, attachmentRoot, fetchtest.Reply{Status: http.StatusCreated, Body: attachmentEnvelope(42, "foo")})
	metrics := NewMetricsObserver()

	m, err := New(attachmentSchema, nil, WithClient(client), WithObserver(metrics))
	require.NoError(t, err)
	m.SetAll(map[string]any{"caption": "foo", "file": "/tmp/x.png"})

	require.NoError(t, m.Save(context.Background()))
	assert.False(t, m.IsNew())
	assert.Equal(t, 42, m.ID())
	assert.Empty(t, m.Changed())

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, map[string]any{"caption": "foo", "path": "/tmp/x.png"}, reqs[0].Body)
	assert.Equal(t, int64(1), metrics.Snapshot().CreateCount)

	// After the save, the file is no longer sent.
	assert.Equal(t, map[string]any{"caption": "foo"}, m.ToJSON())
}

func TestModel_Save_UpdateWithEmptyBody(t *testing.T) {
	client := fetchtest.New().
		On(http.MethodPut, attachmentRoot+"42/", fetchtest.Reply{Status: http.StatusNoContent})
	metrics := NewMetricsObserver()

	m, err := New(attachmentSchema, map[string]any{"id": 42, "caption": "foo"}, WithClient(client), WithObserver(metrics))
	require.NoError(t, err)
	m.Set("caption", "bar")

	require.NoError(t, m.Save(context.Background()))
	assert.Equal(t, "bar", m.Get("caption"))
	assert.Empty(t, m.Changed())

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].Method)
	assert.Equal(t, map[string]any{"caption": "bar"}, reqs[0].Body)
	assert.Equal(t, int64(1), metrics.Snapshot().UpdateCount)
}

func TestModel_Save_FailureKeepsChanges(t *testing.T) {
	client := fetchtest.New().
		On(http.MethodPut, attachmentRoot+"42/", fetchtest.Fail(http.StatusForbidden, 101, "You don't have permission"))

	m, err := New(attachmentSchema, map[string]any{"id": 42}, WithClient(client))
	require.NoError(t, err)
	m.Set("caption", "bar")

	err = m.Save(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, fetch.StatusCode(err))
	assert.True(t, m.HasChanged("caption"))
}

func TestModel_Save_KeepsChangesMadeInFlight(t *testing.T) {
	gate := make(chan struct{})
	url := attachmentRoot + "42/"
	client := fetchtest.New().On(http.MethodPut, url,
		fetchtest.Reply{Body: attachmentEnvelope(42, "c"), Gate: gate},
		fetchtest.JSON(attachmentEnvelope(42, "c")),
	)

	m, err := New(attachmentSchema, map[string]any{"id": 42}, WithClient(client))
	require.NoError(t, err)
	m.Set("caption", "c")

	done := make(chan error, 1)
	go func() { done <- m.Save(context.Background()) }()
	require.Eventually(t, func() bool { return len(client.Requests()) == 1 }, time.Second, 5*time.Millisecond)

	m.Set("file", "/tmp/new.png")
	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, map[string]any{"caption": "c"}, client.Requests()[0].Body)
	assert.False(t, m.HasChanged("caption"))
	assert.True(t, m.HasChanged("file"))
	assert.Equal(t, "/tmp/new.png", m.ToJSON()["path"])

	require.NoError(t, m.Save(context.Background()))
	reqs := client.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, map[string]any{"caption": "c", "path": "/tmp/new.png"}, reqs[1].Body)
	assert.Empty(t, m.Changed())
}

func TestModel_Destroy(t *testing.T) {
	client := fetchtest.New().
		On(http.MethodGet, branchesURL, fetchtest.JSON(branchesPayload())).
		On(http.MethodDelete, branchesURL+"release-1.6.x/", fetchtest.Reply{Status: http.StatusNoContent})
	c := newBranches(client)
	require.NoError(t, c.Fetch(context.Background()))

	m := c.Get("release-1.6.x")
	require.NotNil(t, m)
	require.NoError(t, m.Destroy(context.Background()))

	assert.Equal(t, 2, c.Len())
	assert.Nil(t, m.Collection())
	assert.Nil(t, c.Get("release-1.6.x"))
}

func TestModel_Destroy_NewModelOnlyReleases(t *testing.T) {
	client := fetchtest.New()
	c := newBranches(client)
	m := c.NewModel(nil)
	require.NoError(t, c.Add(m))

	require.NoError(t, m.Destroy(context.Background()))
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, client.Requests())
}

func TestModel_Fetch_Superseded(t *testing.T) {
	gate := make(chan struct{})
	url := attachmentRoot + "42/"
	client := fetchtest.New().On(http.MethodGet, url,
		fetchtest.Reply{Body: attachmentEnvelope(42, "stale"), Gate: gate},
		fetchtest.JSON(attachmentEnvelope(42, "fresh")),
	)
	metrics := NewMetricsObserver()

	m, err := New(attachmentSchema, map[string]any{"id": 42}, WithClient(client), WithObserver(metrics))
	require.NoError(t, err)

	first := make(chan error, 1)
	go func() { first <- m.Fetch(context.Background()) }()
	require.Eventually(t, func() bool { return len(client.Requests()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Fetch(context.Background()))
	assert.Equal(t, "fresh", m.Get("caption"))

	close(gate)
	assert.ErrorIs(t, <-first, ErrSuperseded)
	assert.Equal(t, "fresh", m.Get("caption"))
	assert.Equal(t, int64(1), metrics.Snapshot().SupersededCount)
}

func TestModel_Fetch_ContextCanceled(t *testing.T) {
	gate := make(chan struct{})
	url := attachmentRoot + "42/"
	client := fetchtest.New().On(http.MethodGet, url, fetchtest.Reply{Body: attachmentEnvelope(42, "x"), Gate: gate})

	m, err := New(attachmentSchema, map[string]any{"id": 42}, WithClient(client))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = m.Fetch(ctx)
	require.Error(t, err)

	var te *fetch.TransportError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.Timeout())
}
