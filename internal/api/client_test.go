package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redcapp/redcapp/internal/cache"
	"github.com/redcapp/redcapp/internal/metadata"
)

const testToken = "0123456789ABCDEF0123456789ABCDEF"

// fakeAPI is a minimal stand-in for the export endpoint
type fakeAPI struct {
	mu       sync.Mutex
	calls    map[string]int
	sessions map[string]bool
	forms    []map[string][]string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{calls: map[string]int{}, sessions: map[string]bool{}}

	r := chi.NewRouter()
	r.Post("/api/", f.handle)
	r.Post("/broken/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	})
	r.Post("/garbage/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	content := r.PostForm.Get("content")
	f.calls[content]++
	f.sessions[r.Header.Get(SessionHeader)] = true
	f.forms = append(f.forms, r.PostForm)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.PostForm.Get("token") != testToken {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"error": "You do not have permissions to use the API"})
		return
	}
	if r.PostForm.Get("format") != "json" || r.PostForm.Get("returnFormat") != "json" {
		http.Error(w, "format must be json", http.StatusBadRequest)
		return
	}

	switch content {
	case ContentMetadata:
		json.NewEncoder(w).Encode([]metadata.Metadatum{
			{FieldName: "record_id", FormName: "enrolment", FieldType: "text"},
			{FieldName: "consent", FormName: "enrolment", FieldType: "checkbox", BranchingLogic: "[record_id] <> ''"},
		})
	case ContentExportFieldNames:
		json.NewEncoder(w).Encode([]metadata.FieldName{
			{ExportFieldName: "record_id", OriginalFieldName: "record_id"},
			{ExportFieldName: "consent___1", OriginalFieldName: "consent", ChoiceValue: "1"},
		})
	case ContentRecord:
		json.NewEncoder(w).Encode([]map[string]string{
			{"record_id": "1", "consent___1": "1"},
			{"record_id": "2", "consent___1": "0"},
		})
	default:
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "The value of the parameter \"content\" is not valid"})
	}
}

func (f *fakeAPI) count(content string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[content]
}

func TestClientSnapshot(t *testing.T) {
	fake, srv := newFakeAPI(t)
	client, err := NewClient(srv.URL+"/api/", testToken)
	require.NoError(t, err)

	snap, err := client.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Metadata, 2)
	require.Len(t, snap.FieldNames, 2)
	assert.Equal(t, "[record_id] <> ''", snap.Metadata[1].BranchingLogic)
	assert.Equal(t, "1", snap.FieldNames[1].ChoiceValue)

	idx, err := snap.Index()
	require.NoError(t, err)
	r, err := idx.Get("consent___1")
	require.NoError(t, err)
	assert.Equal(t, `lookup("record_id") != ''`, r.BranchingLogic)

	assert.Equal(t, 1, fake.count(ContentMetadata))
	assert.Equal(t, 1, fake.count(ContentExportFieldNames))
	assert.True(t, fake.sessions[client.Session().String()])
}

func TestClientRecords(t *testing.T) {
	fake, srv := newFakeAPI(t)
	client, err := NewClient(srv.URL+"/api/", testToken, WithTimeout(5*time.Second))
	require.NoError(t, err)

	records, err := client.Records(context.Background(), "record_id", "consent")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, metadata.Record{"record_id": "2", "consent___1": "0"}, records[1])

	form := fake.forms[0]
	assert.Equal(t, []string{"flat"}, form["type"])
	assert.Equal(t, []string{"record_id"}, form["fields[0]"])
	assert.Equal(t, []string{"consent"}, form["fields[1]"])
}

func TestClientErrors(t *testing.T) {
	_, srv := newFakeAPI(t)
	ctx := context.Background()

	client, err := NewClient(srv.URL+"/api/", "WRONG")
	require.NoError(t, err)
	_, err = client.Metadata(ctx)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusForbidden))
	assert.Contains(t, err.Error(), "You do not have permissions")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.False(t, se.Temporary())

	client, err = NewClient(srv.URL+"/broken/", testToken)
	require.NoError(t, err)
	_, err = client.FieldNames(ctx)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.Equal(t, "upstream unavailable", se.Message)
	assert.True(t, se.Temporary())

	client, err = NewClient(srv.URL+"/garbage/", testToken)
	require.NoError(t, err)
	_, err = client.Metadata(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode metadata response")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	client, err = NewClient(srv.URL+"/api/", testToken)
	require.NoError(t, err)
	_, err = client.Metadata(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("redcap.example.org/api", testToken)
	assert.Error(t, err)

	_, err = NewClient("https://redcap.example.org/api/", "")
	assert.Error(t, err)

	a, err := NewClient("https://redcap.example.org/api/", testToken)
	require.NoError(t, err)
	b, err := NewClient("https://redcap.example.org/api/", testToken)
	require.NoError(t, err)
	assert.NotEqual(t, a.Session(), b.Session())
	assert.Equal(t, "https://redcap.example.org/api/", a.Endpoint())
}

func TestCachedSource(t *testing.T) {
	fake, srv := newFakeAPI(t)
	client, err := NewClient(srv.URL+"/api/", testToken)
	require.NoError(t, err)

	ctx := context.Background()
	store := cache.NewMemoryCache(cache.DefaultConfig())
	key := cache.SnapshotKey(client.Endpoint(), testToken)
	src := NewCachedSource(client, store, key, time.Minute, nil)

	first, err := src.Snapshot(ctx)
	require.NoError(t, err)
	second, err := src.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.count(ContentMetadata))

	_, err = src.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.count(ContentMetadata))

	// a corrupt entry is replaced by a fresh fetch
	require.NoError(t, store.Set(ctx, key, []byte("not json"), 0))
	_, err = src.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, fake.count(ContentMetadata))
}

type failingCache struct{ cache.Cache }

func (failingCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (failingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("connection refused")
}

func TestCachedSourceSurvivesCacheFailure(t *testing.T) {
	fake, srv := newFakeAPI(t)
	client, err := NewClient(srv.URL+"/api/", testToken)
	require.NoError(t, err)

	src := NewCachedSource(client, failingCache{}, "k", 0, nil)
	snap, err := src.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Metadata, 2)

	uncached := NewCachedSource(client, nil, "k", 0, nil)
	_, err = uncached.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fake.count(ContentMetadata))
}
