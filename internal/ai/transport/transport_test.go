package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

func TestPostJSON_HeadersAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "v", r.Header.Get("X-Test"))
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	raw, err := PostJSON(context.Background(), srv.Client(), srv.URL, map[string]string{"X-Test": "v"}, map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(raw))
}

func TestPostJSON_TruncatesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("x", 2000)))
	}))
	defer srv.Close()

	_, err := PostJSON(context.Background(), srv.Client(), srv.URL, nil, nil)
	require.ErrorIs(t, err, models.ErrBackendResponse)
	assert.Contains(t, err.Error(), "status 502")
	assert.Less(t, len(err.Error()), 700)
}

func TestClassify(t *testing.T) {
	expired, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-expired.Done()

	assert.Nil(t, Classify(context.Background(), nil))
	assert.ErrorIs(t, Classify(context.Background(), errors.New("refused")), models.ErrBackendUnavailable)
	assert.ErrorIs(t, Classify(expired, errors.New("canceled")), models.ErrBackendTimeout)
	assert.ErrorIs(t, Classify(context.Background(), context.DeadlineExceeded), models.ErrBackendTimeout)

	already := Classify(context.Background(), models.ErrBackendResponse)
	assert.ErrorIs(t, already, models.ErrBackendResponse)
	assert.NotErrorIs(t, already, models.ErrBackendUnavailable)
}
