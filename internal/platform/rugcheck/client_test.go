package rugcheck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tokens/MintA/report/summary", r.URL.Path)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAssessReadsNormalisedScoreAndRisks(t *testing.T) {
	srv := serve(t, http.StatusOK, `{
		"score": 1200, "scoreNormalised": 72,
		"risks": [
			{"name": "Mint Authority still enabled", "level": "danger"},
			{"name": "Low Liquidity", "level": "warn"}
		]}`)

	c := NewClient(srv.URL+"/v1/tokens", "", time.Second)
	v, err := c.Assess(context.Background(), "MintA")
	require.NoError(t, err)
	assert.Equal(t, 72.0, v.Score)
	assert.Equal(t, []string{"Mint Authority still enabled", "Low Liquidity"}, v.RiskNames)
	assert.False(t, v.Transient)
	assert.Empty(t, v.APIError)
}

func TestAssessFallsBackToRawScore(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"score": 40, "scoreNormalised": null, "risks": []}`)

	c := NewClient(srv.URL+"/v1/tokens", "", time.Second)
	v, err := c.Assess(context.Background(), "MintA")
	require.NoError(t, err)
	assert.Equal(t, 40.0, v.Score)
}

func TestAssessSendsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		_, _ = w.Write([]byte(`{"score": 90}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", time.Second)
	_, err := c.Assess(context.Background(), "MintA")
	require.NoError(t, err)
}

func TestAssessFailuresAreTransient(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"not found", http.StatusNotFound, ``, domain.ErrNotFound},
		{"unauthorized", http.StatusUnauthorized, ``, domain.ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ``, domain.ErrUnauthorized},
		{"rate limited", http.StatusTooManyRequests, ``, domain.ErrRateLimited},
		{"server error", http.StatusBadGateway, `oops`, nil},
		{"not an object", http.StatusOK, `[1,2,3]`, ErrMalformedResponse},
		{"missing score", http.StatusOK, `{"risks": []}`, ErrMalformedResponse},
		{"non numeric score", http.StatusOK, `{"score": "high"}`, ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, tt.status, tt.body)
			c := NewClient(srv.URL+"/v1/tokens", "", time.Second)

			v, err := c.Assess(context.Background(), "MintA")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.False(t, v.Passed)
			assert.True(t, v.Transient)
			assert.NotEmpty(t, v.APIError)
			assert.NotEmpty(t, v.Reasons)
		})
	}
}

func TestAssessTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 50*time.Millisecond)
	v, err := c.Assess(context.Background(), "MintA")
	require.Error(t, err)
	assert.Equal(t, "timeout", v.APIError)
	assert.True(t, v.Transient)
}

type stubLimiter struct {
	keys []string
	err  error
}

func (l *stubLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (l *stubLimiter) Wait(_ context.Context, key string) error {
	l.keys = append(l.keys, key)
	return l.err
}

func TestAssessWaitsOnLimiter(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"score": 10}`)
	c := NewClient(srv.URL+"/v1/tokens", "", time.Second)
	lim := &stubLimiter{}
	c.SetLimiter(lim)

	_, err := c.Assess(context.Background(), "MintA")
	require.NoError(t, err)
	assert.Equal(t, []string{LimiterKey}, lim.keys)

	lim.err = errors.New("context deadline exceeded")
	v, err := c.Assess(context.Background(), "MintA")
	require.Error(t, err)
	assert.True(t, v.Transient)
	assert.False(t, v.Passed)
}
