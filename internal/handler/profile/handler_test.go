package profile

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonieats/assistant/internal/model/profile"
	"github.com/jonieats/assistant/internal/retrieval"
)

func TestListProfiles(t *testing.T) {
	store := profile.NewMemoryStore(profile.Seed(retrieval.Corpus{}, 3))
	r := chi.NewRouter()
	New(store).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profiles", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 3)

	ids := []string{}
	for _, p := range got {
		ids = append(ids, p["id"].(string))
		assert.NotContains(t, p, "systemPrompt")
	}
	assert.ElementsMatch(t, []string{profile.Minimal, profile.Cafe, profile.Voice}, ids)
}
