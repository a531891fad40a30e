package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchive_RequiresAuth(t *testing.T) {
	e := newEnv(t)
	w := e.do("GET", "/service/archive/v1/", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestArchive_UploadDownloadDelete(t *testing.T) {
	e := newEnv(t)
	token, _ := e.signupAndSignin("accounts", "a@x.com", "pw1")

	payload := []byte("hello archive")
	body, contentType := multipartBody(t, "note.txt", "text/plain", payload)
	req := httptest.NewRequest("POST", "/service/archive/v1/", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-API-Key", testGateKey)
	withBearer(token)(req)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	entry := e.parse(w)["entry"].(map[string]any)
	id, _ := entry["_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "note.txt", entry["name"])
	assert.Equal(t, "a@x.com", entry["uploadedBy"])

	// listing shows the entry
	w2 := e.do("GET", "/service/archive/v1/", nil, withBearer(token))
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Contains(t, w2.Body.String(), "note.txt")

	// download streams the original bytes
	w2 = e.do("GET", "/service/archive/v1/"+id, nil, withBearer(token))
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, payload, w2.Body.Bytes())
	assert.Equal(t, "text/plain", w2.Header().Get("Content-Type"))
	assert.Contains(t, w2.Header().Get("Content-Disposition"), "note.txt")

	// presign returns a direct URL instead of the bytes
	w2 = e.do("GET", "/service/archive/v1/"+id+"?presign=true", nil, withBearer(token))
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, "https://objects.test/"+id, e.parse(w2)["url"])

	// delete removes metadata and payload
	w2 = e.do("DELETE", "/service/archive/v1/"+id, nil, withBearer(token))
	require.Equal(t, http.StatusNoContent, w2.Code)
	w2 = e.do("GET", "/service/archive/v1/"+id, nil, withBearer(token))
	require.Equal(t, http.StatusNotFound, w2.Code)
	_, kept := e.objects.data[id]
	assert.False(t, kept)
}

func TestArchive_UploadWithoutFile(t *testing.T) {
	e := newEnv(t)
	token, _ := e.signupAndSignin("accounts", "a@x.com", "pw1")

	w := e.do("POST", "/service/archive/v1/", nil, withBearer(token))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
