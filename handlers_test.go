package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// apiClient drives the HTTP API in tests, optionally with a bearer token.
type apiClient struct {
	t     *testing.T
	base  string
	token string
}

func newAPIServer(t *testing.T) (*App, *fakeLedger, *apiClient) {
	t.Helper()
	app, fl := newTestApp(t)
	srv := httptest.NewServer(newRouter(app))
	t.Cleanup(srv.Close)
	return app, fl, &apiClient{t: t, base: srv.URL}
}

func (c *apiClient) request(method, path, contentType string, body io.Reader) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.base+path, body)
	require.NoError(c.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	return resp
}

func (c *apiClient) get(path string) *http.Response {
	return c.request(http.MethodGet, path, "", nil)
}

func (c *apiClient) postJSON(path string, v any) *http.Response {
	c.t.Helper()
	b, err := json.Marshal(v)
	require.NoError(c.t, err)
	return c.request(http.MethodPost, path, "application/json", bytes.NewReader(b))
}

func readJSON(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// register registers u through the API and returns nothing; login gets a
// bearer token via the challenge dance.
func register(t *testing.T, c *apiClient, u *testUser) {
	t.Helper()
	resp := c.postJSON("/api/v1/auth/register", RegisterRequest{
		UserID: u.id, Alias: "tester", PublicKey: u.pubB64,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	drain(resp)
}

func login(t *testing.T, c *apiClient, u *testUser) string {
	t.Helper()
	resp := c.postJSON("/api/v1/auth/challenge", ChallengeRequest{UserID: u.id})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ch map[string]string
	readJSON(t, resp, &ch)
	require.NotEmpty(t, ch["challenge"])

	resp = c.postJSON("/api/v1/auth/verify", VerifyRequest{
		UserID:    u.id,
		Signature: u.signText(ch["challenge"]),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tok map[string]string
	readJSON(t, resp, &tok)
	require.NotEmpty(t, tok["access_token"])
	return tok["access_token"]
}

func uploadMeta(u *testUser, filename string, content []byte, grants ...AuthorizedUser) UploadFileMetadata {
	return UploadFileMetadata{
		Filename:        filename,
		FileID:          sha256Hex(content),
		Size:            int64(len(content)),
		Mimetype:        "application/pdf",
		SHA256:          sha256Hex(content),
		IV:              "aGVsbG8=",
		AuthorizedUsers: append([]AuthorizedUser{u.grant()}, grants...),
	}
}

func multipartUpload(t *testing.T, meta UploadFileMetadata, data []byte) (string, io.Reader) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mj, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("metadata", string(mj)))
	part, err := mw.CreateFormFile("data", meta.Filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), &buf
}

func mustUpload(t *testing.T, c *apiClient, u *testUser, filename string, content []byte, grants ...AuthorizedUser) {
	t.Helper()
	ct, body := multipartUpload(t, uploadMeta(u, filename, content, grants...), content)
	resp := c.request(http.MethodPost, "/api/v1/files", ct, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	drain(resp)
}

func listFiles(t *testing.T, c *apiClient) []FileEntry {
	t.Helper()
	resp := c.get("/api/v1/files")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []FileEntry
	readJSON(t, resp, &entries)
	return entries
}

func TestStatusEndpointIsPublic(t *testing.T) {
	_, _, c := newAPIServer(t)
	resp := c.get("/api/v1/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	readJSON(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, swVersion, body["message"])
}

func TestAuthEndToEnd(t *testing.T) {
	app, _, c := newAPIServer(t)
	u := newTestUser(t)

	resp := c.get("/api/v1/files")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	drain(resp)

	// user_id must be the hash of the key
	resp = c.postJSON("/api/v1/auth/register", RegisterRequest{
		UserID: strings.Repeat("ab", 32), Alias: "tester", PublicKey: u.pubB64,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	drain(resp)

	register(t, c, u)

	resp = c.postJSON("/api/v1/auth/register", RegisterRequest{
		UserID: u.id, Alias: "tester", PublicKey: u.pubB64,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	drain(resp)

	c.token = login(t, c, u)
	assert.Empty(t, listFiles(t, c))

	// the login trail is on the event index
	events, err := app.store.ListEvents()
	require.NoError(t, err)
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.EventType
	}
	assert.Contains(t, types, evUserRegistered)
	assert.Contains(t, types, evUserJoinedNode)
}

func TestChallengeUnknownUser(t *testing.T) {
	_, _, c := newAPIServer(t)
	resp := c.postJSON("/api/v1/auth/challenge", ChallengeRequest{UserID: strings.Repeat("ab", 32)})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	drain(resp)
}

func TestVerifyFlowGuards(t *testing.T) {
	_, _, c := newAPIServer(t)
	u := newTestUser(t)
	register(t, c, u)

	// no outstanding challenge
	resp := c.postJSON("/api/v1/auth/verify", VerifyRequest{UserID: u.id, Signature: u.signText("anything")})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	drain(resp)

	resp = c.postJSON("/api/v1/auth/challenge", ChallengeRequest{UserID: u.id})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ch map[string]string
	readJSON(t, resp, &ch)

	// a wrong signature does not consume the challenge
	resp = c.postJSON("/api/v1/auth/verify", VerifyRequest{UserID: u.id, Signature: u.signText("not the challenge")})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	drain(resp)

	good := VerifyRequest{UserID: u.id, Signature: u.signText(ch["challenge"])}
	resp = c.postJSON("/api/v1/auth/verify", good)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	drain(resp)

	// a successful login does: the challenge is single-use
	resp = c.postJSON("/api/v1/auth/verify", good)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	drain(resp)
}

func TestUploadDownloadRoundtrip(t *testing.T) {
	app, _, c := newAPIServer(t)
	u := newTestUser(t)
	register(t, c, u)
	c.token = login(t, c, u)

	content := []byte("encrypted pdf bytes")
	fileID := sha256Hex(content)
	mustUpload(t, c, u, "report.pdf", content)

	entries := listFiles(t, c)
	require.Len(t, entries, 1)
	assert.Equal(t, "report.pdf", entries[0].Name)
	assert.Equal(t, fileID, entries[0].FileID)
	assert.Equal(t, int64(len(content)), entries[0].Size)

	resp := c.get("/api/v1/files/report.pdf")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, content, got)

	h := resp.Header
	assert.Equal(t, fileID, h.Get("X-DFS3-File-ID"))
	assert.Equal(t, u.id, h.Get("X-DFS3-Owner"))
	assert.Equal(t, u.pubB64, h.Get("X-DFS3-Public-Key"))
	assert.Equal(t, u.grant().EncryptedKey, h.Get("X-DFS3-Encrypted-Key"))
	assert.Equal(t, u.grant().IV, h.Get("X-DFS3-IV-Key"))
	assert.Equal(t, strconv.Itoa(len(content)), h.Get("X-DFS3-Size"))
	assert.Equal(t, "application/pdf", h.Get("Content-Type"))
	assert.Contains(t, h.Get("Content-Disposition"), `"report.pdf"`)

	// every download leaves an access event
	events, err := app.store.ListEvents()
	require.NoError(t, err)
	var accessed bool
	for _, e := range events {
		accessed = accessed || e.EventType == evFileAccessed
	}
	assert.True(t, accessed)

	// metadata endpoint
	resp = c.get("/api/v1/files/report.pdf/meta")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var m FileMetadata
	readJSON(t, resp, &m)
	assert.Equal(t, fileID, m.FileID)
	assert.Equal(t, u.id, m.OwnerID)
	assert.Equal(t, []string{app.nodeID()}, m.ReplicaNodes)

	// the raw blob endpoint is public and keyed by file_id
	pub := &apiClient{t: t, base: c.base}
	resp = pub.get("/api/v1/files/" + fileID + "/data")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, content, raw)
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))

	resp = pub.get("/api/v1/files/not-hex/data")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	drain(resp)
	resp = pub.get("/api/v1/files/" + strings.Repeat("00", 32) + "/data")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	drain(resp)
}

func TestUploadSameNameCollides(t *testing.T) {
	_, _, c := newAPIServer(t)
	u := newTestUser(t)
	register(t, c, u)
	c.token = login(t, c, u)

	mustUpload(t, c, u, "notes.txt", []byte("first version"))
	mustUpload(t, c, u, "notes.txt", []byte("second version"))

	entries := listFiles(t, c)
	require.Len(t, entries, 2)
	assert.Equal(t, "notes (1).txt", entries[0].Name)
	assert.Equal(t, "notes.txt", entries[1].Name)
}

func TestUploadIdenticalReplayIsIdempotent(t *testing.T) {
	_, _, c := newAPIServer(t)
	u := newTestUser(t)
	register(t, c, u)
	c.token = login(t, c, u)

	content := []byte("same bytes")
	mustUpload(t, c, u, "notes.txt", content)
	mustUpload(t, c, u, "notes.txt", content)

	entries := listFiles(t, c)
	assert.Len(t, entries, 1, "same document under the same name links once")
}

func TestUploadValidation(t *testing.T) {
	_, _, c := newAPIServer(t)
	u := newTestUser(t)
	register(t, c, u)
	c.token = login(t, c, u)

	content := []byte("payload")

	post := func(meta UploadFileMetadata, data []byte) *http.Response {
		ct, body := multipartUpload(t, meta, data)
		return c.request(http.MethodPost, "/api/v1/files", ct, body)
	}

	// metadata size disagrees with the body
	meta := uploadMeta(u, "a.bin", content)
	meta.Size = int64(len(content)) + 1
	resp := post(meta, content)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	drain(resp)

	// file_id is not the hash of the body
	meta = uploadMeta(u, "a.bin", content)
	meta.FileID = strings.Repeat("00", 32)
	resp = post(meta, content)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	drain(resp)

	// announced size over the cap is 413, not 400
	meta = uploadMeta(u, "a.bin", content)
	meta.Size = maxFileSize + 1
	resp = post(meta, content)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	drain(resp)

	// owner missing from the grant list
	meta = uploadMeta(u, "a.bin", content)
	other := newTestUser(t)
	meta.AuthorizedUsers = []AuthorizedUser{other.grant()}
	resp = post(meta, content)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	drain(resp)

	// missing data part
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mj, err := json.Marshal(uploadMeta(u, "a.bin", content))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("metadata", string(mj)))
	require.NoError(t, mw.Close())
	resp = c.request(http.MethodPost, "/api/v1/files", mw.FormDataContentType(), &buf)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	drain(resp)

	// missing metadata part
	buf.Reset()
	mw = multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("data", "a.bin")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	resp = c.request(http.MethodPost, "/api/v1/files", mw.FormDataContentType(), &buf)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	drain(resp)

	assert.Empty(t, listFiles(t, c), "nothing was stored")
}

func TestUploadBodyTooLarge(t *testing.T) {
	_, _, c := newAPIServer(t)
	u := newTestUser(t)
	register(t, c, u)
	c.token = login(t, c, u)

	// body larger than the reader cap; metadata lies about the size
	content := bytes.Repeat([]byte("x"), maxFileSize+uploadOverhead+1024)
	meta := uploadMeta(u, "huge.bin", content)
	meta.Size = 100

	ct, body := multipartUpload(t, meta, content)
	resp := c.request(http.MethodPost, "/api/v1/files", ct, body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	drain(resp)
}

func TestShareEndToEnd(t *testing.T) {
	_, _, c := newAPIServer(t)
	owner := newTestUser(t)
	friend := newTestUser(t)
	register(t, c, owner)
	register(t, c, friend)
	c.token = login(t, c, owner)
	friendClient := &apiClient{t: t, base: c.base, token: login(t, c, friend)}

	content := []byte("shared secret blob")
	mustUpload(t, c, owner, "doc.pdf", content)
	assert.Empty(t, listFiles(t, friendClient))

	resp := c.postJSON("/api/v1/files/share", ShareFileRequest{
		Filename:        "doc.pdf",
		AuthorizedUsers: []AuthorizedUser{friend.grant()},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	drain(resp)

	entries := listFiles(t, friendClient)
	require.Len(t, entries, 1)
	assert.Equal(t, "doc.pdf", entries[0].Name)

	resp = friendClient.get("/api/v1/files/doc.pdf")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, friend.grant().EncryptedKey, resp.Header.Get("X-DFS3-Encrypted-Key"))
	assert.Equal(t, owner.pubB64, resp.Header.Get("X-DFS3-Public-Key"))

	// only the owner may extend the grant list
	third := newTestUser(t)
	resp = friendClient.postJSON("/api/v1/files/share", ShareFileRequest{
		Filename:        "doc.pdf",
		AuthorizedUsers: []AuthorizedUser{third.grant()},
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	drain(resp)

	resp = c.postJSON("/api/v1/files/share", ShareFileRequest{Filename: "doc.pdf"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	drain(resp)

	resp = c.postJSON("/api/v1/files/share", ShareFileRequest{
		Filename:        "missing.pdf",
		AuthorizedUsers: []AuthorizedUser{friend.grant()},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	drain(resp)
}

func TestRenameAndDelete(t *testing.T) {
	_, _, c := newAPIServer(t)
	u := newTestUser(t)
	register(t, c, u)
	c.token = login(t, c, u)

	mustUpload(t, c, u, "old.pdf", []byte("content"))

	body, _ := json.Marshal(RenameFileRequest{NewName: "new.pdf"})
	resp := c.request(http.MethodPatch, "/api/v1/files/old.pdf", "application/json", bytes.NewReader(body))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	drain(resp)

	entries := listFiles(t, c)
	require.Len(t, entries, 1)
	assert.Equal(t, "new.pdf", entries[0].Name)

	resp = c.get("/api/v1/files/old.pdf")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	drain(resp)

	// renaming a missing entry
	resp = c.request(http.MethodPatch, "/api/v1/files/old.pdf", "application/json", bytes.NewReader(body))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	drain(resp)

	// bad target name
	bad, _ := json.Marshal(RenameFileRequest{NewName: "../escape.pdf"})
	resp = c.request(http.MethodPatch, "/api/v1/files/new.pdf", "application/json", bytes.NewReader(bad))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	drain(resp)

	resp = c.request(http.MethodDelete, "/api/v1/files/new.pdf", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	drain(resp)
	assert.Empty(t, listFiles(t, c))

	resp = c.request(http.MethodDelete, "/api/v1/files/new.pdf", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	drain(resp)
}

func TestEventEndpoints(t *testing.T) {
	app, _, c := newAPIServer(t)
	u := newTestUser(t)
	registerTestUser(t, app, u)

	resp := c.get("/api/v1/events")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var events []EventEntry
	readJSON(t, resp, &events)
	require.Len(t, events, 1)
	assert.Equal(t, evUserRegistered, events[0].EventType)

	resp = c.get("/api/v1/event/" + events[0].BlockID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var e EventEntry
	readJSON(t, resp, &e)
	assert.Equal(t, events[0], e)

	resp = c.get("/api/v1/event/0x" + strings.Repeat("00", 32))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	drain(resp)

	resp = c.get("/api/v1/event/bogus")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	drain(resp)
}

func TestRegistryEndpoints(t *testing.T) {
	app, fl, c := newAPIServer(t)
	u := newTestUser(t)
	register(t, c, u)
	c.token = login(t, c, u)

	peer := newRemoteNode(t)
	registerRemoteNode(t, app, fl, peer, "10.0.0.9", 4820)

	resp := c.get("/api/v1/nodes")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var nodes []NodeRecord
	readJSON(t, resp, &nodes)
	require.Len(t, nodes, 1)
	assert.Equal(t, peer.id, nodes[0].NodeID)

	resp = c.get("/api/v1/nodes/" + peer.id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var node NodeRecord
	readJSON(t, resp, &node)
	assert.Equal(t, "10.0.0.9:4820", node.Endpoint())

	resp = c.get("/api/v1/nodes/" + strings.Repeat("00", 32))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	drain(resp)
	resp = c.get("/api/v1/nodes/bogus")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	drain(resp)

	resp = c.get("/api/v1/users/" + u.id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rec UserRecord
	readJSON(t, resp, &rec)
	assert.Equal(t, "tester", rec.Alias)

	resp = c.get("/api/v1/users")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var users []UserRecord
	readJSON(t, resp, &users)
	assert.Len(t, users, 1)
}

// TestDownloadRelaysFromPeer covers the proxy-while-store path: the blob
// lives on another node, the download streams it through this one.
func TestDownloadRelaysFromPeer(t *testing.T) {
	app, fl, c := newAPIServer(t)
	u := newTestUser(t)
	register(t, c, u)
	c.token = login(t, c, u)

	content := []byte("remote ciphertext")
	fileID := sha256Hex(content)
	remote := blobServer(t, fileID, content)
	ru, err := url.Parse(remote.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(ru.Port())
	require.NoError(t, err)

	peer := newRemoteNode(t)
	registerRemoteNode(t, app, fl, peer, ru.Hostname(), port)

	// the peer announces a file it stores for our user
	env := peer.sign(t, evFileCreated, &FileCreatedPayload{
		UserID:          u.id,
		FileID:          fileID,
		Filename:        "remote.pdf",
		Size:            int64(len(content)),
		Mimetype:        "application/pdf",
		SHA256:          fileID,
		IV:              "aGVsbG8=",
		AuthorizedUsers: []AuthorizedUser{u.grant()},
		Version:         1,
	})
	require.NoError(t, app.ingestBlock(context.Background(), fl.put(t, env)))
	require.False(t, app.blobs.Has(fileID))

	resp := c.get("/api/v1/files/remote.pdf")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, fileID, resp.Header.Get("X-DFS3-File-ID"))

	// the relay keeps a replica and announces it
	require.Eventually(t, func() bool {
		if !app.blobs.Has(fileID) {
			return false
		}
		m, err := app.meta.Read(fileID)
		return err == nil && m.HasReplica(app.nodeID())
	}, 3*time.Second, 20*time.Millisecond)
}

func TestDownloadNoReplicaAnywhere(t *testing.T) {
	app, fl, c := newAPIServer(t)
	u := newTestUser(t)
	register(t, c, u)
	c.token = login(t, c, u)

	content := []byte("lost ciphertext")
	fileID := sha256Hex(content)

	// the peer is reachable but no longer holds the blob
	miss := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(miss.Close)
	mu, err := url.Parse(miss.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(mu.Port())
	require.NoError(t, err)
	peer := newRemoteNode(t)
	registerRemoteNode(t, app, fl, peer, mu.Hostname(), port)

	env := peer.sign(t, evFileCreated, &FileCreatedPayload{
		UserID:          u.id,
		FileID:          fileID,
		Filename:        "lost.pdf",
		Size:            int64(len(content)),
		Mimetype:        "application/pdf",
		SHA256:          fileID,
		IV:              "aGVsbG8=",
		AuthorizedUsers: []AuthorizedUser{u.grant()},
		Version:         1,
	})
	require.NoError(t, app.ingestBlock(context.Background(), fl.put(t, env)))

	resp := c.get("/api/v1/files/lost.pdf")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	drain(resp)
}

func TestCORSPreflight(t *testing.T) {
	_, _, c := newAPIServer(t)

	req, err := http.NewRequest(http.MethodOptions, c.base+"/api/v1/files", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://web.example.org")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	drain(resp)

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")

	// simple requests carry the exposed header list
	resp = c.get("/api/v1/status")
	drain(resp)
	assert.Contains(t, resp.Header.Get("Access-Control-Expose-Headers"), "X-DFS3-Encrypted-Key")
}
