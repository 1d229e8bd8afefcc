package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidFilename(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"report.pdf", true},
		{"with spaces.txt", true},
		{"résumé.doc", true},
		{strings.Repeat("a", 255), true},
		{"", false},
		{".", false},
		{"..", false},
		{"a/b.txt", false},
		{`a\b.txt`, false},
		{"bad\x00name", false},
		{"bad\nname", false},
		{strings.Repeat("a", 256), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, validFilename(tc.name), "filename %q", tc.name)
	}
}

func TestValidBase64(t *testing.T) {
	assert.True(t, validBase64("aGVsbG8="))
	assert.False(t, validBase64(""))
	assert.False(t, validBase64("not base64!"))
	assert.False(t, validBase64("a======="))
}

func TestValidTagsAndPort(t *testing.T) {
	assert.True(t, validTags(nil))
	assert.True(t, validTags([]string{"lab", "eu-west_1"}))
	assert.False(t, validTags([]string{"UPPER"}))
	assert.False(t, validTags([]string{""}))

	assert.True(t, validPort(0))
	assert.True(t, validPort(65535))
	assert.False(t, validPort(-1))
	assert.False(t, validPort(70000))
}

func TestValidateAnnouncement(t *testing.T) {
	good := Announcement{
		BlockID:   "0x" + strings.Repeat("ab", 32),
		EventType: evFileCreated,
		Timestamp: 1700000000,
		NodeID:    strings.Repeat("cd", 32),
	}
	require.NoError(t, validateAnnouncement(&good))

	bad := good
	bad.BlockID = strings.Repeat("ab", 32) // missing 0x
	assert.Error(t, validateAnnouncement(&bad))

	bad = good
	bad.NodeID = "short"
	assert.Error(t, validateAnnouncement(&bad))

	bad = good
	bad.Timestamp = 0
	assert.Error(t, validateAnnouncement(&bad))
}

func TestValidateEnvelopeProtocol(t *testing.T) {
	env := Envelope{
		EventType: evNodeStatus,
		Timestamp: 1700000000,
		NodeID:    strings.Repeat("ab", 32),
		Protocol:  "dfs3/0.9",
		Payload:   []byte(`{}`),
		Signature: "aGVsbG8=",
	}
	err := validateEnvelope(&env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "protocol")

	env.Protocol = protocol
	assert.NoError(t, validateEnvelope(&env))
}

func TestValidateAuthorizedUsers(t *testing.T) {
	u := AuthorizedUser{
		UserID:       strings.Repeat("ab", 32),
		EncryptedKey: "aGVsbG8=",
		IV:           "aGVsbG8=",
	}
	require.NoError(t, validateAuthorizedUsers([]AuthorizedUser{u}))

	assert.Error(t, validateAuthorizedUsers(nil), "empty grant list")
	assert.Error(t, validateAuthorizedUsers([]AuthorizedUser{u, u}), "duplicate user")

	bad := u
	bad.EncryptedKey = "!!"
	assert.Error(t, validateAuthorizedUsers([]AuthorizedUser{bad}))
}

func TestValidateFileCreatedOwnerMustBeAuthorized(t *testing.T) {
	owner := strings.Repeat("ab", 32)
	other := strings.Repeat("cd", 32)
	grant := func(id string) AuthorizedUser {
		return AuthorizedUser{UserID: id, EncryptedKey: "aGVsbG8=", IV: "aGVsbG8="}
	}
	p := FileCreatedPayload{
		UserID:          owner,
		FileID:          strings.Repeat("ef", 32),
		Filename:        "report.pdf",
		Size:            100,
		Mimetype:        "application/pdf",
		SHA256:          strings.Repeat("12", 32),
		IV:              "aGVsbG8=",
		AuthorizedUsers: []AuthorizedUser{grant(owner), grant(other)},
		Version:         1,
	}
	require.NoError(t, validateFileCreated(&p))

	p.AuthorizedUsers = []AuthorizedUser{grant(other)}
	err := validateFileCreated(&p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner")

	p.AuthorizedUsers = []AuthorizedUser{grant(owner)}
	p.Size = maxFileSize + 1
	assert.Error(t, validateFileCreated(&p))

	p.Size = 100
	p.Mimetype = "not a mimetype"
	assert.Error(t, validateFileCreated(&p))
}

func TestValidateUserRegistered(t *testing.T) {
	p := UserRegisteredPayload{
		UserID:    strings.Repeat("ab", 32),
		Alias:     "alice_01",
		Email:     "alice@example.org",
		PublicKey: "aGVsbG8=",
		Version:   1,
	}
	require.NoError(t, validateUserRegistered(&p))

	bad := p
	bad.Alias = "A"
	assert.Error(t, validateUserRegistered(&bad))

	bad = p
	bad.Email = "not-an-email"
	assert.Error(t, validateUserRegistered(&bad))

	bad = p
	bad.PublicKey = ""
	assert.Error(t, validateUserRegistered(&bad))
}
