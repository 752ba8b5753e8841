package oauth2

import (
	"github.com/emersion/go-sasl"
)

// NewXOAUTH2Client returns a SASL client for the XOAUTH2 mechanism used by
// Gmail and Outlook IMAP.
func NewXOAUTH2Client(username, token string) sasl.Client {
	return &xoauth2Client{username: username, token: token}
}

type xoauth2Client struct {
	username string
	token    string
}

// Start sends "user=<username>\x01auth=Bearer <token>\x01\x01".
func (a *xoauth2Client) Start() (string, []byte, error) {
	return "XOAUTH2", []byte("user=" + a.username + "\x01auth=Bearer " + a.token + "\x01\x01"), nil
}

// Next is never reached on success; a challenge carries the server's JSON
// error, answered with an empty response so the server can fail the login.
func (a *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	if len(challenge) > 0 {
		return []byte{}, nil
	}
	return nil, sasl.ErrUnexpectedServerChallenge
}
