package service

import (
	"net/url"
	"strings"
)

// Links builds the user-facing URLs embedded in notifications.
type Links struct {
	BaseURL string
}

func (l Links) Invite(token string) string {
	return l.build("/set-password", token)
}

func (l Links) Reset(token string) string {
	return l.build("/reset-password", token)
}

func (l Links) build(path, token string) string {
	return strings.TrimRight(l.BaseURL, "/") + path + "?token=" + url.QueryEscape(token)
}
