package notifications

import (
	"context"
	"errors"
)

const APKSubject = "Download the Latest APK"

var ErrNoRecipients = errors.New("no recipients configured")

type SendAPKLinkInput struct {
	Recipients []string
	Link       string
}

type Notifier interface {
	SendAPKLink(ctx context.Context, input SendAPKLinkInput) error
}

func APKBody(link string) string {
	return "Hi, \n\nPlease click the link below to download the latest APK:\n\n" + link + "\n\nThank you!"
}
