// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/trailhead/trailhead/internal/mail"
)

func firstName(name string) string {
	if f := strings.Fields(name); len(f) > 0 {
		return f[0]
	}
	return name
}

func resetMessage(u *User, link string, window time.Duration) mail.Message {
	minutes := int(window.Round(time.Minute) / time.Minute)
	return mail.Message{
		To:      u.Email,
		ToName:  u.Name,
		Subject: fmt.Sprintf("Your password reset token (valid for %d minutes)", minutes),
		Body: fmt.Sprintf("Hi %s,\n\n"+
			"Forgot your password? Submit a PATCH request with your new password and passwordConfirm to:\n\n"+
			"%s\n\n"+
			"If you didn't forget your password, please ignore this email.\n",
			firstName(u.Name), link),
	}
}

func welcomeMessage(u *User) mail.Message {
	return mail.Message{
		To:      u.Email,
		ToName:  u.Name,
		Subject: "Welcome to the Trailhead family!",
		Body: fmt.Sprintf("Hi %s,\n\n"+
			"Welcome aboard. Your account is ready and you can log in with %s.\n",
			firstName(u.Name), u.Email),
	}
}
