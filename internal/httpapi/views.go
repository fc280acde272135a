// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package httpapi

import (
	"time"

	"github.com/userauth/accountd/internal/auth"
)

const (
	statusSuccess = "SUCCESS"
	statusFailed  = "FAILED"
)

// Response messages.
const (
	msgWelcome         = "Welcome to accountd server!"
	msgRegistered      = "User Registration success!"
	msgLoginSuccess    = "Login success"
	msgSuccess         = "Success"
	msgUserExists      = "User Already exists"
	msgUserNotFound    = "User Not Found!"
	msgInvalidPassword = "Invalid password"
	msgInvalidRequest  = "Invalid User Request!"
	msgNoToken         = "No Token Provided!"
	msgInvalidToken    = "Unauthorized!, its an invalid token."
	msgServerError     = "Server Error"
)

// envelope is the body of register success and of every failure.
type envelope struct {
	Msg    string `json:"msg"`
	Data   any    `json:"data"`
	Status string `json:"status"`
}

type messageResponse struct {
	Msg string `json:"msg"`
}

// profileView is the wire form of auth.Profile.
type profileView struct {
	ID        string    `json:"_id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	ImgURL    string    `json:"imgUrl"`
	IsAdmin   bool      `json:"isAdmin"`
}

func newProfileView(p auth.Profile) profileView {
	return profileView{
		ID:        p.ID,
		Email:     p.Email,
		Username:  p.Username,
		CreatedAt: p.CreatedAt.UTC(),
		ImgURL:    p.AvatarURL,
		IsAdmin:   p.IsAdmin,
	}
}

type loginResponse struct {
	Msg   string      `json:"msg"`
	Token string      `json:"token"`
	Data  profileView `json:"data"`
}

type meResponse struct {
	User profileView `json:"user"`
	Msg  string      `json:"msg"`
}
