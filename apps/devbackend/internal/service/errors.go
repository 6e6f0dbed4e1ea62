package service

import "errors"

var (
	ErrInvalidMAC       = errors.New("invalid mac")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionMismatch  = errors.New("session does not belong to token")
	ErrInvalidToken     = errors.New("session token invalid")
	ErrTokenExpired     = errors.New("session token expired")
	ErrImageRequired    = errors.New("imgUrl is required")
	ErrFileEmpty        = errors.New("file is empty")
	ErrFileTooLarge     = errors.New("file too large")
	ErrFileType         = errors.New("file type not allowed")
	ErrFileNotFound     = errors.New("file not found")
	ErrDoorbellNotFound = errors.New("doorbell not found")
)
