package exception

import "errors"

var (
	ErrCapitalContainerExists   = errors.New("capital: container already exists for user")
	ErrCapitalContainerNotFound = errors.New("capital: container not found")
	ErrCapitalContainerCap      = errors.New("capital: global container cap reached")
	ErrCapitalInsufficient      = errors.New("capital: insufficient available capital")
	ErrCapitalQuotaDenied       = errors.New("capital: quota denied")
)
