package docmodel

import "errors"

var (
	errEmptyURL      = errors.New("document url is empty")
	errEmptyTitle    = errors.New("document title is empty")
	errEmptyContent  = errors.New("document content is empty")
	errNegativeRetry = errors.New("retry count is negative")
)
