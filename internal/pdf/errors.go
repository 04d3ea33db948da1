package pdf

import "errors"

// ErrEmptyDocumentSet は後処理対象の文書が1件も無いことを表します。
var ErrEmptyDocumentSet = errors.New("cannot postprocess an empty document set")

// Error は API 応答やジョブ失敗記録にそのまま載せられるエラーです。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
