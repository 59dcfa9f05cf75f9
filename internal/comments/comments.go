// Package comments posts anonymous comments on shared resumes.
package comments

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"jobtrack-engine/internal/domain"
)

const (
	MaxAuthorNameLen = 100
	MaxBodyLen       = 2000
)

type Code string

const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeInvalidToken     Code = "INVALID_TOKEN"
	CodeInactiveShare    Code = "INACTIVE_SHARE"
	CodeExpiredShare     Code = "EXPIRED_SHARE"
	CodeCommentsDisabled Code = "COMMENTS_DISABLED"
	CodeCommentFailed    Code = "COMMENT_FAILED"
)

// Error is a tagged outcome of PostComment. It is returned, never thrown.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

type Input struct {
	AuthorName string `json:"author_name"`
	Body       string `json:"body"`
}

type ShareStore interface {
	// GetShareByToken returns (nil, nil) when the token is unknown.
	GetShareByToken(ctx context.Context, token string) (*domain.ShareRecord, error)
	InsertComment(ctx context.Context, shareID string, in Input) (commentID string, err error)
}

type Deps struct {
	Store ShareStore
	Now   func() time.Time
}

type Result struct {
	Success   bool   `json:"success"`
	CommentID string `json:"comment_id,omitempty"`
	Err       *Error `json:"error,omitempty"`
}

func fail(code Code, msg string) Result {
	return Result{Err: &Error{Code: code, Message: msg}}
}

// ValidateComment checks shape only. Lengths count characters, not bytes.
func ValidateComment(in Input) error {
	if e := validate(in); e != nil {
		return e
	}
	return nil
}

func validate(in Input) *Error {
	name := strings.TrimSpace(in.AuthorName)
	body := strings.TrimSpace(in.Body)

	switch {
	case name == "":
		return &Error{Code: CodeValidation, Message: "Author name is required"}
	case utf8.RuneCountInString(name) > MaxAuthorNameLen:
		return &Error{Code: CodeValidation, Message: "Author name must be less than 100 characters"}
	case body == "":
		return &Error{Code: CodeValidation, Message: "Comment is required"}
	case utf8.RuneCountInString(body) > MaxBodyLen:
		return &Error{Code: CodeValidation, Message: "Comment must be less than 2000 characters"}
	}
	return nil
}

// PostComment runs the guards in a fixed order: input, token, active,
// expiry, permission, then the insert. Validation never touches the store.
func PostComment(ctx context.Context, token string, in Input, d Deps) Result {
	if e := validate(in); e != nil {
		return Result{Err: e}
	}

	share, err := d.Store.GetShareByToken(ctx, token)
	if err != nil {
		return fail(CodeCommentFailed, err.Error())
	}
	if share == nil {
		return fail(CodeInvalidToken, "Invalid or unknown share link")
	}
	if !share.IsActive {
		return fail(CodeInactiveShare, "This share link is no longer active")
	}

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	if share.ExpiresAt != nil && share.ExpiresAt.Before(now()) {
		return fail(CodeExpiredShare, "This share link has expired")
	}
	if !share.CanComment {
		return fail(CodeCommentsDisabled, "Comments are disabled for this share")
	}

	id, err := d.Store.InsertComment(ctx, share.ID, Input{
		AuthorName: strings.TrimSpace(in.AuthorName),
		Body:       strings.TrimSpace(in.Body),
	})
	if err != nil {
		return fail(CodeCommentFailed, err.Error())
	}
	return Result{Success: true, CommentID: id}
}
