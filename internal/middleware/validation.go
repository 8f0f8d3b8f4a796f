package middleware

import (
	"errors"
	"strconv"
	"unicode/utf8"
)

const (
	maxContentLength   = 100000
	maxGroupNameLength = 100
	maxMembers         = 256
)

// ValidateMessageContent validates message content. Blank content is left to
// the session, which rejects it after trimming.
func ValidateMessageContent(content string) error {
	if len(content) > maxContentLength {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateGroupName validates a group name.
func ValidateGroupName(name string) error {
	if utf8.RuneCountInString(name) > maxGroupNameLength {
		return errors.New("group name exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return errors.New("group name must be valid UTF-8")
	}
	return nil
}

// ParseID parses a positive numeric path id.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id format")
	}
	return id, nil
}

// ValidateUserIDs validates a member list.
func ValidateUserIDs(ids []int64) error {
	if len(ids) > maxMembers {
		return errors.New("too many members")
	}
	for _, id := range ids {
		if id <= 0 {
			return errors.New("invalid user id")
		}
	}
	return nil
}
