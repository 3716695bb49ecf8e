package model

import "time"

// User is the sanitized account view returned to clients. It never carries
// the password hash or the stored refresh token.
type User struct {
	ID         int64
	Username   string
	Email      string
	FullName   string
	Avatar     Image
	CoverImage Image
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Image pairs an object-storage key with a presigned URL. The URL is derived
// on read and is empty when no object is stored.
type Image struct {
	Key string
	URL string
}
