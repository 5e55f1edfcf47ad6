package server

import (
	"errors"
	"math/rand"
	"strings"
)

const roomIDLength = 4

// GenerateRoomID returns a random candidate room id. Uniqueness is checked
// against the store at creation time, not here.
func GenerateRoomID() string {
	id := make([]byte, roomIDLength)
	for i := range id {
		id[i] = 'A' + byte(rand.Intn(26))
	}
	return string(id)
}

func ValidateRoomID(id string) error {
	if len(id) != roomIDLength {
		return errors.New("Room id must be exactly 4 characters")
	}

	id = strings.ToUpper(id)
	for _, ch := range id {
		if ch < 'A' || ch > 'Z' {
			return errors.New("Room id must contain only letters A-Z")
		}
	}

	return nil
}

func NormalizeRoomID(id string) string {
	return strings.ToUpper(id)
}
