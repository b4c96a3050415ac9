package id

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-uuid"
)

// IdLength is the length of a generated id without its prefix.
const IdLength = 32

// New generates a random ID with an optional prefix. The ID is suitable
// for an attempt state id or an oidc nonce.
func New(optionalPrefix string) (string, error) {
	u, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("unable to generate id: %w", err)
	}
	id := strings.ReplaceAll(u, "-", "")
	switch {
	case optionalPrefix != "":
		return fmt.Sprintf("%s_%s", optionalPrefix, id), nil
	default:
		return id, nil
	}
}
