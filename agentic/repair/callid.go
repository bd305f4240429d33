package repair

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxCallIDLength = 40

// repairCallID returns a usable call id and the audit entries describing
// any change. Ids that already start with an alphanumeric character are
// kept verbatim.
func repairCallID(id string) (string, []string) {
	if strings.TrimSpace(id) == "" {
		return NewCallID(), []string{"generated missing tool call id"}
	}
	if isAlphanumeric(rune(id[0])) {
		return id, nil
	}
	var b strings.Builder
	for _, r := range id {
		if isAlphanumeric(r) {
			b.WriteRune(r)
		}
		if b.Len() == maxCallIDLength {
			break
		}
	}
	if b.Len() == 0 {
		return NewCallID(), []string{"regenerated tool call id with no usable characters"}
	}
	return b.String(), []string{"sanitized tool call id " + strconv.Quote(id)}
}

// NewCallID returns a fresh alphanumeric call id derived from the current
// time and a random UUID.
func NewCallID() string {
	seed := strconv.FormatInt(time.Now().UnixNano(), 10) + uuid.NewString()
	sum := sha256.Sum256([]byte(seed))
	return "call" + hex.EncodeToString(sum[:12])
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
