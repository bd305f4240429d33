package compaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/victorarias/agentic-relay/agentic/context/budget"
)

// Extractive is an offline budget.Compactor that keeps the opening of each
// dropped message. It is used when no model is configured for
// summarization.
type Extractive struct {
	// PerMessage caps the characters kept from each message (default 200).
	PerMessage int
}

// Compact implements budget.Compactor.
func (e Extractive) Compact(ctx context.Context, messages []budget.Budgetable) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	limit := e.PerMessage
	if limit <= 0 {
		limit = 200
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Summary of %d earlier messages:", len(messages))
	for _, msg := range messages {
		content := strings.Join(strings.Fields(msg.BudgetContent()), " ")
		if content == "" {
			continue
		}
		if len(content) > limit {
			content = strings.ToValidUTF8(content[:limit], "") + "..."
		}
		fmt.Fprintf(&b, "\n- %s: %s", msg.BudgetRole(), content)
	}
	return b.String(), nil
}
