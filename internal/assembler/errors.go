package assembler

import (
	"errors"
	"fmt"
)

var (
	// ErrBudgetExceeded matches *BudgetExceededError.
	ErrBudgetExceeded = errors.New("context budget exceeded")
	ErrInvalidRequest = errors.New("invalid context request")
)

// BudgetExceededError reports that core settings and the most recent chapter
// alone do not fit the total input budget.
type BudgetExceededError struct {
	NovelID  string
	Chapter  int
	Required int
	Limit    int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s: novel %s chapter %d needs %d tokens after shedding, limit is %d",
		ErrBudgetExceeded, e.NovelID, e.Chapter, e.Required, e.Limit)
}

func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}
