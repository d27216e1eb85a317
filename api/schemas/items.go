package schemas

import "fmt"

// ShoppingItem describes one product the user wants in the cart. Items are
// treated as immutable once handed to the cart protocol; quantity and options
// are passed through to the action executor verbatim, the controller never
// interprets option semantics.
type ShoppingItem struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Quantity    int               `json:"quantity,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
}

// Normalize applies defaults and validates the item in place.
func (it *ShoppingItem) Normalize() error {
	if it.Name == "" {
		return fmt.Errorf("shopping item requires a name")
	}
	if it.Quantity < 0 {
		return fmt.Errorf("shopping item %q has negative quantity %d", it.Name, it.Quantity)
	}
	if it.Quantity == 0 {
		it.Quantity = 1
	}
	return nil
}

// CartStatus classifies the final outcome of one item.
type CartStatus string

const (
	CartAdded         CartStatus = "Added"
	CartNotFound      CartStatus = "NotFound"
	CartLoginRequired CartStatus = "LoginRequired"
	CartFailed        CartStatus = "Failed"
	// CartSkipped marks items never attempted because the run aborted early.
	CartSkipped CartStatus = "Skipped"
)

// CartOutcome is produced exactly once per ShoppingItem per run. Attempts
// counts executor invocations consumed for the item, including retries.
type CartOutcome struct {
	Item     ShoppingItem `json:"item"`
	Status   CartStatus   `json:"status"`
	Attempts int          `json:"attempts"`
	Detail   string       `json:"detail,omitempty"`
}

// RunStatus is the terminal status of a whole run.
type RunStatus string

const (
	RunCompleted   RunStatus = "Completed"
	RunLoginFailed RunStatus = "LoginFailed"
	RunAborted     RunStatus = "Aborted"
)

// RunResult carries the ordered outcome list for the caller. Outcomes
// preserve input order and always have the same length as the item list,
// even when the run aborts early.
type RunResult struct {
	RunID    string        `json:"run_id"`
	Site     string        `json:"site"`
	Status   RunStatus     `json:"status"`
	Outcomes []CartOutcome `json:"outcomes"`
}

// Counts aggregates outcomes by status for the final summary.
func (r *RunResult) Counts() map[CartStatus]int {
	counts := make(map[CartStatus]int, 5)
	for _, o := range r.Outcomes {
		counts[o.Status]++
	}
	return counts
}
