package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/redworker/internal/store"
)

// validIdentifier matches valid SQL identifiers (column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// journalTables maps the tables final_state may query to the column that
// scopes them to the scenario session.
var journalTables = map[string]string{
	"sessions": "id",
	"events":   "session_id",
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", event.Seq, event.Name())
			if event.Channel != "" {
				fmt.Fprintf(&buf, " channel=%s", event.Channel)
			}
			buf.WriteString("\n")
		}
	}

	return buf.String()
}

// onChannel filters the trace to one channel; an empty name keeps every
// event.
func onChannel(trace []TraceEvent, channel string) []TraceEvent {
	if channel == "" {
		return trace
	}
	var out []TraceEvent
	for _, ev := range trace {
		if ev.Channel == channel {
			out = append(out, ev)
		}
	}
	return out
}

// assertTraceContains checks if the trace contains an event with the
// assertion's name whose fields include assertion.Match (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range onChannel(trace, assertion.Channel) {
		if assertion.Name != "" && event.Name() != assertion.Name {
			continue
		}
		if matchFields(event.fields(), assertion.Match) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event %s matching %v", describeName(assertion), assertion.Match),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

func describeName(a Assertion) string {
	name := a.Name
	if name == "" {
		name = "(any)"
	}
	if a.Channel != "" {
		name += " on " + a.Channel
	}
	return name
}

// assertTraceOrder checks if names appear in the specified order.
// Names don't need to be consecutive (intervening events are allowed).
// A name listed twice must occur twice.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	events := onChannel(trace, assertion.Channel)
	pos := 0
	for i, want := range assertion.Names {
		found := false
		for pos < len(events) {
			got := events[pos].Name()
			pos++
			if got == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Names),
				Actual:   fmt.Sprintf("%s (position %d) not found after %v", want, i+1, assertion.Names[:i]),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks if the name appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range onChannel(trace, assertion.Channel) {
		if event.Name() == assertion.Name {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, describeName(assertion)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertWorkerState checks one counter captured after the last step.
func assertWorkerState(result *Result, assertion Assertion) error {
	actual, ok := result.State[assertion.Field]
	if !ok {
		return &AssertionError{
			Type:     AssertWorkerState,
			Expected: fmt.Sprintf("field %q to be captured", assertion.Field),
			Actual:   "not captured",
		}
	}
	if actual != assertion.Value {
		return &AssertionError{
			Type:     AssertWorkerState,
			Expected: fmt.Sprintf("%s = %d", assertion.Field, assertion.Value),
			Actual:   fmt.Sprintf("%s = %d", assertion.Field, actual),
		}
	}
	return nil
}

// assertPixel checks one sampled canvas color. Alpha is ignored.
func assertPixel(result *Result, assertion Assertion) error {
	key := pixelKey(assertion.Surface, assertion.X, assertion.Y)
	actual, ok := result.Pixels[key]
	want := assertion.Color & 0xffffff
	if !ok || actual != want {
		return &AssertionError{
			Type:     AssertPixel,
			Expected: fmt.Sprintf("pixel %s = #%06x", key, want),
			Actual:   fmt.Sprintf("pixel %s = #%06x", key, actual),
		}
	}
	return nil
}

// assertFinalState checks that the journal contains exactly one row
// matching assertion.Where with the expected values. Rows are scoped to
// the scenario session.
//
// Security: The table must be a journal table and column names are
// validated against a whitelist pattern to prevent SQL injection via
// identifier interpolation.
func assertFinalState(ctx context.Context, st *store.Store, session string, assertion Assertion) error {
	scope, ok := journalTables[assertion.Table]
	if !ok {
		return fmt.Errorf("invalid table name %q: must be one of sessions, events", assertion.Table)
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", assertion.Table, scope)
	args := append([]any{session}, whereArgs...)
	if whereSQL != "" {
		query += " AND " + whereSQL
	}

	rows, err := st.Query(ctx, query, args...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	// Multiple matching rows make the assertion ambiguous
	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any)
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	// Subset semantics: only fields in Expect are checked
	keys := sortedKeys(assertion.Expect)
	for _, key := range keys {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// buildWhereClause constructs parameterized WHERE clause from assertion.Where.
// Returns SQL fragment, arguments slice, and error. Keys are sorted for determinism.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := sortedKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))

	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}

	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML value to a SQL-compatible value.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case string, int64, bool:
		return val
	case int:
		return int64(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares expected and actual values from journal tables.
// SQLite returns integers as int64, text as string or []byte.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		actualStr, ok := actual.(string)
		return ok && exp == actualStr
	case int:
		actualInt, ok := actual.(int64)
		return ok && int64(exp) == actualInt
	case int64:
		actualInt, ok := actual.(int64)
		return ok && exp == actualInt
	case bool:
		if actualBool, ok := actual.(bool); ok {
			return exp == actualBool
		}
		// SQLite stores booleans as integers
		if actualInt, ok := actual.(int64); ok {
			return exp == (actualInt != 0)
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

// matchFields checks if actual contains every expected field (subset
// match). Nested maps match by subset too. Extra keys in actual are ignored.
func matchFields(actual map[string]any, expected map[string]any) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, normalize(expectedVal)) {
			return false
		}
	}
	return true
}

// valuesEqual compares two normalized values for equality.
func valuesEqual(actual, expected any) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}
	if em, ok := expected.(map[string]any); ok {
		am, ok := actual.(map[string]any)
		return ok && matchFields(am, em)
	}
	return reflect.DeepEqual(actual, expected)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store   *store.Store
	Ctx     context.Context
	Session string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertWorkerState:
			err = assertWorkerState(result, assertion)
		case AssertPixel:
			err = assertPixel(result, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, actx.Session, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
