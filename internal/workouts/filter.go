package workouts

import (
	"fmt"
	"strings"
	"time"
)

const (
	ColumnName      = "workout_name"
	ColumnDuration  = "duration"
	ColumnDistance  = "distance"
	ColumnHeartRate = "heart_rate"
	ColumnCalories  = "calories_burned"
	ColumnDateTime  = "date_time"
)

type Operator string

const (
	OpContains Operator = "contains" // case-insensitive substring
	OpEq       Operator = "="
	OpGte      Operator = ">="
	OpLte      Operator = "<="
	OpLt       Operator = "<"
)

// FilterCriteria holds the optional list filters. A nil field means "absent"
// and adds no condition.
type FilterCriteria struct {
	NameSubstring *string
	MinDuration   *int
	MaxDuration   *int
	MinDistance   *float64
	MaxDistance   *float64
	HeartRate     *int
	Start         *time.Time
	End           *time.Time
}

type Condition struct {
	Column string
	Op     Operator
	Value  any
}

// Predicate is a conjunction of conditions. The empty predicate matches
// every workout.
type Predicate struct {
	Conditions []Condition
}

// BuildPredicate turns the present criteria fields into AND-ed conditions,
// in a fixed field order.
func BuildPredicate(criteria FilterCriteria) Predicate {
	var p Predicate
	if criteria.NameSubstring != nil && *criteria.NameSubstring != "" {
		p.add(ColumnName, OpContains, *criteria.NameSubstring)
	}
	if criteria.MinDuration != nil {
		p.add(ColumnDuration, OpGte, *criteria.MinDuration)
	}
	if criteria.MaxDuration != nil {
		p.add(ColumnDuration, OpLte, *criteria.MaxDuration)
	}
	if criteria.MinDistance != nil {
		p.add(ColumnDistance, OpGte, *criteria.MinDistance)
	}
	if criteria.MaxDistance != nil {
		p.add(ColumnDistance, OpLte, *criteria.MaxDistance)
	}
	if criteria.HeartRate != nil {
		p.add(ColumnHeartRate, OpEq, *criteria.HeartRate)
	}
	if criteria.Start != nil {
		p.add(ColumnDateTime, OpGte, *criteria.Start)
	}
	if criteria.End != nil {
		p.add(ColumnDateTime, OpLt, *criteria.End)
	}
	return p
}

func (p *Predicate) add(column string, op Operator, value any) {
	p.Conditions = append(p.Conditions, Condition{Column: column, Op: op, Value: value})
}

// And returns a new predicate with the conditions of both.
func (p Predicate) And(other Predicate) Predicate {
	conditions := make([]Condition, 0, len(p.Conditions)+len(other.Conditions))
	conditions = append(conditions, p.Conditions...)
	conditions = append(conditions, other.Conditions...)
	return Predicate{Conditions: conditions}
}

func (p Predicate) IsEmpty() bool {
	return len(p.Conditions) == 0
}

// SQL renders the predicate as a PostgreSQL boolean expression. Placeholders
// are numbered from firstPlaceholder; values never end up in the query text.
func (p Predicate) SQL(firstPlaceholder int) (string, []any) {
	if p.IsEmpty() {
		return "TRUE", nil
	}

	parts := make([]string, 0, len(p.Conditions))
	args := make([]any, 0, len(p.Conditions))
	for i, c := range p.Conditions {
		placeholder := fmt.Sprintf("$%d", firstPlaceholder+i)
		switch c.Op {
		case OpContains:
			parts = append(parts, fmt.Sprintf("%s ILIKE %s", c.Column, placeholder))
			args = append(args, "%"+escapeLike(fmt.Sprint(c.Value))+"%")
		default:
			parts = append(parts, fmt.Sprintf("%s %s %s", c.Column, c.Op, placeholder))
			args = append(args, c.Value)
		}
	}

	return strings.Join(parts, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Matches evaluates the predicate against a workout in memory.
func (p Predicate) Matches(w Workout) bool {
	for _, c := range p.Conditions {
		if !c.matches(w) {
			return false
		}
	}
	return true
}

func (c Condition) matches(w Workout) bool {
	switch c.Column {
	case ColumnName:
		needle, ok := c.Value.(string)
		if !ok {
			return false
		}
		if c.Op == OpContains {
			return strings.Contains(strings.ToLower(w.Name), strings.ToLower(needle))
		}
		return compareOrdered(strings.Compare(w.Name, needle), c.Op)
	case ColumnDuration:
		return compareNumber(float64(w.Duration), c.Value, c.Op)
	case ColumnDistance:
		return compareNumber(w.Distance, c.Value, c.Op)
	case ColumnHeartRate:
		if w.HeartRate == nil {
			return false
		}
		return compareNumber(float64(*w.HeartRate), c.Value, c.Op)
	case ColumnCalories:
		if w.CaloriesBurned == nil {
			return false
		}
		return compareNumber(float64(*w.CaloriesBurned), c.Value, c.Op)
	case ColumnDateTime:
		t, ok := c.Value.(time.Time)
		if !ok {
			return false
		}
		return compareOrdered(w.DateTime.Compare(t), c.Op)
	default:
		return false
	}
}

func compareNumber(actual float64, value any, op Operator) bool {
	var expected float64
	switch v := value.(type) {
	case int:
		expected = float64(v)
	case float64:
		expected = v
	default:
		return false
	}

	switch {
	case actual < expected:
		return compareOrdered(-1, op)
	case actual > expected:
		return compareOrdered(1, op)
	default:
		return compareOrdered(0, op)
	}
}

// compareOrdered interprets a three-way comparison result for op.
func compareOrdered(cmp int, op Operator) bool {
	switch op {
	case OpEq:
		return cmp == 0
	case OpGte:
		return cmp >= 0
	case OpLte:
		return cmp <= 0
	case OpLt:
		return cmp < 0
	default:
		return false
	}
}
