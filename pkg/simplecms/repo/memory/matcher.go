package memory

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Match reports whether doc satisfies a document-store filter. Both doc and
// filter must be normalized (see query.ToDocument). Supported operators:
// $and $or $nor $eq $ne $in $nin $gt $gte $lt $lte $exists $regex $options
// $elemMatch $not $size. A null operand matches null or missing fields.
func Match(doc bson.M, filter bson.M) (bool, error) {
	for key, cond := range filter {
		var (
			ok  bool
			err error
		)
		switch key {
		case "$and":
			ok, err = matchAll(doc, cond, true)
		case "$or":
			ok, err = matchAll(doc, cond, false)
		case "$nor":
			ok, err = matchAll(doc, cond, false)
			ok = !ok
		default:
			if strings.HasPrefix(key, "$") {
				return false, fmt.Errorf("unsupported top-level operator %s", key)
			}
			vals, found := resolve(doc, strings.Split(key, "."))
			ok, err = matchField(vals, found, cond)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchAll(doc bson.M, cond interface{}, all bool) (bool, error) {
	list, ok := cond.([]interface{})
	if !ok {
		return false, fmt.Errorf("logical operator needs an array, got %T", cond)
	}
	for _, c := range list {
		sub, ok := c.(bson.M)
		if !ok {
			return false, fmt.Errorf("logical operator needs documents, got %T", c)
		}
		matched, err := Match(doc, sub)
		if err != nil {
			return false, err
		}
		if all && !matched {
			return false, nil
		}
		if !all && matched {
			return true, nil
		}
	}
	return all, nil
}

// resolve returns every value reachable through path. Arrays along the path
// are traversed element-wise; a numeric segment indexes into an array.
func resolve(v interface{}, parts []string) ([]interface{}, bool) {
	if len(parts) == 0 {
		return []interface{}{v}, true
	}
	switch t := v.(type) {
	case bson.M:
		child, ok := t[parts[0]]
		if !ok {
			return nil, false
		}
		return resolve(child, parts[1:])
	case []interface{}:
		if i, err := strconv.Atoi(parts[0]); err == nil {
			if i < 0 || i >= len(t) {
				return nil, false
			}
			return resolve(t[i], parts[1:])
		}
		var (
			out   []interface{}
			found bool
		)
		for _, el := range t {
			if _, ok := el.(bson.M); !ok {
				continue
			}
			vals, ok := resolve(el, parts)
			if ok {
				found = true
				out = append(out, vals...)
			}
		}
		return out, found
	}
	return nil, false
}

// candidates expands array values so that a scalar condition can match any
// element as well as the array itself.
func candidates(vals []interface{}) []interface{} {
	out := make([]interface{}, 0, len(vals))
	for _, v := range vals {
		out = append(out, v)
		if arr, ok := v.([]interface{}); ok {
			out = append(out, arr...)
		}
	}
	return out
}

func isOperatorDoc(cond interface{}) (bson.M, bool) {
	m, ok := cond.(bson.M)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchField(vals []interface{}, found bool, cond interface{}) (bool, error) {
	if ops, ok := isOperatorDoc(cond); ok {
		return matchOperators(vals, found, ops)
	}
	if re, ok := cond.(primitive.Regex); ok {
		return matchRegex(vals, re.Pattern, re.Options)
	}
	return matchEq(vals, found, cond), nil
}

func matchEq(vals []interface{}, found bool, want interface{}) bool {
	if want == nil && !found {
		return true
	}
	for _, v := range candidates(vals) {
		if equal(v, want) {
			return true
		}
	}
	return false
}

func matchOperators(vals []interface{}, found bool, ops bson.M) (bool, error) {
	for _, op := range sortedOps(ops) {
		arg := ops[op]
		var (
			ok  bool
			err error
		)
		switch op {
		case "$eq":
			ok = matchEq(vals, found, arg)
		case "$ne":
			ok = !matchEq(vals, found, arg)
		case "$in":
			ok, err = matchIn(vals, found, arg)
		case "$nin":
			ok, err = matchIn(vals, found, arg)
			ok = !ok
		case "$gt", "$gte", "$lt", "$lte":
			ok = matchCompare(vals, op, arg)
		case "$exists":
			ok = found == truthy(arg)
		case "$regex":
			pattern, options := "", ""
			switch t := arg.(type) {
			case string:
				pattern = t
			case primitive.Regex:
				pattern, options = t.Pattern, t.Options
			default:
				return false, fmt.Errorf("$regex needs a string, got %T", arg)
			}
			if o, ok := ops["$options"].(string); ok {
				options = o
			}
			ok, err = matchRegex(vals, pattern, options)
		case "$options":
			ok = true
		case "$elemMatch":
			ok, err = matchElem(vals, arg)
		case "$not":
			ok, err = matchField(vals, found, arg)
			ok = !ok
		case "$size":
			ok = matchSize(vals, arg)
		default:
			return false, fmt.Errorf("unsupported operator %s", op)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func sortedOps(ops bson.M) []string {
	keys := make([]string, 0, len(ops))
	for k := range ops {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func matchIn(vals []interface{}, found bool, arg interface{}) (bool, error) {
	list, ok := arg.([]interface{})
	if !ok {
		return false, fmt.Errorf("$in needs an array, got %T", arg)
	}
	for _, want := range list {
		if re, ok := want.(primitive.Regex); ok {
			matched, err := matchRegex(vals, re.Pattern, re.Options)
			if err != nil {
				return false, err
			}
			if matched {
				return true, nil
			}
			continue
		}
		if matchEq(vals, found, want) {
			return true, nil
		}
	}
	return false, nil
}

func matchCompare(vals []interface{}, op string, arg interface{}) bool {
	for _, v := range candidates(vals) {
		c, ok := compare(v, arg)
		if !ok {
			continue
		}
		switch {
		case op == "$gt" && c > 0,
			op == "$gte" && c >= 0,
			op == "$lt" && c < 0,
			op == "$lte" && c <= 0:
			return true
		}
	}
	return false
}

func matchRegex(vals []interface{}, pattern, options string) (bool, error) {
	flags := ""
	for _, o := range options {
		if strings.ContainsRune("ims", o) {
			flags += string(o)
		}
	}
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid $regex: %w", err)
	}
	for _, v := range candidates(vals) {
		if s, ok := v.(string); ok && re.MatchString(s) {
			return true, nil
		}
	}
	return false, nil
}

func matchElem(vals []interface{}, arg interface{}) (bool, error) {
	cond, ok := arg.(bson.M)
	if !ok {
		return false, fmt.Errorf("$elemMatch needs a document, got %T", arg)
	}
	ops, isOps := isOperatorDoc(cond)
	for _, v := range vals {
		arr, ok := v.([]interface{})
		if !ok {
			continue
		}
		for _, el := range arr {
			var (
				matched bool
				err     error
			)
			if isOps {
				matched, err = matchOperators([]interface{}{el}, true, ops)
			} else if doc, ok := el.(bson.M); ok {
				matched, err = Match(doc, cond)
			}
			if err != nil {
				return false, err
			}
			if matched {
				return true, nil
			}
		}
	}
	return false, nil
}

func matchSize(vals []interface{}, arg interface{}) bool {
	n, ok := number(arg)
	if !ok {
		return false
	}
	for _, v := range vals {
		if arr, ok := v.([]interface{}); ok && float64(len(arr)) == n {
			return true
		}
	}
	return false
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	}
	if n, ok := number(v); ok {
		return n != 0
	}
	return true
}

func number(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	}
	return 0, false
}

// typeOrder ranks value classes the way the document store sorts mixed types.
func typeOrder(v interface{}) int {
	if _, ok := number(v); ok {
		return 1
	}
	switch v.(type) {
	case nil:
		return 0
	case string:
		return 2
	case bson.M:
		return 3
	case []interface{}:
		return 4
	case primitive.ObjectID:
		return 5
	case bool:
		return 6
	case primitive.DateTime:
		return 7
	}
	return 8
}

// compare orders two values of the same class. ok is false when the
// classes differ.
func compare(a, b interface{}) (int, bool) {
	if typeOrder(a) != typeOrder(b) {
		return 0, false
	}
	switch x := a.(type) {
	case nil:
		return 0, true
	case string:
		return strings.Compare(x, b.(string)), true
	case primitive.ObjectID:
		y := b.(primitive.ObjectID)
		return bytes.Compare(x[:], y[:]), true
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	case primitive.DateTime:
		y := b.(primitive.DateTime)
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	if fa, ok := number(a); ok {
		fb, _ := number(b)
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func equal(a, b interface{}) bool {
	if typeOrder(a) != typeOrder(b) {
		return false
	}
	switch x := a.(type) {
	case bson.M:
		y := b.(bson.M)
		if len(x) != len(y) {
			return false
		}
		for k, v := range x {
			w, ok := y[k]
			if !ok || !equal(v, w) {
				return false
			}
		}
		return true
	case []interface{}:
		y := b.([]interface{})
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !equal(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	c, ok := compare(a, b)
	return ok && c == 0
}
