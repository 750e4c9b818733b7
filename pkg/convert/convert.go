package convert

import (
	"fmt"
	"strconv"
	"strings"
)

// Float64E converts anything numeric into a float64
// errors will be returned
func Float64E(raw interface{}) (float64, error) {
	switch val := raw.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case bool:
		if val {
			return 1, nil
		}

		return 0, nil
	default:
		num, err := strconv.ParseFloat(strings.TrimSpace(fmt.Sprintf("%v", val)), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse float64 value from %v (%T)", raw, raw)
		}

		return num, nil
	}
}

// BoolE converts anything into a bool
// errors will be returned
func BoolE(raw interface{}) (bool, error) {
	switch val := raw.(type) {
	case bool:
		return val, nil
	default:
		switch strings.ToLower(fmt.Sprintf("%v", raw)) {
		case "1", "enable", "enabled", "true", "yes", "on", "ok":
			return true, nil
		case "0", "disable", "disabled", "false", "no", "off":
			return false, nil
		}
	}

	return false, fmt.Errorf("cannot parse boolean value from %v (%T)", raw, raw)
}

// IsNumeric returns true if raw is a number type or a string containing a number.
func IsNumeric(raw interface{}) bool {
	switch raw.(type) {
	case bool:
		return false
	case string:
		_, err := strconv.ParseFloat(strings.TrimSpace(raw.(string)), 64)

		return err == nil
	}
	_, err := Float64E(raw)

	return err == nil
}

// Num2String converts any number into a string
// errors will fall back to empty string
func Num2String(raw interface{}) string {
	s, _ := Num2StringE(raw)

	return s
}

// Num2StringE converts any number into its shortest string representation
// errors will be returned
func Num2StringE(raw interface{}) (string, error) {
	switch num := raw.(type) {
	case float64:
		if strconv.FormatFloat(num, 'f', -1, 64) != fmt.Sprintf("%d", int64(num)) {
			return strconv.FormatFloat(num, 'f', -1, 64), nil
		}

		return fmt.Sprintf("%d", int64(num)), nil
	case int64:
		return fmt.Sprintf("%d", num), nil
	case int:
		return fmt.Sprintf("%d", num), nil
	default:
		fNum, err := Float64E(raw)
		if err != nil {
			return "", fmt.Errorf("cannot convert %v (%T) into string", raw, raw)
		}

		return Num2StringE(fNum)
	}
}

// Value2String formats metric values: numbers in shortest form, everything else verbatim.
func Value2String(raw interface{}) string {
	switch val := raw.(type) {
	case string:
		return val
	case bool:
		if val {
			return "1"
		}

		return "0"
	case nil:
		return ""
	}
	if str, err := Num2StringE(raw); err == nil {
		return str
	}

	return fmt.Sprintf("%v", raw)
}
