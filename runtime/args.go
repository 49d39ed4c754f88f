package runtime

import "fmt"

func arity(args []any, n int) error {
	if len(args) != n {
		return fmt.Errorf("expected %d argument(s), got %d", n, len(args))
	}
	return nil
}

func stringArg(args []any) (string, error) {
	if err := arity(args, 1); err != nil {
		return "", err
	}
	v, ok := args[0].(string)
	if !ok {
		return "", fmt.Errorf("expected a string, got %T", args[0])
	}
	return v, nil
}

func floatArg(args []any) (float64, error) {
	if err := arity(args, 1); err != nil {
		return 0, err
	}
	switch v := args[0].(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", args[0])
	}
}

// uintArg checks an integer argument against the width of the setter.
func uintArg(args []any, max int64) (int64, error) {
	if err := arity(args, 1); err != nil {
		return 0, err
	}
	v, ok := args[0].(int64)
	if !ok {
		return 0, fmt.Errorf("expected an integer, got %T", args[0])
	}
	if v < 0 || v > max {
		return 0, fmt.Errorf("value %d out of range 0..%d", v, max)
	}
	return v, nil
}
