package interp

import (
	"fmt"
	"io"
	"math"
)

func unary(f func(float64) float64) Foreign {
	return func(args []float64) (float64, error) {
		if len(args) != 1 {
			return 0, fmt.Errorf("%w: want 1, got %d", ErrArity, len(args))
		}
		return f(args[0]), nil
	}
}

// Builtins returns the runtime library: math functions, plus print and
// putchard writing to w.
func Builtins(w io.Writer) map[string]Foreign {
	return map[string]Foreign{
		"sin":   unary(math.Sin),
		"cos":   unary(math.Cos),
		"sqrt":  unary(math.Sqrt),
		"floor": unary(math.Floor),
		"print": func(args []float64) (float64, error) {
			if len(args) != 1 {
				return 0, fmt.Errorf("%w: want 1, got %d", ErrArity, len(args))
			}
			_, err := fmt.Fprintf(w, "%f\n", args[0])
			return 0, err
		},
		"putchard": func(args []float64) (float64, error) {
			if len(args) != 1 {
				return 0, fmt.Errorf("%w: want 1, got %d", ErrArity, len(args))
			}
			_, err := w.Write([]byte{byte(args[0])})
			return 0, err
		},
	}
}
