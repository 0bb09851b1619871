package filter

// valuesEqual implements eq's NULL-aware equality: NULL == NULL is true,
// NULL compared against anything else is false, numeric values compare by
// value across int/float representations, everything else by Go equality.
func valuesEqual(actual, expected any) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}
	if af, aok := asFloat(actual); aok {
		if ef, eok := asFloat(expected); eok {
			return af == ef
		}
	}
	return actual == expected
}

// compareValues orders actual against expected, returning (cmp, ok) where
// ok is false for a type mismatch that can't be meaningfully ordered
// (treated by the caller as "comparison is false" per the filter engine's
// NULL/mismatch semantics).
func compareValues(actual, expected any) (int, bool) {
	if af, aok := asFloat(actual); aok {
		if ef, eok := asFloat(expected); eok {
			switch {
			case af < ef:
				return -1, true
			case af > ef:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	as, aok := actual.(string)
	es, eok := expected.(string)
	if aok && eok {
		switch {
		case as < es:
			return -1, true
		case as > es:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
