package bus

import "reflect"

// fnPointer returns the entry point address of a Callback, used to give
// Unsubscribe function-value identity semantics. Two distinct closures
// sharing the same underlying function still compare equal only if they
// share the same code pointer, which is the same granularity Go allows
// for comparing funcs at all (funcs are not comparable with ==).
func fnPointer(cb Callback) uintptr {
	return reflect.ValueOf(cb).Pointer()
}
